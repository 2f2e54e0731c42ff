package vrf

import (
	"crypto/rand"
	"crypto/sha512"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ephemeral-labs/vrf-oracle/curve"
)

func randomSigningKeypair(t *testing.T) []byte {
	t.Helper()
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return b
}

func TestGenerateKeypairIsDeterministic(t *testing.T) {
	seed := randomSigningKeypair(t)
	sk1, pk1, err := GenerateKeypair(seed)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	sk2, pk2, err := GenerateKeypair(seed)
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if curve.EncodeScalar(sk1) == nil || string(curve.EncodeScalar(sk1)) != string(curve.EncodeScalar(sk2)) {
		t.Fatal("same seed produced different secret scalars")
	}
	if string(curve.Compress(pk1)) != string(curve.Compress(pk2)) {
		t.Fatal("same seed produced different public keys")
	}
}

func TestPublicKeyMatchesSkTimesG(t *testing.T) {
	sk, pk, err := GenerateKeypair(randomSigningKeypair(t))
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	expected := curve.ScalarBaseMult(sk)
	if string(curve.Compress(expected)) != string(curve.Compress(pk)) {
		t.Fatal("pk != sk*G")
	}
}

func TestProveThenVerifySucceeds(t *testing.T) {
	sk, pkPoint, err := GenerateKeypair(randomSigningKeypair(t))
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	var pk PublicKey
	copy(pk[:], curve.Compress(pkPoint))

	input := []byte("request-id-bytes-go-here-32-padded-out")
	output, proof, err := Prove(sk, input)
	if err != nil {
		t.Fatalf("Prove: %v", err)
	}
	if !Verify(pk, input, output, proof) {
		t.Fatal("verify rejected a correctly generated proof")
	}
}

func TestVerifyIsPureAndRepeatable(t *testing.T) {
	sk, pkPoint, _ := GenerateKeypair(randomSigningKeypair(t))
	var pk PublicKey
	copy(pk[:], curve.Compress(pkPoint))
	input := []byte("idempotence-check")
	output, proof, _ := Prove(sk, input)

	first := Verify(pk, input, output, proof)
	for i := 0; i < 5; i++ {
		if Verify(pk, input, output, proof) != first {
			t.Fatal("verify is not a pure function of its inputs")
		}
	}
}

func TestBitFlipInAnyFieldInvalidatesProof(t *testing.T) {
	sk, pkPoint, _ := GenerateKeypair(randomSigningKeypair(t))
	var pk PublicKey
	copy(pk[:], curve.Compress(pkPoint))
	input := []byte("tamper-target")
	output, proof, _ := Prove(sk, input)

	if !Verify(pk, input, output, proof) {
		t.Fatal("baseline proof should verify")
	}

	flip := func(b []byte) []byte {
		out := append([]byte(nil), b...)
		out[0] ^= 0x01
		return out
	}

	t.Run("output", func(t *testing.T) {
		var tampered Output
		copy(tampered[:], flip(output[:]))
		if Verify(pk, input, tampered, proof) {
			t.Fatal("expected rejection on tampered output")
		}
	})
	t.Run("RG", func(t *testing.T) {
		tampered := proof
		copy(tampered.RG[:], flip(proof.RG[:]))
		if Verify(pk, input, output, tampered) {
			t.Fatal("expected rejection on tampered R_G")
		}
	})
	t.Run("RH", func(t *testing.T) {
		tampered := proof
		copy(tampered.RH[:], flip(proof.RH[:]))
		if Verify(pk, input, output, tampered) {
			t.Fatal("expected rejection on tampered R_H")
		}
	})
	t.Run("s", func(t *testing.T) {
		tampered := proof
		copy(tampered.S[:], flip(proof.S[:]))
		if Verify(pk, input, output, tampered) {
			t.Fatal("expected rejection on tampered s")
		}
	})
	t.Run("pk", func(t *testing.T) {
		var tamperedPK PublicKey
		copy(tamperedPK[:], flip(pk[:]))
		if Verify(tamperedPK, input, output, proof) {
			t.Fatal("expected rejection on tampered pk")
		}
	})
	t.Run("input", func(t *testing.T) {
		if Verify(pk, flip(append([]byte(nil), input...)), output, proof) {
			t.Fatal("expected rejection on tampered input")
		}
	})
}

// TestKeygenProveVerifyProperty exercises the universal invariants from
// spec §8 across many random seeds and inputs rather than a fixed table.
func TestKeygenProveVerifyProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("pk == sk*G and verify(prove(sk,x)) == true for all seeds/inputs", prop.ForAll(
		func(seedStr, inputStr string) bool {
			seedDigest := sha512.Sum512([]byte(seedStr))
			sk, pkPoint, err := GenerateKeypair(seedDigest[:])
			if err != nil {
				return false
			}
			var pk PublicKey
			copy(pk[:], curve.Compress(pkPoint))

			expected := curve.ScalarBaseMult(sk)
			if string(curve.Compress(expected)) != string(curve.Compress(pkPoint)) {
				return false
			}

			output, proof, err := Prove(sk, []byte(inputStr))
			if err != nil {
				return false
			}
			return Verify(pk, []byte(inputStr), output, proof)
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
