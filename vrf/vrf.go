// Package vrf implements the ECVRF construction used to authenticate
// randomness delivered to on-chain callers: deterministic keypair
// derivation, proof generation, and proof verification over the
// Ristretto prime-order group.
package vrf

import (
	"crypto/sha512"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/hkdf"

	"github.com/ephemeral-labs/vrf-oracle/curve"
)

const (
	hkdfSalt = "VRF-Solana-SecretKey"
	hkdfInfo = "VRF-Key"
)

// PublicKey is a compressed Ristretto point, 32 bytes.
type PublicKey [curve.PointSize]byte

// Proof is the Schnorr-style proof of discrete-log equality attached to
// a VRF output: commitments R_G, R_H and response scalar s.
type Proof struct {
	RG [curve.PointSize]byte
	RH [curve.PointSize]byte
	S  [curve.ScalarSize]byte
}

// Output is the compressed Ristretto VRF output point, sk*H(input).
type Output [curve.PointSize]byte

// Manager owns a derived VRF keypair and serializes access to it,
// mirroring the shape of a signing-key manager: a mutex-guarded secret
// with a public accessor and structured-logging of lifecycle events.
type Manager struct {
	mu sync.Mutex
	sk *curve.Scalar
	pk PublicKey
}

// NewManager derives a VRF keypair from the given oracle signing-key
// bytes (the 64-byte secret+public keypair an oracle identity signs
// transactions with) per the HKDF-SHA-512 construction in §4.1.
func NewManager(signingKeypairBytes []byte) (*Manager, error) {
	sk, pk, err := GenerateKeypair(signingKeypairBytes)
	if err != nil {
		log.Error().Err(err).Msg("VRF keypair derivation failed")
		return nil, err
	}
	var pkBytes PublicKey
	copy(pkBytes[:], curve.Compress(pk))

	log.Info().Str("vrf_pubkey_hex", fmt.Sprintf("%x", pkBytes)).Msg("VRF manager initialized")
	return &Manager{sk: sk, pk: pkBytes}, nil
}

// PublicKey returns the manager's compressed VRF public key.
func (m *Manager) PublicKey() PublicKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pk
}

// Prove computes a VRF output and proof over input using the manager's
// secret scalar. Safe for concurrent use.
func (m *Manager) Prove(input []byte) (Output, Proof, error) {
	m.mu.Lock()
	sk := m.sk
	m.mu.Unlock()
	return Prove(sk, input)
}

// GenerateKeypair derives the deterministic VRF scalar/point pair from
// an oracle's 64-byte signing keypair, per spec §4.1: HKDF-SHA-512 with
// a fixed salt and info tag, first 32 output bytes reduced to a scalar.
func GenerateKeypair(signingKeypairBytes []byte) (*curve.Scalar, *curve.Point, error) {
	kdf := hkdf.New(sha512.New, signingKeypairBytes, []byte(hkdfSalt), []byte(hkdfInfo))
	okm := make([]byte, 64)
	if _, err := kdf.Read(okm); err != nil {
		return nil, nil, fmt.Errorf("hkdf expand: %w", err)
	}

	sk := curve.NewScalar().FromUniformBytes(expandTo64(okm[:32]))
	pk := curve.ScalarBaseMult(sk)
	return sk, pk, nil
}

// expandTo64 pads the 32-byte scalar seed out to 64 bytes for the
// uniform-bytes reduction that FromUniformBytes requires. Scalars are
// little-endian, so zero-extending the high half and wide-reducing is
// equivalent to reducing the 32-byte value mod the group order directly.
func expandTo64(b []byte) []byte {
	out := make([]byte, 64)
	copy(out, b)
	return out
}

// Prove computes output = sk*H(input) and a Schnorr-style proof of
// discrete-log equality between (G, pk) and (H(input), output), per
// spec §4.1.
func Prove(sk *curve.Scalar, input []byte) (Output, Proof, error) {
	h := curve.HashToPoint(input)
	outputPoint := curve.ScalarMult(sk, h)
	outputCompressed := curve.Compress(outputPoint)

	pk := curve.ScalarBaseMult(sk)
	pkCompressed := curve.Compress(pk)

	nonceInput := concat([]byte(curve.PrefixNonce), curve.EncodeScalar(sk), input)
	k := curve.HashToScalar(nonceInput)

	rg := curve.ScalarBaseMult(k)
	rh := curve.ScalarMult(k, h)
	rgCompressed := curve.Compress(rg)
	rhCompressed := curve.Compress(rh)

	challengeInput := concat([]byte(curve.PrefixChallenge), outputCompressed, rgCompressed, rhCompressed, pkCompressed, input)
	c := curve.HashToScalar(challengeInput)

	s := curve.AddScalars(k, curve.MultiplyScalars(c, sk))

	var out Output
	var proof Proof
	copy(out[:], outputCompressed)
	copy(proof.RG[:], rgCompressed)
	copy(proof.RH[:], rhCompressed)
	copy(proof.S[:], curve.EncodeScalar(s))
	return out, proof, nil
}

// Verify checks a VRF proof against a public key, input, and claimed
// output, per spec §4.1. Both equalities are always evaluated — the
// function never returns early after the first check so that timing
// does not distinguish which half of the proof was wrong.
func Verify(pk PublicKey, input []byte, output Output, proof Proof) bool {
	pkPoint, err1 := curve.Decompress(pk[:])
	outputPoint, err2 := curve.Decompress(output[:])
	rg, err3 := curve.Decompress(proof.RG[:])
	rh, err4 := curve.Decompress(proof.RH[:])
	s, err5 := curve.DecodeScalar(proof.S[:])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return false
	}

	h := curve.HashToPoint(input)
	challengeInput := concat([]byte(curve.PrefixChallenge), output[:], proof.RG[:], proof.RH[:], pk[:], input)
	c := curve.HashToScalar(challengeInput)

	lhsG := curve.ScalarBaseMult(s)
	rhsG := curve.Add(rg, curve.ScalarMult(c, pkPoint))
	okG := constantEqual(curve.Compress(lhsG), curve.Compress(rhsG))

	lhsH := curve.ScalarMult(s, h)
	rhsH := curve.Add(rh, curve.ScalarMult(c, outputPoint))
	okH := constantEqual(curve.Compress(lhsH), curve.Compress(rhsH))

	return okG && okH
}

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func constantEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
