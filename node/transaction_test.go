package node

import (
	"crypto/ed25519"
	"testing"
)

func TestBuildTransactionSignatureVerifies(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var programID [32]byte
	programID[0] = 7
	var other [32]byte
	other[0] = 8

	ix := Instruction{
		ProgramID: programID,
		Accounts: []AccountMeta{
			{Pubkey: other, IsSigner: false, IsWritable: true},
		},
		Data: []byte{1, 2, 3, 4},
	}
	var blockhash [32]byte
	blockhash[0] = 42

	raw, err := buildTransaction(priv, []Instruction{ix}, blockhash)
	if err != nil {
		t.Fatalf("buildTransaction: %v", err)
	}

	// Wire format: compact-u16 sig count, signatures, then message.
	if raw[0] != 1 {
		t.Fatalf("expected exactly one required signature, got count byte %d", raw[0])
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	msg := raw[1+ed25519.SignatureSize:]

	if !ed25519.Verify(pub, msg, sig) {
		t.Fatal("signature does not verify over the compiled message")
	}
}

func TestBuildTransactionRejectsEmptyInstructions(t *testing.T) {
	_, priv, _ := ed25519.GenerateKey(nil)
	if _, err := buildTransaction(priv, nil, [32]byte{}); err == nil {
		t.Fatal("expected an error for zero instructions")
	}
}

func TestCompactArrayLenRoundTripsSmallAndLargeValues(t *testing.T) {
	if got := compactArrayLen(0); len(got) != 1 || got[0] != 0 {
		t.Fatalf("compactArrayLen(0) = %v", got)
	}
	if got := compactArrayLen(127); len(got) != 1 || got[0] != 127 {
		t.Fatalf("compactArrayLen(127) = %v", got)
	}
	if got := compactArrayLen(128); len(got) != 2 {
		t.Fatalf("compactArrayLen(128) should need two bytes, got %v", got)
	}
}
