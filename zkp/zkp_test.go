package zkp

import (
	"math/big"
	"testing"
)

func TestDeliveryProofGenerationAndVerification(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize zkp: %v", err)
	}

	requestID := big.NewInt(424242)
	nonce := big.NewInt(17)
	outputHash := new(big.Int).Add(requestID, nonce)

	proof, err := GenerateDeliveryProof(requestID, outputHash, nonce)
	if err != nil {
		t.Fatalf("failed to generate delivery proof: %v", err)
	}
	if proof == nil {
		t.Fatal("proof is nil")
	}

	valid, err := VerifyDeliveryProof(proof, requestID, outputHash)
	if err != nil {
		t.Fatalf("failed to verify delivery proof: %v", err)
	}
	if !valid {
		t.Fatal("expected proof to verify")
	}
}

func TestDeliveryProofRejectsMismatchedOutputHash(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize zkp: %v", err)
	}

	requestID := big.NewInt(1)
	nonce := big.NewInt(2)
	outputHash := new(big.Int).Add(requestID, nonce)

	proof, err := GenerateDeliveryProof(requestID, outputHash, nonce)
	if err != nil {
		t.Fatalf("failed to generate delivery proof: %v", err)
	}

	wrongOutputHash := big.NewInt(999)
	valid, err := VerifyDeliveryProof(proof, requestID, wrongOutputHash)
	if err == nil && valid {
		t.Fatal("expected verification against a mismatched output hash to fail")
	}
}
