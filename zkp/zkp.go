// Package zkp implements an optional SNARK attestation that a specific
// VRF output was delivered for a specific request id. It is not part
// of the on-chain verification path (the program verifies the ECVRF
// proof directly via the Ristretto group, see package vrf), and the
// worker does not call it: it is a standalone library for producing a
// portable, succinct receipt that can be handed to a third party
// without exposing the full VRF proof.
package zkp

import (
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// DeliveryCircuit proves knowledge of a nonce binding a request id to
// the delivered output hash, without revealing the nonce. Requester
// and output hash are public; the binding nonce is secret.
type DeliveryCircuit struct {
	RequestID  frontend.Variable `gnark:",public"`
	OutputHash frontend.Variable `gnark:",public"`
	Nonce      frontend.Variable `gnark:",secret"`
}

func (circuit *DeliveryCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(circuit.OutputHash, api.Add(circuit.RequestID, circuit.Nonce))
	return nil
}

var (
	once sync.Once
	pk   groth16.ProvingKey
	vk   groth16.VerifyingKey
	ccs  constraint.ConstraintSystem
	initErr error
)

// Init runs the (simulated) trusted setup for the delivery circuit.
// Idempotent; safe to call from multiple goroutines.
func Init() error {
	once.Do(func() {
		var circuit DeliveryCircuit
		ccs, initErr = frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
		if initErr != nil {
			return
		}
		pk, vk, initErr = groth16.Setup(ccs)
	})
	return initErr
}

// GenerateDeliveryProof proves that nonce binds requestID to
// outputHash, without revealing nonce.
func GenerateDeliveryProof(requestID, outputHash, nonce *big.Int) (groth16.Proof, error) {
	if ccs == nil {
		if err := Init(); err != nil {
			return nil, err
		}
	}

	witness, err := frontend.NewWitness(&DeliveryCircuit{
		RequestID:  requestID,
		OutputHash: outputHash,
		Nonce:      nonce,
	}, ecc.BN254.ScalarField())
	if err != nil {
		return nil, err
	}

	return groth16.Prove(ccs, pk, witness)
}

// VerifyDeliveryProof verifies a delivery proof against its public
// inputs.
func VerifyDeliveryProof(proof groth16.Proof, requestID, outputHash *big.Int) (bool, error) {
	if vk == nil {
		if err := Init(); err != nil {
			return false, err
		}
	}

	publicWitness, err := frontend.NewWitness(&DeliveryCircuit{
		RequestID:  requestID,
		OutputHash: outputHash,
	}, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, err
	}

	err = groth16.Verify(proof, vk, publicWitness)
	return err == nil, nil
}
