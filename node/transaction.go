package node

import (
	"crypto/ed25519"
	"fmt"
)

// AccountMeta is one entry in a compiled instruction's account list.
type AccountMeta struct {
	Pubkey     [32]byte
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program call: the program to invoke, the
// accounts it touches, and its opaque instruction data.
type Instruction struct {
	ProgramID [32]byte
	Accounts  []AccountMeta
	Data      []byte
}

// buildTransaction assembles and signs a legacy Solana transaction from
// one or more instructions. No library in the reference corpus speaks
// Solana's wire transaction format, so this — like the RPC client — is
// a deliberately small hand-rolled component built directly against
// stdlib crypto/ed25519 and the format's own fixed byte layout (see
// DESIGN.md); it is not a general-purpose transaction builder, only
// enough to submit the calls the worker issues (a compute-budget
// instruction followed by a program instruction, or a lone purge).
func buildTransaction(signer ed25519.PrivateKey, ixs []Instruction, recentBlockhash [32]byte) ([]byte, error) {
	if len(signer) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("transaction: signer key has wrong size %d", len(signer))
	}
	if len(ixs) == 0 {
		return nil, fmt.Errorf("transaction: no instructions")
	}
	signerPub := signer.Public().(ed25519.PublicKey)

	// Deduplicate account keys while preserving first-seen order, with
	// the fee payer (signer) forced first per the wire format's account
	// ordering rule: signer-writable, signer-readonly, writable, readonly.
	type keyInfo struct {
		key        [32]byte
		isSigner   bool
		isWritable bool
	}
	seen := map[[32]byte]int{}
	var keys []keyInfo

	addKey := func(k [32]byte, signerFlag, writable bool) {
		if idx, ok := seen[k]; ok {
			if signerFlag {
				keys[idx].isSigner = true
			}
			if writable {
				keys[idx].isWritable = true
			}
			return
		}
		seen[k] = len(keys)
		keys = append(keys, keyInfo{key: k, isSigner: signerFlag, isWritable: writable})
	}

	var payerKey [32]byte
	copy(payerKey[:], signerPub)
	addKey(payerKey, true, true)
	for _, ix := range ixs {
		addKey(ix.ProgramID, false, false)
		for _, a := range ix.Accounts {
			addKey(a.Pubkey, a.IsSigner, a.IsWritable)
		}
	}

	// Partition per Solana's required ordering.
	var ordered []keyInfo
	for _, grp := range []struct{ signer, writable bool }{
		{true, true}, {true, false}, {false, true}, {false, false},
	} {
		for _, k := range keys {
			if k.isSigner == grp.signer && k.isWritable == grp.writable {
				ordered = append(ordered, k)
			}
		}
	}

	numRequiredSignatures := 0
	numReadonlySigned := 0
	numReadonlyUnsigned := 0
	indexOf := make(map[[32]byte]int, len(ordered))
	for i, k := range ordered {
		indexOf[k.key] = i
		if k.isSigner {
			numRequiredSignatures++
			if !k.isWritable {
				numReadonlySigned++
			}
		} else if !k.isWritable {
			numReadonlyUnsigned++
		}
	}

	var msg []byte
	msg = append(msg, byte(numRequiredSignatures), byte(numReadonlySigned), byte(numReadonlyUnsigned))
	msg = append(msg, compactArrayLen(len(ordered))...)
	for _, k := range ordered {
		msg = append(msg, k.key[:]...)
	}
	msg = append(msg, recentBlockhash[:]...)

	msg = append(msg, compactArrayLen(len(ixs))...)
	for _, ix := range ixs {
		msg = append(msg, byte(indexOf[ix.ProgramID]))
		accountIdxs := make([]byte, len(ix.Accounts))
		for i, a := range ix.Accounts {
			accountIdxs[i] = byte(indexOf[a.Pubkey])
		}
		msg = append(msg, compactArrayLen(len(accountIdxs))...)
		msg = append(msg, accountIdxs...)
		msg = append(msg, compactArrayLen(len(ix.Data))...)
		msg = append(msg, ix.Data...)
	}

	sig := ed25519.Sign(signer, msg)

	var out []byte
	out = append(out, compactArrayLen(numRequiredSignatures)...)
	out = append(out, sig...)
	for i := 1; i < numRequiredSignatures; i++ {
		out = append(out, make([]byte, ed25519.SignatureSize)...)
	}
	out = append(out, msg...)
	return out, nil
}

// compactArrayLen encodes n as Solana's shortvec compact-u16.
func compactArrayLen(n int) []byte {
	var out []byte
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			break
		}
	}
	return out
}
