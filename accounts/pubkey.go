// Package accounts implements program-derived addressing and the three
// persistent account-body codecs the VRF program owns: Oracles registry,
// Oracle data, and the Queue header (the Queue variable region itself is
// handled by package queue). See spec §3 and §6.
package accounts

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Pubkey is a 32-byte address, used both for program ids and account
// addresses, matching the target chain's convention.
type Pubkey [32]byte

func (p Pubkey) String() string { return base58.Encode(p[:]) }

func (p Pubkey) IsZero() bool { return p == Pubkey{} }

var pdaMarker = []byte("ProgramDerivedAddress")

// FindProgramAddress derives a program-derived address deterministically
// from seeds and a program id, searching bump seeds from 255 down to 0
// until the SHA-256 digest does not decode as a valid Ed25519 point —
// PDAs must be off-curve so that no private key can ever correspond to
// one. Mirrors the target chain's `find_program_address`.
func FindProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{byte(bump)})
		h.Write(programID[:])
		h.Write(pdaMarker)
		digest := h.Sum(nil)

		if !isOnCurve(digest) {
			var out Pubkey
			copy(out[:], digest)
			return out, uint8(bump), nil
		}
	}
	return Pubkey{}, 0, fmt.Errorf("accounts: unable to find a viable program address")
}

// CreateProgramAddress derives the address for one specific bump without
// searching, for callers (like request validation) that already know the
// expected bump and just need to confirm it.
func CreateProgramAddress(seeds [][]byte, programID Pubkey) (Pubkey, error) {
	h := sha256.New()
	for _, s := range seeds {
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write(pdaMarker)
	digest := h.Sum(nil)
	if isOnCurve(digest) {
		return Pubkey{}, fmt.Errorf("accounts: address is on-curve, not a valid PDA")
	}
	var out Pubkey
	copy(out[:], digest)
	return out, nil
}

// isOnCurve reports whether b decodes as a valid compressed Edwards
// point. A PDA is valid only when this is false.
func isOnCurve(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// Seed name constants from spec §3/§6.
var (
	SeedOracles   = []byte("oracles")
	SeedOracle    = []byte("oracle")
	SeedQueue     = []byte("queue")
	SeedIdentity  = []byte("identity")
)

// OraclesAddress derives the singleton Oracles registry PDA.
func OraclesAddress(programID Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{SeedOracles}, programID)
}

// OracleDataAddress derives the per-identity Oracle data PDA.
func OracleDataAddress(programID Pubkey, identity Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{SeedOracle, identity[:]}, programID)
}

// QueueAddress derives the per-(identity,index) Queue PDA.
func QueueAddress(programID Pubkey, identity Pubkey, index uint8) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{SeedQueue, identity[:], {index}}, programID)
}

// IdentityAddress derives a program's CPI-signing identity PDA. Used
// both for the VRF program's own identity and, when validating a
// request, for the callback program's identity.
func IdentityAddress(programID Pubkey) (Pubkey, uint8, error) {
	return FindProgramAddress([][]byte{SeedIdentity}, programID)
}

// Equal is a small helper so callers don't reach for bytes.Equal on a
// fixed array directly (arrays already compare with ==, this exists for
// the slice-typed call sites in program/).
func Equal(a, b Pubkey) bool { return bytes.Equal(a[:], b[:]) }
