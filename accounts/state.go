package accounts

import (
	"encoding/binary"
	"errors"

	"github.com/ephemeral-labs/vrf-oracle/queue"
)

// Discriminator identifies an account's schema. Values are fixed by
// spec §6 and must not be renumbered.
type Discriminator uint64

const (
	DiscriminatorOracles Discriminator = 0
	DiscriminatorOracle  Discriminator = 1
	DiscriminatorQueue   Discriminator = 2
	// DiscriminatorCounter is reserved: spec §6 enumerates it in the
	// discriminator space but §3's data model defines no Counter
	// account family. No live account ever carries this value; it
	// exists so the discriminator space stays wire-compatible with
	// readers that know about it.
	DiscriminatorCounter Discriminator = 3
)

const DiscriminatorSize = 8

var ErrWrongDiscriminator = errors.New("accounts: discriminator mismatch")

func ReadDiscriminator(data []byte) (Discriminator, error) {
	if len(data) < DiscriminatorSize {
		return 0, errors.New("accounts: account data shorter than discriminator")
	}
	return Discriminator(binary.LittleEndian.Uint64(data[:DiscriminatorSize])), nil
}

func WriteDiscriminator(data []byte, d Discriminator) {
	binary.LittleEndian.PutUint64(data[:DiscriminatorSize], uint64(d))
}

// Body returns the account bytes following the 8-byte discriminator,
// after checking it matches want.
func Body(data []byte, want Discriminator) ([]byte, error) {
	got, err := ReadDiscriminator(data)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, ErrWrongDiscriminator
	}
	return data[DiscriminatorSize:], nil
}

// OraclesRegistry is the decoded body of the Oracles registry account:
// a set of oracle identity public keys, mutated only through
// ModifyOracle.
type OraclesRegistry struct {
	Identities []Pubkey
}

// Encode serializes the registry as a length-prefixed list of 32-byte
// identities (spec §6).
func (r OraclesRegistry) Encode() []byte {
	out := make([]byte, 4+len(r.Identities)*32)
	binary.LittleEndian.PutUint32(out[:4], uint32(len(r.Identities)))
	for i, id := range r.Identities {
		copy(out[4+i*32:4+(i+1)*32], id[:])
	}
	return out
}

func DecodeOraclesRegistry(body []byte) (OraclesRegistry, error) {
	if len(body) < 4 {
		return OraclesRegistry{}, errors.New("accounts: oracles registry body too short")
	}
	n := binary.LittleEndian.Uint32(body[:4])
	need := 4 + int(n)*32
	if len(body) < need {
		return OraclesRegistry{}, errors.New("accounts: oracles registry body truncated")
	}
	ids := make([]Pubkey, n)
	for i := range ids {
		copy(ids[i][:], body[4+i*32:4+(i+1)*32])
	}
	return OraclesRegistry{Identities: ids}, nil
}

// Contains reports whether identity is a member of the registry.
func (r OraclesRegistry) Contains(identity Pubkey) bool {
	for _, id := range r.Identities {
		if id == identity {
			return true
		}
	}
	return false
}

// Add returns a copy of the registry with identity appended. Callers
// must check Contains first; ModifyOracle's invariant is a set, not a
// multiset.
func (r OraclesRegistry) Add(identity Pubkey) OraclesRegistry {
	out := make([]Pubkey, len(r.Identities), len(r.Identities)+1)
	copy(out, r.Identities)
	out = append(out, identity)
	return OraclesRegistry{Identities: out}
}

// Remove returns a copy of the registry with identity excluded.
func (r OraclesRegistry) Remove(identity Pubkey) OraclesRegistry {
	out := make([]Pubkey, 0, len(r.Identities))
	for _, id := range r.Identities {
		if id != identity {
			out = append(out, id)
		}
	}
	return OraclesRegistry{Identities: out}
}

// OracleDataSize is the fixed, padded size of an Oracle data account
// body: 32 (vrf_pubkey) + 8 (registration_slot) + 1 (open_queue) + 7
// padding to 8-byte alignment.
const OracleDataSize = 32 + 8 + 1 + 7

// OracleData is the per-identity Oracle account: its VRF public key,
// the slot it was registered at, and how many queues it currently owns
// (spec §3).
type OracleData struct {
	VRFPubkey       [32]byte
	RegistrationSlot uint64
	OpenQueue       uint8
}

func (o OracleData) Encode() []byte {
	out := make([]byte, OracleDataSize)
	copy(out[:32], o.VRFPubkey[:])
	binary.LittleEndian.PutUint64(out[32:40], o.RegistrationSlot)
	out[40] = o.OpenQueue
	return out
}

func DecodeOracleData(body []byte) (OracleData, error) {
	if len(body) < OracleDataSize {
		return OracleData{}, errors.New("accounts: oracle data body too short")
	}
	var o OracleData
	copy(o.VRFPubkey[:], body[:32])
	o.RegistrationSlot = binary.LittleEndian.Uint64(body[32:40])
	o.OpenQueue = body[40]
	return o, nil
}

// QueueView binds a Queue account's body (after its discriminator) to
// the packed arena engine in package queue.
func QueueView(data []byte) (*queue.View, error) {
	body, err := Body(data, DiscriminatorQueue)
	if err != nil {
		return nil, err
	}
	return queue.NewView(body)
}

// NewQueueAccountData allocates a fresh Queue account body of the given
// total size (discriminator included), stamped with its index.
func NewQueueAccountData(size int, index uint8) ([]byte, error) {
	data := make([]byte, size)
	WriteDiscriminator(data, DiscriminatorQueue)
	v, err := queue.NewView(data[DiscriminatorSize:])
	if err != nil {
		return nil, err
	}
	v.SetIndex(index)
	return data, nil
}
