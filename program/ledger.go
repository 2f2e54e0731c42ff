package program

import (
	"sync"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
)

// Ledger is the minimal account runtime the handlers below operate
// against: account bodies keyed by address plus each address's lamport
// balance. It stands in for the real transaction-processing runtime the
// on-chain program would run under. Body returns a caller-owned copy, so
// a handler can read and mutate freely before staging the result back
// with SetBody; every Ledger method below that mutates bodies or
// lamports (SetBody, TransferFromProgramOwned, CloseAccount, ...) takes
// effect immediately, so a handler that must not leave a partial effect
// behind on failure (ProvideRandomness's CPI-then-fee ordering, for
// instance) has to sequence its own calls to these methods accordingly,
// not rely on the Ledger to roll anything back.
type Ledger struct {
	mu       sync.RWMutex
	bodies   map[accounts.Pubkey][]byte
	lamports map[accounts.Pubkey]uint64
	owners   map[accounts.Pubkey]accounts.Pubkey // account -> owning program
}

func NewLedger() *Ledger {
	return &Ledger{
		bodies:   make(map[accounts.Pubkey][]byte),
		lamports: make(map[accounts.Pubkey]uint64),
		owners:   make(map[accounts.Pubkey]accounts.Pubkey),
	}
}

func (l *Ledger) Exists(addr accounts.Pubkey) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.bodies[addr]
	return ok
}

func (l *Ledger) Owner(addr accounts.Pubkey) accounts.Pubkey {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.owners[addr]
}

func (l *Ledger) Lamports(addr accounts.Pubkey) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lamports[addr]
}

// Body returns a copy of the account's bytes, safe for a handler to
// mutate in place before staging it back with SetBody.
func (l *Ledger) Body(addr accounts.Pubkey) []byte {
	l.mu.RLock()
	defer l.mu.RUnlock()
	b := l.bodies[addr]
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// CreateAccount installs a fresh, zeroed account of size bytes owned by
// owner, crediting lamports from the payer. Fails if the address is
// already in use.
func (l *Ledger) CreateAccount(addr, owner, payer accounts.Pubkey, size int, lamports uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.bodies[addr]; ok {
		return Errf(InvalidArgument, "account %s already exists", addr)
	}
	if l.lamports[payer] < lamports {
		return Err(InsufficientFunds)
	}
	l.lamports[payer] -= lamports
	l.bodies[addr] = make([]byte, size)
	l.lamports[addr] = lamports
	l.owners[addr] = owner
	return nil
}

// SetBody overwrites addr's stored bytes in place. The handler calling
// this must already have validated owner/seeds for addr.
func (l *Ledger) SetBody(addr accounts.Pubkey, body []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bodies[addr] = body
}

// CloseAccount zeroes and removes addr, refunding its lamports to dest.
func (l *Ledger) CloseAccount(addr, dest accounts.Pubkey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lamports[dest] += l.lamports[addr]
	delete(l.bodies, addr)
	delete(l.lamports, addr)
	delete(l.owners, addr)
}

// Credit adds lamports to addr's balance directly (used for the
// requester-signed inbound system-program transfer of spec §4.4, which
// does not require owner checks since the requester signs it).
func (l *Ledger) Credit(addr accounts.Pubkey, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lamports[addr] += amount
}

// TransferFromProgramOwned moves amount lamports directly from an
// account this program owns to any non-zero destination (only the
// source's owner is checked), with the checked-arithmetic discipline
// spec §4.4 requires: no system-program CPI, since a PDA cannot sign a
// system transfer without its seeds and there is no benefit to the
// indirection.
func (l *Ledger) TransferFromProgramOwned(programID, from, to accounts.Pubkey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if from.IsZero() || to.IsZero() {
		return Err(InvalidArgument)
	}
	if l.owners[from] != programID {
		return Errf(Unauthorized, "source %s is not owned by this program", from)
	}
	bal := l.lamports[from]
	if bal < amount {
		return Err(InsufficientFunds)
	}
	newFrom := bal - amount
	newTo, carry := addUint64(l.lamports[to], amount)
	if carry {
		return Err(InvalidArgument)
	}
	l.lamports[from] = newFrom
	l.lamports[to] = newTo
	return nil
}

// TransferInbound moves amount lamports from a requester-signed account
// into a program-owned PDA via the system program (spec §4.4: inbound
// fees do not need the PDA's own signature, the requester's does the
// work).
func (l *Ledger) TransferInbound(from, to accounts.Pubkey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lamports[from] < amount {
		return Err(InsufficientFunds)
	}
	l.lamports[from] -= amount
	l.lamports[to] += amount
	return nil
}

func addUint64(a, b uint64) (sum uint64, overflow bool) {
	sum = a + b
	return sum, sum < a
}
