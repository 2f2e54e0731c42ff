package node

import (
	"context"
	"sync"
)

// fakeRPC is a minimal in-memory RPCClient used across node package
// tests: no network, deterministic slot/blockhash progression, and a
// record of submitted transactions for assertions.
type fakeRPC struct {
	mu sync.Mutex

	slot      uint64
	blockhash [32]byte

	accounts map[[32]byte][]byte

	sent      [][]byte
	confirmed map[string]bool

	sendErr error
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		accounts:  make(map[[32]byte][]byte),
		confirmed: make(map[string]bool),
	}
}

func (f *fakeRPC) GetSlot(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slot, nil
}

func (f *fakeRPC) setSlot(s uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slot = s
}

func (f *fakeRPC) GetLatestBlockhash(ctx context.Context) ([32]byte, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockhash, f.slot + 150, nil
}

func (f *fakeRPC) GetAccountInfo(ctx context.Context, addr [32]byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.accounts[addr]
	if !ok {
		return nil, errAccountNotFound
	}
	return append([]byte(nil), data...), nil
}

func (f *fakeRPC) setAccount(addr [32]byte, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[addr] = data
}

func (f *fakeRPC) GetProgramAccounts(ctx context.Context, programID [32]byte, filterSize int) (map[[32]byte][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[[32]byte][]byte)
	for k, v := range f.accounts {
		if filterSize <= 0 || len(v) == filterSize {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (f *fakeRPC) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, raw)
	sig := "sig-" + string(rune('a'+len(f.sent)))
	f.confirmed[sig] = true
	return sig, nil
}

func (f *fakeRPC) GetSignatureStatus(ctx context.Context, signature string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmed[signature], nil
}

var errAccountNotFound = fakeErr("account not found")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }
