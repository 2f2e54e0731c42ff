package node

import (
	"context"
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/queue"
	"github.com/ephemeral-labs/vrf-oracle/vrf"
	"github.com/ephemeral-labs/vrf-oracle/workerstore"
)

type stubLatency struct {
	observed bool
}

func (s *stubLatency) Observe(queueKey string, enqueueSlot, responseSlot uint64) {
	s.observed = true
}

// stubCollector is an in-memory StatsCollector for asserting which
// counters a fulfillment attempt bumps.
type stubCollector struct {
	reconciled, proofsSubmitted, sent, failed, purged int
}

func (s *stubCollector) IncrementRequestsReconciled() { s.reconciled++ }
func (s *stubCollector) IncrementProofsSubmitted()    { s.proofsSubmitted++ }
func (s *stubCollector) IncrementTransactionsSent()   { s.sent++ }
func (s *stubCollector) IncrementTransactionsFailed() { s.failed++ }
func (s *stubCollector) IncrementRequestsPurged()     { s.purged++ }

// stubStore is an in-memory workerstore.Store for asserting crash-
// recovery bookkeeping without standing up BadgerDB.
type stubStore struct {
	inFlight  map[string]workerstore.InFlightEntry
	processed map[string]bool
}

func newStubStore() *stubStore {
	return &stubStore{inFlight: map[string]workerstore.InFlightEntry{}, processed: map[string]bool{}}
}

func (s *stubStore) SaveInFlight(id string, e workerstore.InFlightEntry) error {
	s.inFlight[id] = e
	return nil
}
func (s *stubStore) GetInFlight(id string) (workerstore.InFlightEntry, bool) {
	e, ok := s.inFlight[id]
	return e, ok
}
func (s *stubStore) DeleteInFlight(id string) error {
	delete(s.inFlight, id)
	return nil
}
func (s *stubStore) AllInFlight() map[string]workerstore.InFlightEntry { return s.inFlight }
func (s *stubStore) MarkProcessed(id string) error                     { s.processed[id] = true; return nil }
func (s *stubStore) IsProcessed(id string) bool                        { return s.processed[id] }
func (s *stubStore) Close() error                                      { return nil }

func newTestFulfiller(t *testing.T, rpc *fakeRPC) (*fulfiller, *stubLatency) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var identity accounts.Pubkey
	copy(identity[:], pub)

	vrfManager, err := vrf.NewManager(make([]byte, 64))
	if err != nil {
		t.Fatalf("vrf.NewManager: %v", err)
	}

	cache := NewBlockhashCache(rpc, time.Hour)
	cache.Update(context.Background())

	lat := &stubLatency{}
	return &fulfiller{
		rpc:            rpc,
		blockhashes:    cache,
		vrfManager:     vrfManager,
		signer:         priv,
		programID:      accounts.Pubkey{1},
		identity:       identity,
		identityPDA:    accounts.Pubkey{2},
		oracleDataAddr: accounts.Pubkey{3},
		latency:        lat,
	}, lat
}

func TestFulfillSubmitsProvideRandomnessForFreshItem(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSlot(1000)
	f, lat := newTestFulfiller(t, rpc)

	item := queue.Item{
		Slot: 995,
		Args: nil,
	}
	item.ID[0] = 0xAB

	if err := f.fulfill(context.Background(), accounts.Pubkey{9}, 0, item); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected exactly one transaction sent, got %d", len(rpc.sent))
	}
	if !lat.observed {
		t.Fatal("expected latency observation on success")
	}
}

func TestFulfillPurgesItemPastTTL(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSlot(20000)
	f, _ := newTestFulfiller(t, rpc)

	item := queue.Item{Slot: 100}
	item.ID[0] = 0xCD

	if err := f.fulfill(context.Background(), accounts.Pubkey{9}, 0, item); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if len(rpc.sent) != 1 {
		t.Fatalf("expected exactly one purge transaction sent, got %d", len(rpc.sent))
	}
}

func TestFulfillRetriesThenGivesUpOnPersistentSendFailure(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSlot(1000)
	rpc.sendErr = errAccountNotFound
	f, _ := newTestFulfiller(t, rpc)
	f.backoffUnit = time.Microsecond

	item := queue.Item{Slot: 995}
	item.ID[0] = 0xEF

	err := f.fulfill(context.Background(), accounts.Pubkey{9}, 0, item)
	if err == nil {
		t.Fatal("expected fulfill to give up after exhausting retries")
	}
	if len(rpc.sent) != 0 {
		t.Fatal("a failing SendTransaction should never be recorded as sent")
	}
}

func TestFulfillMarksProcessedAndCountsStats(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSlot(1000)
	f, _ := newTestFulfiller(t, rpc)

	store := newStubStore()
	collector := &stubCollector{}
	f.store = store
	f.collector = collector

	item := queue.Item{Slot: 995}
	item.ID[0] = 0x77

	if err := f.fulfill(context.Background(), accounts.Pubkey{9}, 0, item); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	if !store.IsProcessed(accounts.Pubkey(item.ID).String()) {
		t.Fatal("expected the request id to be marked processed in the store")
	}
	if collector.proofsSubmitted != 1 {
		t.Fatalf("expected 1 proof submitted, got %d", collector.proofsSubmitted)
	}
	if collector.sent != 1 {
		t.Fatalf("expected 1 transaction sent, got %d", collector.sent)
	}
	if collector.failed != 0 {
		t.Fatalf("expected 0 transactions failed, got %d", collector.failed)
	}
}

func TestFulfillCountsPurgeAndFailureStats(t *testing.T) {
	rpc := newFakeRPC()
	rpc.setSlot(20000)
	f, _ := newTestFulfiller(t, rpc)
	collector := &stubCollector{}
	f.collector = collector

	item := queue.Item{Slot: 100}
	item.ID[0] = 0x88

	if err := f.fulfill(context.Background(), accounts.Pubkey{9}, 0, item); err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if collector.purged != 1 {
		t.Fatalf("expected 1 purge recorded, got %d", collector.purged)
	}

	rpc2 := newFakeRPC()
	rpc2.setSlot(1000)
	rpc2.sendErr = errAccountNotFound
	f2, _ := newTestFulfiller(t, rpc2)
	f2.backoffUnit = time.Microsecond
	collector2 := &stubCollector{}
	f2.collector = collector2

	badItem := queue.Item{Slot: 995}
	badItem.ID[0] = 0x99
	if err := f2.fulfill(context.Background(), accounts.Pubkey{9}, 0, badItem); err == nil {
		t.Fatal("expected fulfill to give up after exhausting retries")
	}
	if collector2.failed == 0 {
		t.Fatal("expected at least one transaction-failed count")
	}
}
