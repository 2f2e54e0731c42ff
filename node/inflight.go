package node

import (
	"context"
	"sync"
)

// InFlight tracks, per queue, which request ids currently have an
// active fulfillment task in flight and the slot at which each was
// enqueued — the enqueue slot is needed later to feed
// oracle/pull.LatencyTracker.Observe once the task completes. Keyed
// "queue_string -> {id -> enqueue_slot}" per spec §4.5.
type InFlight struct {
	mu      sync.Mutex
	byQueue map[[32]byte]map[[32]byte]uint64
	cancel  map[[32]byte]context.CancelFunc
}

// NewInFlight returns an empty tracker.
func NewInFlight() *InFlight {
	return &InFlight{
		byQueue: make(map[[32]byte]map[[32]byte]uint64),
		cancel:  make(map[[32]byte]context.CancelFunc),
	}
}

// TryStart records id as in-flight for queueAddr and returns true, or
// returns false if a task for id is already running — the caller must
// not spawn a duplicate fulfillment task in that case.
func (f *InFlight) TryStart(queueAddr, id [32]byte, enqueueSlot uint64, cancel context.CancelFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids, ok := f.byQueue[queueAddr]
	if !ok {
		ids = make(map[[32]byte]uint64)
		f.byQueue[queueAddr] = ids
	}
	if _, already := ids[id]; already {
		return false
	}
	ids[id] = enqueueSlot
	f.cancel[id] = cancel
	return true
}

// Finish removes id's in-flight bookkeeping and returns its recorded
// enqueue slot plus whether it was found.
func (f *InFlight) Finish(queueAddr, id [32]byte) (enqueueSlot uint64, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := f.byQueue[queueAddr]
	if ids == nil {
		return 0, false
	}
	enqueueSlot, ok = ids[id]
	delete(ids, id)
	delete(f.cancel, id)
	return enqueueSlot, ok
}

// IsInFlight reports whether id already has an active task for
// queueAddr.
func (f *InFlight) IsInFlight(queueAddr, id [32]byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.byQueue[queueAddr][id]
	return ok
}

// ReconcileSnapshot cancels and removes every in-flight entry for
// queueAddr whose id is absent from present — a freshly observed set of
// item ids still in the queue. An id can go missing either because this
// worker's own fulfillment task already succeeded, or because some other
// actor (another oracle instance's retry, a permissionless
// PurgeExpiredRequests) removed it first; either way the task chasing it
// is cancelled and the bookkeeping is released so the id can be
// retracked if it ever reappears. The returned map carries each vanished
// id's recorded enqueue slot, for the caller to fold into its latency
// statistics.
func (f *InFlight) ReconcileSnapshot(queueAddr [32]byte, present map[[32]byte]bool) map[[32]byte]uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := f.byQueue[queueAddr]
	if len(ids) == 0 {
		return nil
	}

	vanished := make(map[[32]byte]uint64)
	for id, enqueueSlot := range ids {
		if present[id] {
			continue
		}
		if cancel, ok := f.cancel[id]; ok {
			cancel()
			delete(f.cancel, id)
		}
		delete(ids, id)
		vanished[id] = enqueueSlot
	}
	return vanished
}

// CancelAll cancels every active task, used during graceful shutdown.
func (f *InFlight) CancelAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, cancel := range f.cancel {
		cancel()
	}
}
