package node

import (
	"context"
	"testing"
)

func TestInFlightTryStartRejectsDuplicate(t *testing.T) {
	f := NewInFlight()
	var queueAddr, id [32]byte
	id[0] = 1

	_, cancel1 := context.WithCancel(context.Background())
	if !f.TryStart(queueAddr, id, 10, cancel1) {
		t.Fatal("first TryStart for a fresh id should succeed")
	}
	_, cancel2 := context.WithCancel(context.Background())
	if f.TryStart(queueAddr, id, 10, cancel2) {
		t.Fatal("second TryStart for the same id should be rejected")
	}
	if !f.IsInFlight(queueAddr, id) {
		t.Fatal("expected id to be reported as in-flight")
	}
}

func TestInFlightFinishAllowsRestart(t *testing.T) {
	f := NewInFlight()
	var queueAddr, id [32]byte
	id[0] = 2

	_, cancel := context.WithCancel(context.Background())
	f.TryStart(queueAddr, id, 42, cancel)

	slot, ok := f.Finish(queueAddr, id)
	if !ok || slot != 42 {
		t.Fatalf("expected Finish to return the tracked enqueue slot, got %d ok=%v", slot, ok)
	}
	if f.IsInFlight(queueAddr, id) {
		t.Fatal("id should no longer be in-flight after Finish")
	}

	_, cancel2 := context.WithCancel(context.Background())
	if !f.TryStart(queueAddr, id, 43, cancel2) {
		t.Fatal("should be able to restart tracking after Finish")
	}
}

func TestInFlightReconcileSnapshotRemovesVanishedEntries(t *testing.T) {
	f := NewInFlight()
	var queueAddr, idGone, idStill [32]byte
	idGone[0] = 1
	idStill[0] = 2

	cancelled := false
	_, cancelGone := context.WithCancel(context.Background())
	f.TryStart(queueAddr, idGone, 100, func() { cancelled = true; cancelGone() })
	_, cancelStill := context.WithCancel(context.Background())
	f.TryStart(queueAddr, idStill, 200, cancelStill)

	vanished := f.ReconcileSnapshot(queueAddr, map[[32]byte]bool{idStill: true})
	if len(vanished) != 1 {
		t.Fatalf("expected exactly one vanished id, got %d", len(vanished))
	}
	if slot, ok := vanished[idGone]; !ok || slot != 100 {
		t.Fatalf("expected vanished[idGone] == 100, got %d ok=%v", slot, ok)
	}
	if !cancelled {
		t.Fatal("expected the vanished id's cancel func to be invoked")
	}
	if f.IsInFlight(queueAddr, idGone) {
		t.Fatal("vanished id should no longer be tracked as in-flight")
	}
	if !f.IsInFlight(queueAddr, idStill) {
		t.Fatal("still-present id must remain tracked")
	}
}

func TestInFlightCancelAllInvokesEveryCancelFunc(t *testing.T) {
	f := NewInFlight()
	var queueAddr [32]byte
	called := 0
	for i := 0; i < 3; i++ {
		var id [32]byte
		id[0] = byte(i + 1)
		f.TryStart(queueAddr, id, uint64(i), func() { called++ })
	}
	f.CancelAll()
	if called != 3 {
		t.Fatalf("expected all 3 cancel funcs invoked, got %d", called)
	}
}
