package functions

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/program"
)

func randomPubkey(t *testing.T) accounts.Pubkey {
	t.Helper()
	var pk accounts.Pubkey
	if _, err := rand.Read(pk[:]); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	return pk
}

func TestDispatchRoutesToRegisteredModule(t *testing.T) {
	ctx := context.Background()
	sim := NewCallbackSimulator(ctx)
	defer sim.Close(ctx)

	programID := randomPubkey(t)
	sim.Register(programID, nil)

	cpi := program.CPIDescriptor{ProgramID: programID, Data: []byte("delivered randomness")}
	result, err := sim.Dispatch(ctx, cpi)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result != 1 {
		t.Fatalf("expected acceptance result 1, got %d", result)
	}
}

func TestDispatchRejectsUnregisteredProgram(t *testing.T) {
	ctx := context.Background()
	sim := NewCallbackSimulator(ctx)
	defer sim.Close(ctx)

	cpi := program.CPIDescriptor{ProgramID: randomPubkey(t), Data: []byte("x")}
	if _, err := sim.Dispatch(ctx, cpi); err == nil {
		t.Fatal("expected dispatch to an unregistered program to fail")
	}
}
