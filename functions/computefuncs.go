// Package functions simulates the callback programs that consume
// delivered VRF randomness, for integration tests of ProvideRandomness's
// CPI dispatch path. A real deployment hands the CPIDescriptor to the
// runtime's cross-program invocation facility; here it is handed to a
// WASM module instead, since this module has no BPF loader to drive.
package functions

import (
	"context"

	"github.com/ephemeral-labs/vrf-oracle/accounts"
	"github.com/ephemeral-labs/vrf-oracle/compute"
	"github.com/ephemeral-labs/vrf-oracle/program"
)

// callbackEntrypoint is the exported WASM function a registered
// callback module must provide to receive dispatched randomness.
const callbackEntrypoint = "process_randomness"

// CallbackSimulator routes CPIDescriptors produced by ProvideRandomness
// to registered WASM modules, standing in for the on-chain programs
// those descriptors would otherwise address.
type CallbackSimulator struct {
	rt      *compute.WasmRuntime
	modules map[accounts.Pubkey][]byte
}

// NewCallbackSimulator starts a fresh WASM sandbox with no modules
// registered.
func NewCallbackSimulator(ctx context.Context) *CallbackSimulator {
	return &CallbackSimulator{
		rt:      compute.NewWasmRuntime(ctx),
		modules: make(map[accounts.Pubkey][]byte),
	}
}

// Register binds a compiled WASM binary to the program id a test's
// callback requests will name, so Dispatch can route to it. A nil or
// empty binary is legal: Dispatch then exercises only the routing and
// acceptance path, not real module execution.
func (c *CallbackSimulator) Register(programID accounts.Pubkey, wasmBinary []byte) {
	c.modules[programID] = wasmBinary
}

// Dispatch simulates the cross-program invocation described by cpi: it
// looks up the WASM binary registered for cpi.ProgramID and calls its
// process_randomness export, passing the length of the delivered
// payload. It returns an error if no module is registered for the
// target program, matching the runtime rejecting a CPI to an unloaded
// program.
func (c *CallbackSimulator) Dispatch(ctx context.Context, cpi program.CPIDescriptor) (uint64, error) {
	wasmBinary, ok := c.modules[cpi.ProgramID]
	if !ok {
		return 0, program.Errf(program.InvalidCallbackAccounts, "no callback module registered for %s", cpi.ProgramID)
	}

	results, err := c.rt.ExecuteExported(ctx, wasmBinary, callbackEntrypoint, uint64(len(cpi.Data)))
	if err != nil {
		return 0, err
	}
	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}

// Close releases the underlying WASM runtime.
func (c *CallbackSimulator) Close(ctx context.Context) error {
	return c.rt.Close(ctx)
}
