// Package compute hosts a sandboxed wazero runtime for executing WASM
// modules that stand in for on-chain callback programs in integration
// tests. There is no BPF VM available to a Go process, so tests that
// want to exercise ProvideRandomness's cross-program dispatch run a
// WASM analogue of the callback program instead.
package compute

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WasmRuntime is a single wazero runtime shared across module
// instantiations.
type WasmRuntime struct {
	runtime wazero.Runtime
}

func NewWasmRuntime(ctx context.Context) *WasmRuntime {
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	return &WasmRuntime{runtime: r}
}

// ExecuteExported compiles and instantiates wasmBuffer and calls its
// exported function funcName with params. If wasmBuffer is empty,
// ExecuteExported skips instantiation and returns a fixed acceptance
// result, so callers can exercise the dispatch path in tests without
// shipping a real WASM binary.
func (r *WasmRuntime) ExecuteExported(ctx context.Context, wasmBuffer []byte, funcName string, params ...uint64) ([]uint64, error) {
	if len(wasmBuffer) == 0 {
		return []uint64{1}, nil
	}

	mod, err := r.runtime.Instantiate(ctx, wasmBuffer)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}
	defer mod.Close(ctx)

	fn := mod.ExportedFunction(funcName)
	if fn == nil {
		return nil, fmt.Errorf("module does not export %q", funcName)
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("call to %q failed: %w", funcName, err)
	}
	return results, nil
}

// Close releases the runtime and every module compiled against it.
func (r *WasmRuntime) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}
