// Package wasmhost runs guest programs compiled to WebAssembly under wazero.
// The guest's gate import, env.syscall, is served by a hostvm.VM.
package wasmhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/rafaelescrich/mutago/hostvm"
)

const (
	// HostModule and HostFunction name the gate import.
	HostModule   = "env"
	HostFunction = "syscall"
)

var (
	ErrInvalidModule = errors.New("wasmhost: invalid module")
	ErrNoEntry       = errors.New("wasmhost: entry function not exported")
	ErrNoExit        = errors.New("wasmhost: guest returned without calling exit")
	ErrTrap          = errors.New("wasmhost: guest trapped")
	ErrProcExit      = errors.New("wasmhost: guest exited through proc_exit")
	ErrInterrupted   = errors.New("wasmhost: guest interrupted")
)

// RuntimeConfig holds configuration for the wasm runtime.
type RuntimeConfig struct {
	// MaxMemoryPages is the maximum number of 64KB memory pages a guest may use.
	MaxMemoryPages uint32
	// Entry is the exported function Run calls.
	Entry string
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MaxMemoryPages: 256, // 16MB
		Entry:          "_start",
	}
}

// Runtime wraps a wazero.Runtime with the gate import and WASI installed.
// The caller must call Close when done.
type Runtime struct {
	inner  wazero.Runtime
	config RuntimeConfig
	logger *slog.Logger
}

func NewRuntime(ctx context.Context, cfg RuntimeConfig, logger *slog.Logger) (*Runtime, error) {
	def := DefaultRuntimeConfig()
	if cfg.MaxMemoryPages == 0 {
		cfg.MaxMemoryPages = def.MaxMemoryPages
	}
	if cfg.Entry == "" {
		cfg.Entry = def.Entry
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	rtCfg := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(cfg.MaxMemoryPages)
	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	// TinyGo's wasi target imports a handful of WASI functions even when
	// the program never uses them.
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}

	i64 := api.ValueTypeI64
	_, err := rt.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(gateCall),
			[]api.ValueType{i64, i64, i64, i64, i64, i64, i64, i64},
			[]api.ValueType{i64}).
		Export(HostFunction).
		Instantiate(ctx)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate host module: %w", err)
	}

	logger.Info("wasm runtime created",
		"max_memory_pages", cfg.MaxMemoryPages,
		"entry", cfg.Entry,
	)
	return &Runtime{inner: rt, config: cfg, logger: logger}, nil
}

// Close releases all resources held by the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	if err := r.inner.Close(ctx); err != nil {
		return fmt.Errorf("close wasm runtime: %w", err)
	}
	r.logger.Info("wasm runtime closed")
	return nil
}

// Run instantiates wasm, calls its entry function with vm serving the gate
// and returns what the guest did. The error is non-nil only when the module
// could not be run at all; guest failures are reported in Outcome.Err.
func (r *Runtime) Run(ctx context.Context, wasm []byte, vm *hostvm.VM) (hostvm.Outcome, error) {
	compiled, err := r.inner.CompileModule(ctx, wasm)
	if err != nil {
		return hostvm.Outcome{}, fmt.Errorf("%w: %v", ErrInvalidModule, err)
	}
	defer compiled.Close(ctx)

	ctx = withVM(ctx, vm)
	stdio := &debugWriter{vm: vm}
	// Anonymous so the same runtime can run the module again.
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStdout(stdio).
		WithStderr(stdio).
		WithStartFunctions()
	mod, err := r.inner.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return hostvm.Outcome{}, fmt.Errorf("%w: instantiate: %v", ErrInvalidModule, err)
	}
	defer mod.Close(ctx)

	entry := mod.ExportedFunction(r.config.Entry)
	if entry == nil {
		return hostvm.Outcome{}, fmt.Errorf("%w: %s", ErrNoEntry, r.config.Entry)
	}

	_, err = entry.Call(ctx)
	stdio.Flush()
	r.settle(ctx, vm, err)

	out := vm.Outcome()
	r.logger.Debug("guest finished",
		"exited", out.Exited,
		"code", out.ExitCode,
		"return_len", len(out.Return),
		"error", out.Err,
	)
	return out, nil
}

// settle records how the guest ended when it did not end through the gate.
// TinyGo's wasm targets cannot recover a panic: it prints to stdout and
// traps, or leaves through WASI proc_exit. Both end the guest the way a
// recovered panic does, so the payload is dropped and the exit code is
// PanicExitCode, or the code the guest passed to proc_exit.
func (r *Runtime) settle(ctx context.Context, vm *hostvm.VM, err error) {
	var exit *sys.ExitError
	switch {
	case vm.Halted():
	case err == nil:
		vm.Fail(ErrNoExit)
	case ctx.Err() != nil:
		vm.Fail(fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err()))
	case errors.As(err, &exit) && exit.ExitCode() == 0:
		vm.Exit(0)
	case errors.As(err, &exit):
		vm.Abort(uint64(exit.ExitCode()), fmt.Errorf("%w(%d)", ErrProcExit, exit.ExitCode()))
	default:
		vm.Abort(hostvm.PanicExitCode, fmt.Errorf("%w: %v", ErrTrap, err))
	}
}

type vmKey struct{}

func withVM(ctx context.Context, vm *hostvm.VM) context.Context {
	return context.WithValue(ctx, vmKey{}, vm)
}

// gateCall serves env.syscall. The stack holds the eight operands on entry
// and the result on return. When the VM halts the guest, the module is closed
// and execution unwinds with a wazero exit error.
func gateCall(ctx context.Context, mod api.Module, stack []uint64) {
	vm, ok := ctx.Value(vmKey{}).(*hostvm.VM)
	if !ok {
		panic(errors.New("wasmhost: syscall outside Run"))
	}

	var ops [8]uint64
	copy(ops[:], stack)
	ret, err := vm.Dispatch(guestMemory{mod.Memory()}, ops)
	if err != nil {
		code := uint32(1)
		var exit *hostvm.ExitError
		if errors.As(err, &exit) {
			code = uint32(exit.Code)
		}
		_ = mod.CloseWithExitCode(ctx, code)
		panic(sys.NewExitError(code))
	}
	stack[0] = ret
}
