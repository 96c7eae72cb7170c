// Package hostvm implements the host side of the Muta syscall ABI for tests
// and local runs. A VM executes gate calls against an abstract guest Memory
// and records what the guest did.
package hostvm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/rafaelescrich/mutago/abi"
)

// ContractHandler serves a cross-contract call to one address.
type ContractHandler func(args []byte) ([]byte, error)

// ServiceKind tells a service handler which call code reached it.
type ServiceKind int

const (
	ServiceCall ServiceKind = iota
	ServiceRead
	ServiceWrite
)

func (k ServiceKind) String() string {
	switch k {
	case ServiceRead:
		return "read"
	case ServiceWrite:
		return "write"
	default:
		return "call"
	}
}

// ServiceRequest is one service invocation from a guest.
type ServiceRequest struct {
	Kind    ServiceKind
	Service string
	Method  string
	Payload []byte
}

// ServiceHandler serves every method of one service.
type ServiceHandler func(req ServiceRequest) ([]byte, error)

// Event is one emit_event call.
type Event struct {
	Name string
	Data string
}

// Outcome is what a guest invocation produced.
type Outcome struct {
	Exited   bool
	ExitCode uint64
	Return   []byte
	Debug    []string
	Events   []Event
	// Err is the reason the guest was stopped other than a plain exit. An
	// aborted guest has both Exited and Err set.
	Err error
}

// VM is a reference host. It is not safe for concurrent guests; the ABI is
// strictly single-threaded.
type VM struct {
	Context Context
	Storage *Storage

	contracts map[string]ContractHandler
	services  map[string]ServiceHandler
	logger    *slog.Logger

	charged uint64
	outcome Outcome
}

type Option func(*VM)

func WithContext(ctx Context) Option {
	return func(vm *VM) { vm.Context = ctx }
}

func WithLogger(logger *slog.Logger) Option {
	return func(vm *VM) { vm.logger = logger }
}

func WithStorage(s *Storage) Option {
	return func(vm *VM) { vm.Storage = s }
}

// New returns a VM over DefaultContext and empty storage. Storage entries in
// the context are seeded into the VM's storage.
func New(opts ...Option) *VM {
	vm := &VM{
		Context:   DefaultContext(),
		contracts: make(map[string]ContractHandler),
		services:  make(map[string]ServiceHandler),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(vm)
	}
	if vm.Storage == nil {
		vm.Storage = NewStorage()
	}
	for k, v := range vm.Context.Storage {
		vm.Storage.Set([]byte(k), []byte(v))
	}
	return vm
}

func (vm *VM) RegisterContract(address string, h ContractHandler) {
	vm.contracts[address] = h
}

func (vm *VM) RegisterService(name string, h ServiceHandler) {
	vm.services[name] = h
}

// Outcome returns a copy of what the guest has done so far.
func (vm *VM) Outcome() Outcome {
	out := vm.outcome
	out.Return = bytes.Clone(vm.outcome.Return)
	out.Debug = append([]string(nil), vm.outcome.Debug...)
	out.Events = append([]Event(nil), vm.outcome.Events...)
	return out
}

// Halted reports whether the guest has been terminated.
func (vm *VM) Halted() bool {
	return vm.outcome.Exited || vm.outcome.Err != nil
}

// Fail terminates the guest with err, unless it already halted.
func (vm *VM) Fail(err error) {
	if vm.Halted() {
		return
	}
	vm.outcome.Err = err
	vm.logger.Warn("guest stopped", "error", err)
}

// PanicExitCode is the exit code of a guest that panicked.
const PanicExitCode = 1

// Exit records an exit reached without the exit call, such as a runtime
// that ends the program through its own exit path. The return payload is
// kept.
func (vm *VM) Exit(code uint64) {
	if vm.Halted() {
		return
	}
	vm.outcome.Exited = true
	vm.outcome.ExitCode = code
	vm.logger.Debug("guest exited", "code", code, "return_len", len(vm.outcome.Return))
}

// Abort ends the guest the way a panic does: the return payload is
// discarded, the guest exits with code and reason is kept in Outcome.Err.
func (vm *VM) Abort(code uint64, reason error) {
	if vm.Halted() {
		return
	}
	vm.outcome.Exited = true
	vm.outcome.ExitCode = code
	vm.outcome.Return = nil
	vm.outcome.Err = reason
	vm.logger.Warn("guest aborted", "code", code, "error", reason)
}

// RecordDebug appends a line to the debug output, for diagnostics the guest
// emitted outside the debug call.
func (vm *VM) RecordDebug(line string) {
	vm.outcome.Debug = append(vm.outcome.Debug, line)
}

// Dispatch executes one gate call. ops[7] is the call code. A non-nil error
// means the guest must not run again: an *ExitError for the exit call,
// anything else for a fault.
func (vm *VM) Dispatch(mem Memory, ops [8]uint64) (uint64, error) {
	if vm.Halted() {
		return 0, fmt.Errorf("%w: guest already halted", ErrInvalidContext)
	}
	code := ops[7]
	if name, ok := abi.Name(code); ok {
		vm.logger.Debug("syscall", "code", code, "name", name)
	}

	vm.charged += vm.Context.SyscallCost
	if limit := vm.Context.CycleLimit; limit > 0 && vm.cyclesUsed() > limit {
		err := fmt.Errorf("%w: used %d of %d", ErrCyclesExhausted, vm.cyclesUsed(), limit)
		vm.Fail(err)
		return 0, err
	}

	ret, err := vm.dispatch(mem, code, ops)
	if err != nil {
		var exit *ExitError
		if errors.As(err, &exit) {
			vm.outcome.Exited = true
			vm.outcome.ExitCode = exit.Code
			vm.logger.Debug("guest exited", "code", exit.Code, "return_len", len(vm.outcome.Return))
		} else {
			vm.Fail(err)
		}
		return 0, err
	}
	return ret, nil
}

func (vm *VM) cyclesUsed() uint64 {
	return vm.Context.CyclesUsed + vm.charged
}

func (vm *VM) dispatch(mem Memory, code uint64, a [8]uint64) (uint64, error) {
	ctx := &vm.Context
	switch code {
	case abi.SysExit:
		return 0, &ExitError{Code: a[0]}

	case abi.SysDebug:
		s, err := ReadCString(mem, a[0])
		if err != nil {
			return 0, err
		}
		vm.outcome.Debug = append(vm.outcome.Debug, s)
		vm.logger.Debug("guest debug", "msg", s)
		return 0, nil

	case abi.SysAssert:
		if a[0] != 0 {
			return 0, nil
		}
		msg, err := ReadCString(mem, a[1])
		if err != nil {
			return 0, err
		}
		return 0, &AssertionError{Msg: msg}

	case abi.SysLoadArgs:
		return writeOutput(mem, a[0], a[1], []byte(ctx.Args))

	case abi.SysRet:
		data, err := ReadBytes(mem, a[0], a[1])
		if err != nil {
			return 0, err
		}
		vm.outcome.Return = data
		return 0, nil

	case abi.SysCycleLimit:
		return ctx.CycleLimit, nil
	case abi.SysCyclePrice:
		return ctx.CyclePrice, nil
	case abi.SysCycleUsed:
		return vm.cyclesUsed(), nil

	case abi.SysOrigin:
		return 0, writeFixed(mem, a[0], ctx.Origin, abi.AddressHexLen)
	case abi.SysCaller:
		return 0, writeFixed(mem, a[0], ctx.Caller, abi.AddressHexLen)
	case abi.SysAddress:
		return 0, writeFixed(mem, a[0], ctx.Address, abi.AddressHexLen)

	case abi.SysIsInit:
		if ctx.IsInit {
			return 1, nil
		}
		return 0, nil
	case abi.SysBlockHeight:
		return ctx.BlockHeight, nil
	case abi.SysTimestamp:
		return ctx.Timestamp, nil

	case abi.SysTxHash:
		return 0, writeFixed(mem, a[0], ctx.TxHash, abi.HashHexLen)
	case abi.SysTxNonce:
		return 0, writeFixed(mem, a[0], ctx.TxNonce, abi.HashHexLen)

	case abi.SysExtra:
		return writeOutput(mem, a[0], a[1], []byte(ctx.Extra))

	case abi.SysGetStorage:
		key, err := ReadBytes(mem, a[0], a[1])
		if err != nil {
			return 0, err
		}
		return writeOutput(mem, a[2], a[3], vm.Storage.Get(key))

	case abi.SysSetStorage:
		key, err := ReadBytes(mem, a[0], a[1])
		if err != nil {
			return 0, err
		}
		value, err := ReadBytes(mem, a[2], a[3])
		if err != nil {
			return 0, err
		}
		vm.Storage.Set(key, value)
		return 0, nil

	case abi.SysContractCall:
		return vm.contractCall(mem, a)

	case abi.SysServiceCall:
		return vm.serviceCall(mem, ServiceCall, a)
	case abi.SysServiceRead:
		return vm.serviceCall(mem, ServiceRead, a)
	case abi.SysServiceWrite:
		return vm.serviceCall(mem, ServiceWrite, a)

	case abi.SysEmitEvent:
		name, err := ReadBytes(mem, a[0], a[1])
		if err != nil {
			return 0, err
		}
		data, err := ReadBytes(mem, a[2], a[3])
		if err != nil {
			return 0, err
		}
		vm.outcome.Events = append(vm.outcome.Events, Event{Name: string(name), Data: string(data)})
		return 0, nil

	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownCallCode, code)
	}
}

func (vm *VM) contractCall(mem Memory, a [8]uint64) (uint64, error) {
	addr, err := ReadBytes(mem, a[0], abi.AddressHexLen)
	if err != nil {
		return 0, err
	}
	h, ok := vm.contracts[string(addr)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownContract, addr)
	}
	args, err := ReadBytes(mem, a[1], a[2])
	if err != nil {
		return 0, err
	}
	ret, err := h(args)
	if err != nil {
		return 0, fmt.Errorf("contract %s: %w", addr, err)
	}
	return writeOutput(mem, a[3], a[4], ret)
}

func (vm *VM) serviceCall(mem Memory, kind ServiceKind, a [8]uint64) (uint64, error) {
	service, err := ReadCString(mem, a[0])
	if err != nil {
		return 0, err
	}
	method, err := ReadCString(mem, a[1])
	if err != nil {
		return 0, err
	}
	payload, err := ReadBytes(mem, a[2], a[3])
	if err != nil {
		return 0, err
	}
	h, ok := vm.services[service]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	ret, err := h(ServiceRequest{Kind: kind, Service: service, Method: method, Payload: payload})
	if err != nil {
		return 0, fmt.Errorf("service %s.%s (%s): %w", service, method, kind, err)
	}
	return writeOutput(mem, a[4], a[5], ret)
}
