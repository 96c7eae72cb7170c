//go:build !tinygo

package mutago

import (
	"fmt"
	"runtime"

	"github.com/rafaelescrich/mutago/hostvm"
)

// MockRuntime is an in-process host for testing guest code with plain Go.
// Operand pointers are real addresses in the test process, resolved against
// the buffers the guest passed to the call.
type MockRuntime struct {
	*hostvm.VM
}

// NewMockRuntime creates a mock host over a fresh reference VM.
func NewMockRuntime(opts ...hostvm.Option) *MockRuntime {
	return &MockRuntime{VM: hostvm.New(opts...)}
}

// UseRuntime installs mock as the active gate.
func UseRuntime(mock *MockRuntime) {
	SetGate(mock)
}

// Syscall executes one gate call. When the VM halts the guest, the calling
// goroutine is ended with runtime.Goexit, so exit never returns to guest code.
func (m *MockRuntime) Syscall(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64 {
	ret, err := m.Dispatch(processMemory{}, [8]uint64{a0, a1, a2, a3, a4, a5, a6, code})
	if err != nil {
		runtime.Goexit()
	}
	return ret
}

// Run executes a guest program, typically a function calling Entry, on its
// own goroutine with mock installed, and returns what the guest did.
func (m *MockRuntime) Run(program func()) hostvm.Outcome {
	prev := SetGate(m)
	defer SetGate(prev)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				m.Fail(fmt.Errorf("%w: %v", hostvm.ErrGuestPanic, r))
			}
		}()
		program()
	}()
	<-done
	return m.Outcome()
}

// processMemory resolves operand addresses against the buffers passed to the
// call in flight. Anything else is a memory fault, as it would be on a real
// host.
type processMemory struct{}

func (processMemory) Read(ptr, n uint64) ([]byte, error) {
	b, ok := operandSlice(ptr, n)
	if !ok {
		return nil, fmt.Errorf("%w: read %d bytes at %#x", hostvm.ErrMemoryAccess, n, ptr)
	}
	return b, nil
}

func (processMemory) Write(ptr uint64, b []byte) error {
	dst, ok := operandSlice(ptr, uint64(len(b)))
	if !ok {
		return fmt.Errorf("%w: write %d bytes at %#x", hostvm.ErrMemoryAccess, len(b), ptr)
	}
	copy(dst, b)
	return nil
}
