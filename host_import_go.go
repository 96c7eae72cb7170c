//go:build !tinygo

package mutago

import (
	"runtime"
	"unsafe"
)

// Regular Go builds have no host to call into. Tests attach MockRuntime with
// UseRuntime, which replaces this gate.

type hostGate struct{}

func (hostGate) Syscall(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64 {
	panic("mutago: no host attached, install a mock runtime with UseRuntime")
}

// Every buffer handed to the gate during one call is recorded here, so an
// in-process host resolves operand words back to the Go slices they came
// from instead of converting integers into pointers. Pinning keeps each
// buffer at the address recorded for it until the call returns.
var (
	pinner   runtime.Pinner
	operands [][]byte
)

func pin(b []byte) {
	pinner.Pin(unsafe.SliceData(b))
	operands = append(operands, b)
}

func unpinAll() {
	pinner.Unpin()
	clear(operands)
	operands = operands[:0]
}

// operandSlice returns the n bytes at addr within a buffer passed to the
// current call.
func operandSlice(addr, n uint64) ([]byte, bool) {
	for _, b := range operands {
		base := uint64(uintptr(unsafe.Pointer(unsafe.SliceData(b))))
		if addr < base || addr-base > uint64(len(b)) || n > uint64(len(b))-(addr-base) {
			continue
		}
		off := addr - base
		return b[off : off+n], true
	}
	return nil, false
}
