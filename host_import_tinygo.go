//go:build tinygo

package mutago

// This file binds the gate to the host-provided symbol when building guest
// programs with TinyGo. Guest stacks never move under TinyGo, so operand
// pointers need no pinning.

type hostGate struct{}

func (hostGate) Syscall(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64 {
	return hostSyscall(a0, a1, a2, a3, a4, a5, a6, code)
}

func pin(b []byte) {}

func unpinAll() {}
