//go:build tinygo && riscv64

package mutago

// Provided by the muta-syscall support library linked into the guest image.
//
//export syscall
func hostSyscall(a0, a1, a2, a3, a4, a5, a6, a7 uint64) uint64
