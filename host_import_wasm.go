//go:build tinygo && wasm

package mutago

//go:wasmimport env syscall
func hostSyscall(a0, a1, a2, a3, a4, a5, a6, a7 uint64) uint64
