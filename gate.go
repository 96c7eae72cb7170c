package mutago

// Gate is the raw call gate into the host: seven operands plus a call code in
// the last slot, one word back. It performs no validation; operands must be
// laid out as the call code expects.
type Gate interface {
	Syscall(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64
}

// GateFunc adapts a plain function to Gate.
type GateFunc func(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64

// Syscall calls f.
func (f GateFunc) Syscall(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64 {
	return f(a0, a1, a2, a3, a4, a5, a6, code)
}

var gate Gate = hostGate{}

// SetGate replaces the active gate and returns the previous one. Guest
// programs never call it; it exists for mock hosts.
func SetGate(g Gate) Gate {
	prev := gate
	if g == nil {
		g = hostGate{}
	}
	gate = g
	return prev
}

// syscall releases the call's operands even when the gate never returns,
// as when a mock host ends the goroutine.
func syscall(a0, a1, a2, a3, a4, a5, a6, code uint64) uint64 {
	defer unpinAll()
	return gate.Syscall(a0, a1, a2, a3, a4, a5, a6, code)
}
