// Package wasmtest assembles minimal wasm guests for tests: one imported
// env.syscall, one exported _start that issues a fixed list of gate calls,
// one page of exported memory and a set of data segments. A guest can also
// write to stdout and end through WASI proc_exit or a trap, the way TinyGo
// programs do.
package wasmtest

import "encoding/binary"

// Call is one gate call: seven operands and the call code last.
type Call [8]uint64

// Op builds a Call from a code and up to seven operands.
func Op(code uint64, args ...uint64) Call {
	var c Call
	copy(c[:7], args)
	c[7] = code
	return c
}

// Segment places data at offset in the guest's memory.
type Segment struct {
	Offset int64
	Data   string
}

const (
	i32 = 0x7f
	i64 = 0x7e
)

// stdoutBase is where Build places the iovec and text for Module.Stdout.
const stdoutBase = 0x8000

// Module describes a guest. Its _start performs Calls in order, dropping
// every result, then writes Stdout to fd 1, then ends: through WASI
// proc_exit when ProcExit is set, with an unreachable trap when Trap is set,
// otherwise by returning.
type Module struct {
	Calls    []Call
	Data     []Segment
	Stdout   string
	ProcExit *uint32
	Trap     bool
}

// Guest returns the binary of a module whose _start performs calls in order
// and returns.
func Guest(calls []Call, data ...Segment) []byte {
	return Module{Calls: calls, Data: data}.Build()
}

// Build returns the module binary.
func (m Module) Build() []byte {
	gateType := []byte{0x60, 0x08, i64, i64, i64, i64, i64, i64, i64, i64, 0x01, i64}
	startType := []byte{0x60, 0x00, 0x00}
	exitType := []byte{0x60, 0x01, i32, 0x00}
	writeType := []byte{0x60, 0x04, i32, i32, i32, i32, 0x01, i32}

	gate := append(name("env"), name("syscall")...)
	imports := [][]byte{append(gate, 0x00, 0x00)}
	var fdWrite, procExit uint64
	if m.Stdout != "" {
		fdWrite = uint64(len(imports))
		imp := append(name("wasi_snapshot_preview1"), name("fd_write")...)
		imports = append(imports, append(imp, 0x00, 0x03))
	}
	if m.ProcExit != nil {
		procExit = uint64(len(imports))
		imp := append(name("wasi_snapshot_preview1"), name("proc_exit")...)
		imports = append(imports, append(imp, 0x00, 0x02))
	}
	startIdx := uint64(len(imports))

	body := []byte{0x00} // no locals
	for _, c := range m.Calls {
		for _, v := range c {
			body = append(body, 0x42) // i64.const
			body = append(body, sleb(int64(v))...)
		}
		body = append(body, 0x10, 0x00, 0x1a) // call 0; drop
	}
	data := append([]Segment(nil), m.Data...)
	if m.Stdout != "" {
		// iovec{buf, len} at stdoutBase, nwritten after it, text at +16.
		iov := make([]byte, 16, 16+len(m.Stdout))
		binary.LittleEndian.PutUint32(iov[0:], stdoutBase+16)
		binary.LittleEndian.PutUint32(iov[4:], uint32(len(m.Stdout)))
		data = append(data, Segment{Offset: stdoutBase, Data: string(append(iov, m.Stdout...))})
		for _, v := range []int64{1, stdoutBase, 1, stdoutBase + 8} {
			body = append(body, 0x41) // i32.const
			body = append(body, sleb(v)...)
		}
		body = append(body, 0x10)
		body = append(body, uleb(fdWrite)...)
		body = append(body, 0x1a)
	}
	switch {
	case m.ProcExit != nil:
		body = append(body, 0x41)
		body = append(body, sleb(int64(int32(*m.ProcExit)))...)
		body = append(body, 0x10)
		body = append(body, uleb(procExit)...)
	case m.Trap:
		body = append(body, 0x00) // unreachable
	}
	body = append(body, 0x0b)

	segs := make([][]byte, 0, len(data))
	for _, s := range data {
		seg := []byte{0x00, 0x41} // memory 0, i32.const
		seg = append(seg, sleb(s.Offset)...)
		seg = append(seg, 0x0b)
		seg = append(seg, name(s.Data)...)
		segs = append(segs, seg)
	}

	mod := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	mod = append(mod, section(1, gateType, startType, exitType, writeType)...)
	mod = append(mod, section(2, imports...)...)
	mod = append(mod, section(3, []byte{0x01})...)
	mod = append(mod, section(5, []byte{0x00, 0x01})...)
	mod = append(mod, section(7,
		append(append(name("_start"), 0x00), uleb(startIdx)...),
		append(name("memory"), 0x02, 0x00),
	)...)
	mod = append(mod, section(10, append(uleb(uint64(len(body))), body...))...)
	mod = append(mod, section(11, segs...)...)
	return mod
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

func name(s string) []byte {
	return append(uleb(uint64(len(s))), s...)
}

func section(id byte, items ...[]byte) []byte {
	body := uleb(uint64(len(items)))
	for _, it := range items {
		body = append(body, it...)
	}
	out := append([]byte{id}, uleb(uint64(len(body)))...)
	return append(out, body...)
}
