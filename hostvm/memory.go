package hostvm

import "fmt"

// maxCString bounds the scan for a NUL terminator in guest memory.
const maxCString = 64 * 1024

// Memory is the guest address space as seen by the host. Pointer operands are
// interpreted relative to it.
type Memory interface {
	// Read returns n bytes at ptr. The slice may alias guest memory.
	Read(ptr, n uint64) ([]byte, error)
	// Write copies b to ptr.
	Write(ptr uint64, b []byte) error
}

// ReadBytes returns a copy of n bytes at ptr. A zero length never touches
// memory, so a null pointer is accepted with it.
func ReadBytes(mem Memory, ptr, n uint64) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	b, err := mem.Read(ptr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadCString reads a NUL-terminated string at ptr.
func ReadCString(mem Memory, ptr uint64) (string, error) {
	if ptr == 0 {
		return "", fmt.Errorf("%w: null string pointer", ErrMemoryAccess)
	}
	var out []byte
	for i := uint64(0); i < maxCString; i++ {
		b, err := mem.Read(ptr+i, 1)
		if err != nil {
			return "", err
		}
		if b[0] == 0 {
			return string(out), nil
		}
		out = append(out, b[0])
	}
	return "", fmt.Errorf("%w: unterminated string at %#x", ErrMemoryAccess, ptr)
}

// writeOutput copies at most limit bytes of data to ptr and returns the full
// data length, which the guest compares against its capacity.
func writeOutput(mem Memory, ptr, limit uint64, data []byte) (uint64, error) {
	n := uint64(len(data))
	if n > limit {
		n = limit
	}
	if n > 0 {
		if err := mem.Write(ptr, data[:n]); err != nil {
			return 0, err
		}
	}
	return uint64(len(data)), nil
}

// writeFixed writes s into a field of exactly width bytes, zero padded.
func writeFixed(mem Memory, ptr uint64, s string, width int) error {
	field := make([]byte, width)
	copy(field, s)
	return mem.Write(ptr, field)
}

// SliceMemory is a flat guest address space backed by a byte slice, with
// address 0 reserved as null.
type SliceMemory []byte

func (m SliceMemory) Read(ptr, n uint64) ([]byte, error) {
	if ptr == 0 || ptr+n < ptr || ptr+n > uint64(len(m)) {
		return nil, fmt.Errorf("%w: read %d bytes at %#x", ErrMemoryAccess, n, ptr)
	}
	return m[ptr : ptr+n], nil
}

func (m SliceMemory) Write(ptr uint64, b []byte) error {
	n := uint64(len(b))
	if ptr == 0 || ptr+n < ptr || ptr+n > uint64(len(m)) {
		return fmt.Errorf("%w: write %d bytes at %#x", ErrMemoryAccess, n, ptr)
	}
	copy(m[ptr:], b)
	return nil
}
