package wasmhost

import (
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/rafaelescrich/mutago/hostvm"
)

// guestMemory adapts a module's linear memory to hostvm.Memory. Operands are
// 64-bit but wasm32 addresses are not, so anything past 4GiB is out of bounds.
type guestMemory struct {
	mem api.Memory
}

func (g guestMemory) Read(ptr, n uint64) ([]byte, error) {
	if g.mem == nil || ptr == 0 || ptr > math.MaxUint32 || n > math.MaxUint32 {
		return nil, fmt.Errorf("%w: read %d bytes at %#x", hostvm.ErrMemoryAccess, n, ptr)
	}
	b, ok := g.mem.Read(uint32(ptr), uint32(n))
	if !ok {
		return nil, fmt.Errorf("%w: read %d bytes at %#x", hostvm.ErrMemoryAccess, n, ptr)
	}
	return b, nil
}

func (g guestMemory) Write(ptr uint64, b []byte) error {
	if g.mem == nil || ptr == 0 || ptr > math.MaxUint32 {
		return fmt.Errorf("%w: write %d bytes at %#x", hostvm.ErrMemoryAccess, len(b), ptr)
	}
	if !g.mem.Write(uint32(ptr), b) {
		return fmt.Errorf("%w: write %d bytes at %#x", hostvm.ErrMemoryAccess, len(b), ptr)
	}
	return nil
}
