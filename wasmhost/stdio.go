package wasmhost

import (
	"bytes"

	"github.com/rafaelescrich/mutago/hostvm"
)

// debugWriter turns the guest's stdout and stderr into debug lines. TinyGo
// reports an unrecovered panic there before trapping.
type debugWriter struct {
	vm      *hostvm.VM
	pending []byte
}

func (w *debugWriter) Write(p []byte) (int, error) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			break
		}
		w.vm.RecordDebug(string(w.pending[:i]))
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing line that has no newline.
func (w *debugWriter) Flush() {
	if len(w.pending) > 0 {
		w.vm.RecordDebug(string(w.pending))
		w.pending = nil
	}
}
