package mutago

import (
	"fmt"
	"runtime"
	"strings"
)

// MainFunc is a contract's main: the returned text is the success payload, an
// error ends the program with its code and message. See ContractError.
type MainFunc func() (string, error)

// Entry runs main and terminates the program. It is the whole body of the
// guest's main, which the runtime's _start reaches after initialization:
//
//	func main() { mutago.Entry(run) }
//
// On success the payload is returned and the program exits with 0. On error
// the message is returned and the program exits with the error's code. A
// panic clears the payload and exits with 1 after reporting to the debug
// channel in debug builds.
// Entry never returns.
func Entry(main MainFunc) {
	defer func() {
		if r := recover(); r != nil {
			panicHandler(r)
		}
	}()

	ret, err := main()
	if err != nil {
		code, msg := exitOutcome(err)
		Ret([]byte(msg))
		Exit(code)
	}
	Ret([]byte(ret))
	Exit(0)
}

// OutOfMemory terminates the program the way an allocation failure must:
// debug report, no payload, exit code 1. Neither the gc nor the TinyGo
// allocator calls it; it is the hook for custom allocators and arenas that
// detect exhaustion themselves.
func OutOfMemory() {
	panicHandler("Out of memory")
}

// Abort terminates the program the way a panic does.
func Abort() {
	panic("abort!")
}

func panicHandler(r any) {
	if debugBuild {
		file, line, ok := panicLocation()
		Debug(panicMessage(r, file, line, ok))
	}
	// A panic delivers no payload, even if main already set one.
	Ret(nil)
	Exit(1)
}

func panicMessage(r any, file string, line int, ok bool) string {
	var sb strings.Builder
	switch v := r.(type) {
	case string:
		fmt.Fprintf(&sb, "panic occurred: %q", v)
	case error:
		fmt.Fprintf(&sb, "panic occurred: %q", v.Error())
	case fmt.Stringer:
		fmt.Fprintf(&sb, "panic occurred: %q", v.String())
	default:
		fmt.Fprintf(&sb, "panic occurred: %v", v)
	}
	if ok {
		fmt.Fprintf(&sb, ", in file %s:%d", file, line)
	} else {
		sb.WriteString(", but can't get location information...")
	}
	return sb.String()
}

// panicLocation finds the frame that raised the panic being handled: the
// first non-runtime frame below runtime.gopanic.
func panicLocation() (string, int, bool) {
	var pcs [32]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	panicking := false
	for {
		f, more := frames.Next()
		if f.Function == "runtime.gopanic" {
			panicking = true
		} else if panicking && !strings.HasPrefix(f.Function, "runtime.") {
			return f.File, f.Line, true
		}
		if !more {
			return "", 0, false
		}
	}
}
