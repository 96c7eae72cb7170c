package mutago

import "fmt"

// Debugf formats and writes a message to the host debug channel. It does
// nothing in release builds.
func Debugf(format string, args ...any) {
	if !debugBuild {
		return
	}
	Debug(fmt.Sprintf(format, args...))
}

// DebugEnabled reports whether this is a debug build, in which Debugf and the
// panic handler write to the debug channel.
func DebugEnabled() bool { return debugBuild }
