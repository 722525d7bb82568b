package debug

import (
	"os"
	"strings"
)

// IsDebuggerAttached reports whether the program runs under a debugger.
func IsDebuggerAttached() bool {
	if os.Getenv("VSCODE_DEBUG_MODE") != "" || os.Getenv("DELVE_DEBUGGER") != "" {
		return true
	}
	return strings.Contains(os.Args[0], "__debug_bin")
}
