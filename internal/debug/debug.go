// Package debug provides a gated debug-output stream for the training
// pipeline. Output is discarded unless debug mode is enabled, either at
// build time (ldflags) or at runtime via SetEnabled (wired to the CLI's
// --debug flag) or the DEBUG environment variable.
package debug

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// EnableDebug is a build flag that can be overridden at build time:
// go build -ldflags "-X github.com/standardbeagle/langid-train/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu      sync.Mutex
	out     io.Writer
	enabled bool
)

// SetEnabled toggles debug output at runtime. Called from the CLI when
// --debug is passed.
func SetEnabled(v bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = v
}

// SetOutput sets the writer debug output goes to. Pass nil to discard.
// Defaults to nil (discarded) until set.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// IsEnabled reports whether debug output is currently active.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		return true
	}
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

func writer() io.Writer {
	mu.Lock()
	defer mu.Unlock()
	return out
}

// Logf writes a debug line if debug mode is enabled and an output writer
// is configured. No-op otherwise, so call sites never need to guard.
func Logf(format string, args ...interface{}) {
	if !IsEnabled() {
		return
	}
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG] "+format+"\n", args...)
}
