// Package trace provides bitmask-gated tracing for the delta-compression
// and pack-writing core: a package-level atomic target mask, a
// replaceable *log.Logger, and a Target.Printf that is a no-op unless
// its bit is set.
package trace

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

var (
	logger = newLogger()

	current atomic.Int32
)

func newLogger() *log.Logger {
	return log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds|log.Lshortfile)
}

// Target is a tracing target.
type Target int32

const (
	// Delta traces each accepted delta: target, base, delta size and
	// resulting chain depth. Rejected candidates are not traced.
	Delta Target = 1 << iota

	// Pack traces pack-stream structure: the entry count once the header
	// is written and the total byte count once the trailer is written.
	Pack
)

// SetTarget sets the tracing targets.
func SetTarget(target Target) {
	current.Store(int32(target))
}

// SetLogger sets the logger to use for tracing.
func SetLogger(l *log.Logger) {
	logger = l
}

// Print prints the given message only if the target is enabled.
func (t Target) Print(args ...any) {
	if t.Enabled() {
		logger.Output(2, fmt.Sprint(args...)) // nolint: errcheck
	}
}

// Printf prints the given message only if the target is enabled.
func (t Target) Printf(format string, args ...any) {
	if t.Enabled() {
		logger.Output(2, fmt.Sprintf(format, args...)) // nolint: errcheck
	}
}

// Enabled returns true if the target is enabled.
func (t Target) Enabled() bool {
	return int32(t)&current.Load() != 0
}

// GetTarget returns the current tracing target.
func GetTarget() Target {
	return Target(current.Load())
}
