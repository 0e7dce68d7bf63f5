// Package logx is the single logging facade for plumCore. Every
// subsystem gets its own component-scoped logger from
// Root.Component instead of
// reaching for a package-level global, so tests can inject a silent
// logger and multiple nodes running in one process (as
// cmd/plumcore-sim does) don't interleave unattributed output.
package logx

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Level mirrors the outcome-severity mapping in SPEC_FULL.md §A.1.
type Level = log.Level

const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// Root is the process-wide sink configuration. It is set up once at
// wiring time (cmd/plumcored, cmd/plumcore-sim) and
// passed down; nothing below this package reaches for a global logger.
type Root struct {
	base *log.Logger
}

// NewRoot builds a Root writing to w at the given level. Pass
// io.Discard in tests that don't want log noise.
func NewRoot(w io.Writer, level Level) *Root {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.000",
		Level:           level,
	})

	return &Root{base: l}
}

// Default builds a Root writing to stderr at Info level, for tools
// that haven't parsed a --log-level flag yet.
func Default() *Root {
	return NewRoot(os.Stderr, LevelInfo)
}

// Discard builds a Root that drops everything; used by unit tests
// that want to exercise logging call sites without producing output.
func Discard() *Root {
	return NewRoot(io.Discard, LevelError)
}

// Component returns a logger tagged with component=name. Recovered
// FSM errors (spec.md §7) should log at Warn exactly once per event,
// fatal init failures at Error, and frame-level tracing at Debug.
func (r *Root) Component(name string) *log.Logger {
	return r.base.With("component", name)
}
