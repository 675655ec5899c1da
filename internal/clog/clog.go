// Package clog provides the structured, per-participant colourized logger
// shared by every BlockChat component: a tagged "message key=value ..."
// line per call, with the participant tag colourized deterministically
// by id.
package clog

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// palette is the fixed colour rotation assigned to participants in
// admission order, bootstrap first.
var palette = []*color.Color{
	color.New(color.FgRed, color.Bold),
	color.New(color.FgGreen, color.Bold),
	color.New(color.FgYellow, color.Bold),
	color.New(color.FgBlue, color.Bold),
	color.New(color.FgMagenta, color.Bold),
	color.New(color.FgCyan, color.Bold),
}

var (
	outMu  sync.Mutex
	stdout io.Writer = resolveWriter()
)

func resolveWriter() io.Writer {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return colorable.NewColorableStdout()
	}
	return colorable.NewNonColorable(os.Stdout)
}

// Logger logs on behalf of a single participant, tagging every line with
// the participant's role and id and colourizing the tag deterministically
// by id.
type Logger struct {
	tag     string
	color   *color.Color
	verbose bool
	debug   bool
}

// New builds a Logger for a participant. id is nil for a node that has not
// yet been admitted, logging as "[NODE]" until it learns its id.
func New(id *int, verbose, debug bool) *Logger {
	l := &Logger{verbose: verbose, debug: debug}
	switch {
	case id == nil:
		l.tag = "[NODE]"
	case *id == 0:
		l.tag = "[BOOTSTRAP]"
		l.color = palette[0]
	default:
		l.tag = fmt.Sprintf("[NODE-%d]", *id)
		l.color = palette[*id%len(palette)]
	}
	return l
}

func (l *Logger) line(level string, msg string, kv ...interface{}) string {
	out := fmt.Sprintf("%s %s: %s", l.tag, level, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		out += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	if l.color != nil {
		return l.color.Sprint(out)
	}
	return out
}

func (l *Logger) emit(level, msg string, kv ...interface{}) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintln(stdout, l.line(level, msg, kv...))
}

// Info logs an informational line, only emitted in verbose mode.
func (l *Logger) Info(msg string, kv ...interface{}) {
	if !l.verbose {
		return
	}
	l.emit("INFO", msg, kv...)
}

// Debug logs a diagnostic line, only emitted in debug mode.
func (l *Logger) Debug(msg string, kv ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("DEBUG", msg, kv...)
}

// Warn logs a recoverable anomaly (rejected transaction/block, malformed
// envelope). Always emitted, regardless of verbosity.
func (l *Logger) Warn(msg string, kv ...interface{}) { l.emit("WARN", msg, kv...) }

// Error logs a failure that does not stop the process. Always emitted,
// regardless of verbosity.
func (l *Logger) Error(msg string, kv ...interface{}) { l.emit("ERROR", msg, kv...) }

// SetID re-tags the logger once a participant learns its assigned id
// (bootstrap admission response).
func (l *Logger) SetID(id int) {
	if id == 0 {
		l.tag = "[BOOTSTRAP]"
		l.color = palette[0]
		return
	}
	l.tag = fmt.Sprintf("[NODE-%d]", id)
	l.color = palette[id%len(palette)]
}
