package dup

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Logger is a minimal leveled logging interface used throughout the dup
// package. Info lines are suppressed in quiet mode; warnings and errors are
// always emitted.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

var logSink Logger = NewColorLogger(os.Stderr, false)

// SetLogger allows callers/tests to inject a custom logger instead of the
// default colored stderr logger. Passing nil resets to the default.
func SetLogger(l Logger) {
	if l == nil {
		logSink = NewColorLogger(os.Stderr, false)
		return
	}
	logSink = l
}

type colorLogger struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool

	info *color.Color
	warn *color.Color
	fail *color.Color
}

// NewColorLogger returns a Logger that writes lines of the form
// "usbdup LEVEL: message" to out, with the level tag colored when out is a
// terminal. With quiet set, Infof calls are dropped.
func NewColorLogger(out io.Writer, quiet bool) Logger {
	return &colorLogger{
		out:   out,
		quiet: quiet,
		info:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed, color.Bold),
	}
}

func (l *colorLogger) emit(tag *color.Color, level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "usbdup %s: %s\n", tag.Sprint(level), fmt.Sprintf(format, args...))
}

func (l *colorLogger) Infof(format string, args ...any) {
	if l.quiet {
		return
	}
	l.emit(l.info, "INFO", format, args...)
}

func (l *colorLogger) Warnf(format string, args ...any) {
	l.emit(l.warn, "WARN", format, args...)
}

func (l *colorLogger) Errorf(format string, args ...any) {
	l.emit(l.fail, "ERROR", format, args...)
}

func infof(format string, args ...any)  { logSink.Infof(format, args...) }
func warnf(format string, args ...any)  { logSink.Warnf(format, args...) }
func errorf(format string, args ...any) { logSink.Errorf(format, args...) }
