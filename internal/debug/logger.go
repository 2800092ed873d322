package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
)

// Logger writes leveled operator messages. Info and Error always go out;
// Debug only when IsDebugEnabled. A nil *Logger discards everything, and no
// method ever panics on a failed write.
type Logger struct {
	out *log.Logger
}

// NewLogger returns a Logger writing to w. A nil w discards output.
func NewLogger(w io.Writer) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{out: log.New(w, "hopper: ", log.LstdFlags)}
}

// Default returns a Logger on stderr, which stays clear of the MCP stdio stream.
func Default() *Logger {
	return NewLogger(os.Stderr)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("", format, args...)
}

// Error logs a failure the operator should see.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("error: ", format, args...)
}

// Debug logs only when debug logging is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	l.emit("debug: ", format, args...)
}

// Exception logs err from op. With debug logging on the message carries a
// stack trace; otherwise it is a one-line summary.
func (l *Logger) Exception(op string, err error) {
	if err == nil {
		return
	}
	if IsDebugEnabled() {
		l.emit("error: ", "%s: %T: %v\n%s", op, err, err, debug.Stack())
		return
	}
	l.emit("error: ", "%s: %v", op, err)
}

// Recovered logs a panic value caught by a recovery boundary.
func (l *Logger) Recovered(op string, r interface{}) {
	if IsDebugEnabled() {
		l.emit("error: ", "%s: panic: %v\n%s", op, r, debug.Stack())
		return
	}
	l.emit("error: ", "%s: panic: %v", op, r)
}

func (l *Logger) emit(level, format string, args ...interface{}) {
	if l == nil || l.out == nil {
		return
	}
	_ = l.out.Output(3, level+fmt.Sprintf(format, args...))
}
