// Package debug carries hopper's diagnostic output: component-tagged trace
// lines gated by debug_logging, and the leveled Logger for operator messages.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// EnvVar turns tracing on for a single run without touching the config.
const EnvVar = "HOPPER_DEBUG"

var (
	enabled atomic.Bool
	mcpMode atomic.Bool

	sinkMu   sync.Mutex
	sink     io.Writer
	sinkFile *os.File
)

// SetMCPMode silences tracing while stdio carries the MCP protocol.
func SetMCPMode(on bool) {
	mcpMode.Store(on)
}

// SetEnabled mirrors debug_logging from .hopper.kdl.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// IsDebugEnabled reports whether trace lines and Logger.Debug are emitted.
// MCP mode always wins.
func IsDebugEnabled() bool {
	if mcpMode.Load() {
		return false
	}
	if enabled.Load() {
		return true
	}
	switch os.Getenv(EnvVar) {
	case "1", "true":
		return true
	}
	return false
}

// SetOutput points trace lines at w. A nil w drops them. Any log file opened
// by OpenLogFile stays open until CloseLogFile.
func SetOutput(w io.Writer) {
	sinkMu.Lock()
	sink = w
	sinkMu.Unlock()
}

// Output returns the current trace writer, nil when none is set.
func Output() io.Writer {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	return sink
}

// OpenLogFile sends trace lines to a new file under dir, or under
// $TMPDIR/hopper-logs when dir is empty, and returns its path. A detached
// daemon has no terminal, so this is where its traces go.
func OpenLogFile(dir string) (string, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "hopper-logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}
	name := fmt.Sprintf("hopper-%s-%d.log", time.Now().Format("20060102-150405"), os.Getpid())
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to open debug log: %w", err)
	}

	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sinkFile != nil {
		_ = sinkFile.Close()
	}
	sinkFile = f
	sink = f
	return path, nil
}

// CloseLogFile closes the file from OpenLogFile and drops the sink with it.
// It is a no-op when no file is open.
func CloseLogFile() error {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sinkFile == nil {
		return nil
	}
	err := sinkFile.Close()
	if sink == io.Writer(sinkFile) {
		sink = nil
	}
	sinkFile = nil
	return err
}

// Log writes one trace line tagged with component.
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if sink == nil {
		return
	}
	fmt.Fprintf(sink, "%s [%s] "+format, append([]interface{}{time.Now().Format("15:04:05.000"), component}, args...)...)
}

func LogIndexing(format string, args ...interface{})  { Log("index", format, args...) }
func LogSearch(format string, args ...interface{})    { Log("search", format, args...) }
func LogEnumerate(format string, args ...interface{}) { Log("enum", format, args...) }
func LogMCP(format string, args ...interface{})       { Log("mcp", format, args...) }
