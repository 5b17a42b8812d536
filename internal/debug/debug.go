// Package debug provides the structured debug log. It writes to a rotated
// file under the data directory, never to the terminal, so library code can
// log freely without polluting command output.
package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.Mutex
	logger  zerolog.Logger
	enabled bool
	writer  *lumberjack.Logger
)

func init() {
	logger = zerolog.Nop()
}

// Enabled reports whether debug logging is active.
func Enabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Initialize routes debug output to <dataDir>/debug.log with rotation.
// Called once at startup when LOOM_DEBUG=1 or config debug: true.
func Initialize(dataDir string) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create debug log directory: %w", err)
	}
	writer = &lumberjack.Logger{
		Filename:   filepath.Join(dataDir, "debug.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
		Compress:   true,
	}
	logger = zerolog.New(writer).With().Timestamp().Logger()
	enabled = true
	return nil
}

// Logger returns the active logger. A no-op logger when debug is off.
func Logger() zerolog.Logger {
	mu.Lock()
	defer mu.Unlock()
	return logger
}

// Logf writes one formatted debug line.
func Logf(format string, args ...any) {
	mu.Lock()
	l, on := logger, enabled
	mu.Unlock()
	if !on {
		return
	}
	l.Debug().Msg(fmt.Sprintf(format, args...))
}

// Close flushes and closes the underlying log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if writer != nil {
		_ = writer.Close()
		writer = nil
	}
	logger = zerolog.Nop()
	enabled = false
}
