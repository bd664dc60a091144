// Package audit provides a structured JSON audit trail of OS-affecting
// command-layer calls (position, focus, hide/show, kill). It uses
// log/slog the same way the rest of the core reserves slog for durable
// records rather than transient diagnostics.
package audit

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tilepilot/axcore/internal/wmtypes"
)

// Logger provides structured audit logging for command-layer
// invocations. It logs the operation name, the target window id, a
// result status, and duration. A nil *Logger and a Logger built with an
// empty path are both inert: every method is then a no-op.
type Logger struct {
	logger  *slog.Logger
	file    *os.File
	enabled bool
	mu      sync.RWMutex
}

// New creates a new audit logger that appends JSON records to the file
// at path. If path is empty, audit logging is disabled and every method
// becomes a no-op. Returns an error if the file cannot be opened.
func New(path string) (*Logger, error) {
	if path == "" {
		return &Logger{enabled: false}, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})

	return &Logger{
		logger:  slog.New(handler),
		file:    file,
		enabled: true,
	}, nil
}

// Close closes the audit log file if it is open. Safe to call multiple
// times, and safe on a nil receiver.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// IsEnabled reports whether audit logging is active (a path was
// provided to New).
func (l *Logger) IsEnabled() bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// LogCommand records a single command-layer call: the operation name,
// the window id it targeted (0 for an operation with no single target),
// the outcome ("ok" or an error string), and how
// long the call took.
func (l *Logger) LogCommand(op string, id wmtypes.WinId, status string, duration time.Duration) {
	if !l.IsEnabled() {
		return
	}

	l.mu.RLock()
	logger := l.logger
	l.mu.RUnlock()

	if logger == nil {
		return
	}

	logger.Info("command_invocation",
		slog.String("op", op),
		slog.Uint64("win_id", uint64(id)),
		slog.String("status", status),
		slog.Float64("duration_seconds", duration.Seconds()),
		slog.Time("timestamp", time.Now().UTC()),
	)
}
