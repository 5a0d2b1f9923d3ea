package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paphko/habpanelviewer/internal/command"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the audit log file inside the log directory.
const FileName = "audit.jsonl"

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	User      string    `json:"user"`
	CommandID string    `json:"commandId"`
	Command   string    `json:"command"`
	State     string    `json:"state"`
	Reason    string    `json:"reason,omitempty"`
	Kind      string    `json:"kind,omitempty"`
	Code      string    `json:"code,omitempty"`
	LatencyMs int64     `json:"latencyMs"`
}

// Options configures log rotation.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultOptions returns the rotation settings used by NewLogger.
func DefaultOptions() Options {
	return Options{
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// Logger writes command lifecycle snapshots as JSON lines. It implements
// command.Reporter.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
}

// NewLogger creates an audit logger writing to logDir with default rotation.
func NewLogger(logDir string) (*Logger, error) {
	return NewLoggerWithOptions(logDir, DefaultOptions())
}

// NewLoggerWithOptions creates an audit logger writing to logDir.
func NewLoggerWithOptions(logDir string, opts Options) (*Logger, error) {
	// Ensure log directory exists
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, FileName)

	// Create the file up front so permission problems surface at startup
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	_ = file.Close()

	return &Logger{
		filePath: filePath,
		out: &lumberjack.Logger{
			Filename:   filePath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		},
	}, nil
}

// Notify implements command.Reporter.
func (l *Logger) Notify(snap command.Snapshot) {
	user := snap.Issuer
	if user == "" {
		user = "unknown"
	}

	l.writeEntry(Entry{
		Timestamp: time.Now().UTC(),
		User:      user,
		CommandID: snap.ID,
		Command:   snap.Name,
		State:     snap.State.String(),
		Reason:    snap.Reason,
		Kind:      snap.Kind,
		Code:      snap.Code,
		LatencyMs: snap.Latency().Milliseconds(),
	})
}

// writeEntry writes an audit entry to the log file.
func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to marshal audit entry: %v\n", err)
		return
	}

	if _, err := l.out.Write(append(jsonData, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write audit entry: %v\n", err)
	}
}

// Close closes the audit logger. Later notifications are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out != nil {
		err := l.out.Close()
		l.out = nil
		return err
	}
	return nil
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}

// Rotate closes the current file, renames it with a timestamp, and opens a
// new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return fmt.Errorf("audit logger is closed")
	}
	if err := l.out.Rotate(); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}
	return nil
}

var _ command.Reporter = (*Logger)(nil)
