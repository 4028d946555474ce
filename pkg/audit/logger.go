// Package audit writes a JSON-lines trail of report runs.
//
// Each run records when it started, which artifacts were skipped, which
// sections failed and how it ended. The trail is append-only; a nil *Logger
// or *RunLogger discards every event.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/errors"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventReportStarted   EventType = "report.started"
	EventArtifactSkipped EventType = "artifact.skipped"
	EventSectionFailed   EventType = "section.failed"
	EventReportCompleted EventType = "report.completed"
	EventReportFailed    EventType = "report.failed"
)

// Severity represents log severity level.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARN"
	SeverityError   Severity = "ERROR"
)

// Event represents an audit event.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      EventType      `json:"type"`
	Severity  Severity       `json:"severity"`
	RunID     string         `json:"run_id,omitempty"`
	SourceDir string         `json:"source_dir,omitempty"`
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// LoggerConfig configures the audit logger.
type LoggerConfig struct {
	// LogFile is the path to the audit log file.
	// Default: ~/.mvt-report/audit.log
	LogFile string

	// BufferSize is the number of events to buffer before flushing.
	// Default: 32
	BufferSize int

	// Clock returns the event timestamp. Default: time.Now.
	Clock func() time.Time

	Logger core.Logger
}

// DefaultLoggerConfig returns sensible defaults.
func DefaultLoggerConfig() *LoggerConfig {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = os.TempDir()
	}

	return &LoggerConfig{
		LogFile:    filepath.Join(home, ".mvt-report", "audit.log"),
		BufferSize: 32,
		Clock:      time.Now,
	}
}

// Logger is the audit logger.
type Logger struct {
	config *LoggerConfig
	log    core.Logger

	mu     sync.Mutex
	file   *os.File
	buffer []Event
	closed bool
}

// NewLogger opens the audit log for appending.
func NewLogger(config *LoggerConfig) (*Logger, error) {
	if config == nil {
		config = DefaultLoggerConfig()
	}

	// Apply defaults for zero values
	if config.LogFile == "" {
		config.LogFile = DefaultLoggerConfig().LogFile
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 32
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	dir := filepath.Dir(config.LogFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.E(errors.KindStorage, "audit.NewLogger", fmt.Sprintf("create log directory %s", dir), err)
	}

	// 0640 = owner read/write, group read
	file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, errors.E(errors.KindStorage, "audit.NewLogger", "open log file", err)
	}

	return &Logger{
		config: config,
		log:    core.OrNop(config.Logger),
		file:   file,
		buffer: make([]Event, 0, config.BufferSize),
	}, nil
}

// Log records an audit event. Events logged after Close are dropped.
func (l *Logger) Log(event Event) {
	if l == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.config.Clock().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.buffer = append(l.buffer, event)
	if len(l.buffer) >= l.config.BufferSize {
		l.flushLocked()
	}
}

// Flush writes buffered events to disk.
func (l *Logger) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flushLocked()
}

func (l *Logger) flushLocked() {
	if len(l.buffer) == 0 || l.file == nil {
		return
	}
	for _, event := range l.buffer {
		data, err := json.Marshal(event)
		if err != nil {
			l.log.Warn("Audit event %s not encodable: %v", event.Type, err)
			continue
		}
		if _, err := l.file.Write(append(data, '\n')); err != nil {
			l.log.Warn("Audit write failed: %v", err)
			break
		}
	}
	l.buffer = l.buffer[:0]
	_ = l.file.Sync()
}

// Close flushes remaining events and closes the file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.flushLocked()
	l.closed = true
	return l.file.Close()
}

// Path returns the audit log file path.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.config.LogFile
}

// ForRun returns a logger bound to one report run.
func (l *Logger) ForRun(runID, sourceDir string) *RunLogger {
	if l == nil {
		return nil
	}
	return &RunLogger{logger: l, runID: runID, sourceDir: sourceDir}
}

// =============================================================================
// Run Logger
// =============================================================================

// RunLogger stamps every event with a run id and source directory.
type RunLogger struct {
	logger    *Logger
	runID     string
	sourceDir string
}

func (rl *RunLogger) log(event Event) {
	if rl == nil {
		return
	}
	event.RunID = rl.runID
	event.SourceDir = rl.sourceDir
	rl.logger.Log(event)
}

// Started logs the start of a run.
func (rl *RunLogger) Started(deviceType, format string) {
	rl.log(Event{
		Type:     EventReportStarted,
		Severity: SeverityInfo,
		Message:  fmt.Sprintf("Report generation started for %s device", deviceType),
		Details:  map[string]any{"device_type": deviceType, "format": format},
	})
}

// ArtifactSkipped logs an artifact file that could not be loaded.
func (rl *RunLogger) ArtifactSkipped(file, reason string) {
	rl.log(Event{
		Type:     EventArtifactSkipped,
		Severity: SeverityWarning,
		Message:  "Artifact skipped: " + file,
		Error:    reason,
		Details:  map[string]any{"file": file},
	})
}

// SectionFailed logs a section replaced by an error notice.
func (rl *RunLogger) SectionFailed(section, message string, panicked bool) {
	rl.log(Event{
		Type:     EventSectionFailed,
		Severity: SeverityWarning,
		Message:  "Section failed: " + section,
		Error:    message,
		Details:  map[string]any{"section": section, "panic": panicked},
	})
}

// Completed logs a run that produced a report.
func (rl *RunLogger) Completed(outputPath string, findings int, duration time.Duration) {
	rl.log(Event{
		Type:     EventReportCompleted,
		Severity: SeverityInfo,
		Message:  "Report generated: " + outputPath,
		Duration: duration.Milliseconds(),
		Details:  map[string]any{"output_path": outputPath, "findings": findings},
	})
}

// Failed logs a run that produced no report.
func (rl *RunLogger) Failed(err error, duration time.Duration) {
	event := Event{
		Type:     EventReportFailed,
		Severity: SeverityError,
		Message:  "Report generation failed",
		Duration: duration.Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
		event.Details = map[string]any{"kind": errors.GetKind(err).String()}
	}
	rl.log(event)
}
