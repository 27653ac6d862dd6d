// Copyright (C) 2026 Kestrel Works. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package audit records every decision and outcome of an upgrade run in an
// append-only, timestamped event log. The core emits events; this package
// persists them as JSON lines and mirrors them to the structured logger.
// Absence of a terminal success event in the log is itself meaningful.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelworks/kestrelup/internal/logging"
)

// EventType defines the type of audit event.
type EventType string

const (
	// Run lifecycle events.
	EventRunStart EventType = "run_start"
	EventRunDone  EventType = "run_done"

	// Pipeline step events.
	EventFetch        EventType = "artifact_fetch"
	EventVerify       EventType = "artifact_verify"
	EventServiceStop  EventType = "service_stop"
	EventBackupCreate EventType = "backup_create"
	EventBackupPrune  EventType = "backup_prune"
	EventInstall      EventType = "install"
	EventPermissions  EventType = "set_permissions"
	EventVersionCheck EventType = "version_check"
	EventServiceStart EventType = "service_start"
	EventHealthCheck  EventType = "health_check"

	// Recovery events.
	EventRollbackStart EventType = "rollback_start"
	EventRestore       EventType = "backup_restore"
	EventRollbackDone  EventType = "rollback_done"
)

// Severity defines the severity level of an audit event.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
	SeverityFatal Severity = "fatal"
)

// Event is one append-only audit record.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Severity  Severity       `json:"severity"`
	Success   bool           `json:"success"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Log appends events to a per-run JSONL file.
type Log struct {
	mu     sync.Mutex
	runID  string
	file   *os.File
	logger *logging.Logger
}

// Open creates the audit log file under dir and returns the log. The file is
// opened append-only; records are never rewritten.
func Open(dir string, logger *logging.Logger) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	name := "audit_" + time.Now().Format("20060102-150405") + "_" + runID[:8] + ".jsonl"
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	return &Log{runID: runID, file: f, logger: logger}, nil
}

// RunID returns the identifier shared by all events of this invocation.
func (l *Log) RunID() string {
	return l.runID
}

// Record appends one event. Persistence failure is reported to the structured
// logger but never fails the upgrade itself.
func (l *Log) Record(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	ev.RunID = l.runID
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}

	l.logStructured(ev)

	l.mu.Lock()
	defer l.mu.Unlock()
	line, err := json.Marshal(ev)
	if err == nil {
		line = append(line, '\n')
		_, err = l.file.Write(line)
	}
	if err != nil {
		l.logger.Error("Failed to persist audit event", "event_type", ev.EventType, "error", err)
	}
}

// Step records a pipeline step outcome with the severity implied by success.
func (l *Log) Step(t EventType, success bool, msg string, details map[string]any) {
	sev := SeverityInfo
	if !success {
		sev = SeverityError
	}
	l.Record(Event{
		EventType: t,
		Severity:  sev,
		Success:   success,
		Message:   msg,
		Details:   details,
	})
}

// Warn records a warning-level deviation (skipped check, no-op stop).
func (l *Log) Warn(t EventType, msg string, details map[string]any) {
	l.Record(Event{
		EventType: t,
		Severity:  SeverityWarn,
		Success:   true,
		Message:   msg,
		Details:   details,
	})
}

// Fatal records an unrecoverable outcome with maximum severity.
func (l *Log) Fatal(t EventType, msg string, details map[string]any) {
	l.Record(Event{
		EventType: t,
		Severity:  SeverityFatal,
		Success:   false,
		Message:   msg,
		Details:   details,
	})
}

// Close releases the event file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

func (l *Log) logStructured(ev Event) {
	args := []any{
		"event_type", ev.EventType,
		"success", ev.Success,
		"run_id", ev.RunID[:8],
	}
	if ev.Message != "" {
		args = append(args, "message", ev.Message)
	}
	for k, v := range ev.Details {
		args = append(args, k, v)
	}

	switch ev.Severity {
	case SeverityWarn:
		l.logger.Warn("AUDIT", args...)
	case SeverityError, SeverityFatal:
		l.logger.Error("AUDIT", args...)
	default:
		l.logger.Info("AUDIT", args...)
	}
}
