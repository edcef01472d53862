// Package logging provides real-time console output for fleet monitoring.
// The event bus and telemetry exporter are the durable record; this package
// exists for operators watching a live engine.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// --- Fleet event logging methods ---
// Called by the engine after state changes. Real-time output only;
// the telemetry exporter carries the audit trail.

// ReportRejected logs a rejected ingress report.
func (l *Logger) ReportRejected(nodeID, reason string) {
	l.Warn("report_rejected", map[string]interface{}{
		"node":   nodeID,
		"reason": reason,
	})
}

// StatusChange logs a connection state transition.
func (l *Logger) StatusChange(nodeID, state string, missed int64) {
	l.Info("connection_status", map[string]interface{}{
		"node":   nodeID,
		"state":  state,
		"missed": missed,
	})
}

// DecisionMade logs an evaluated decision.
func (l *Logger) DecisionMade(nodeID, kind string, confidence float64) {
	l.Info("decision", map[string]interface{}{
		"node":       nodeID,
		"kind":       kind,
		"confidence": fmt.Sprintf("%.2f", confidence),
	})
}

// IncidentRecorded logs a risk-level transition.
func (l *Logger) IncidentRecorded(nodeID, from, to string) {
	l.Info("incident", map[string]interface{}{
		"node": nodeID,
		"from": from,
		"to":   to,
	})
}

// HealingAction logs an executed healing action.
func (l *Logger) HealingAction(nodeID, action, result string) {
	l.Info("healing_action", map[string]interface{}{
		"node":   nodeID,
		"action": action,
		"result": result,
	})
}

// CollaboratorError logs a recovered collaborator failure.
func (l *Logger) CollaboratorError(nodeID, collaborator string, err error) {
	l.Warn("collaborator_error", map[string]interface{}{
		"node":         nodeID,
		"collaborator": collaborator,
		"error":        err.Error(),
	})
}
