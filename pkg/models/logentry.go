package models

import "time"

// LogLevel defines the severity of an execution log entry.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// Valid reports whether the level is one of the known log levels.
func (l LogLevel) Valid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	}

	return false
}

// LogEntry is one execution log line. Entries are immutable once created;
// identity is the ID, which is what both delivery channels deduplicate on.
type LogEntry struct {
	ID        string         `json:"id"        validate:"required"`
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"     validate:"required,oneof=debug info warning error"`
	Message   string         `json:"message"`
	NodeID    string         `json:"node_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}
