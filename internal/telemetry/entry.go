// Package telemetry implements the client-side log capture pipeline:
// immutable tagged log entries, a bounded buffer with size, time and
// severity flush triggers, and batched delivery to the remote collector
// with re-merge on failure.
package telemetry

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coursepulse/telemetry/internal/sanitize"
)

// Level represents the severity of a log entry
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Category identifies the functional area a log entry originates from
type Category string

const (
	CategorySystem      Category = "system"
	CategoryUser        Category = "user"
	CategoryAPI         Category = "api"
	CategorySecurity    Category = "security"
	CategoryPerformance Category = "performance"
	CategoryBusiness    Category = "business"
)

// levelRank orders levels for minimum-level filtering
var levelRank = map[Level]int{
	LevelDebug:    0,
	LevelInfo:     1,
	LevelWarn:     2,
	LevelError:    3,
	LevelCritical: 4,
}

// ParseLevel converts a configuration string into a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(s)) {
	case LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical:
		return Level(strings.ToLower(s))
	default:
		return LevelInfo
	}
}

// AtLeast reports whether l is at or above the given minimum level.
func (l Level) AtLeast(min Level) bool {
	return levelRank[l] >= levelRank[min]
}

// LogEntry is an immutable log record. Context is sanitized before the
// entry is constructed; entries are never mutated after creation.
type LogEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      Level          `json:"level"`
	Category   Category       `json:"category"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	StackTrace string         `json:"stackTrace,omitempty"`
	Tags       []string       `json:"tags"`
}

// messageKeywords maps message substrings to derived tags.
var messageKeywords = []struct {
	substr string
	tag    string
}{
	{"timeout", "timeout"},
	{"network", "network"},
	{"connection", "network"},
	{"auth", "auth"},
	{"login", "auth"},
	{"payment", "payment"},
	{"checkout", "payment"},
	{"slow", "performance"},
	{"latency", "performance"},
	{"failed", "failure"},
	{"denied", "access"},
}

// EntryFactory builds LogEntry records from raw producer input.
// Pure aside from ID and timestamp generation; no I/O.
type EntryFactory struct {
	sanitizer *sanitize.Sanitizer
	sessionID string
}

// NewEntryFactory creates a factory using the given sanitizer. The session
// ID is attached to every entry produced by this process.
func NewEntryFactory(sanitizer *sanitize.Sanitizer, sessionID string) *EntryFactory {
	if sanitizer == nil {
		sanitizer = sanitize.New(nil)
	}
	return &EntryFactory{sanitizer: sanitizer, sessionID: sessionID}
}

// SessionID returns the process-unique session identifier.
func (f *EntryFactory) SessionID() string {
	return f.sessionID
}

// Make builds an immutable LogEntry. The context is sanitized before
// embedding and the message is scrubbed of embedded URLs.
func (f *EntryFactory) Make(level Level, category Category, message string, context map[string]any, stackTrace string) *LogEntry {
	entry := &LogEntry{
		ID:         uuid.New().String(),
		Timestamp:  time.Now(),
		Level:      level,
		Category:   category,
		Message:    sanitize.ScrubMessage(message),
		SessionID:  f.sessionID,
		StackTrace: stackTrace,
		Tags:       deriveTags(level, category, message),
	}

	if context != nil {
		if sanitized, ok := f.sanitizer.Sanitize(context).(map[string]any); ok {
			entry.Context = sanitized
		}
	}

	return entry
}

// deriveTags computes the tag set for an entry: level and category are
// always included, plus any keyword matched in the message.
func deriveTags(level Level, category Category, message string) []string {
	tags := []string{string(level), string(category)}
	lowered := strings.ToLower(message)

	seen := map[string]bool{string(level): true, string(category): true}
	for _, kw := range messageKeywords {
		if strings.Contains(lowered, kw.substr) && !seen[kw.tag] {
			tags = append(tags, kw.tag)
			seen[kw.tag] = true
		}
	}

	return tags
}
