// Package envelope implements the canonical event identity and trace
// propagation carried by every message on every topic (event envelope, §4.1).
package envelope

import (
	"strings"

	"github.com/google/uuid"
)

// EventType enumerates the wire event types carried in an envelope.
type EventType string

const (
	EventTypeRaw        EventType = "telemetry.raw"
	EventTypeNormalized EventType = "telemetry.normalized"
	EventTypeEnriched   EventType = "telemetry.enriched"
	EventTypeScored     EventType = "telemetry.scored"
	EventTypeAlert      EventType = "alerts.raised"
)

// WireVersion is the wire-format version string stamped on every envelope.
const WireVersion = "1.0.0"

// prefix for ID (five hex groups: aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee).
const (
	prefixEvent = "evt_"
	prefixAlert = "alert_"
	prefixTrace = "trace_"
)

// Envelope is the identity/correlation header shared by every event.
type Envelope struct {
	EventID       string    `json:"event_id"`
	TraceID       string    `json:"trace_id"`
	SourceEventID string    `json:"source_event_id,omitempty"`
	EventType     EventType `json:"event_type"`
	Version       string    `json:"version"`
	Timestamp     string    `json:"timestamp"`
}

// Parent is the minimal shape needed from an upstream event to derive a
// child envelope: its own id and the trace it belongs to (if any).
type Parent struct {
	EventID string
	TraceID string
}

// newID mints a fresh identifier of the form "<prefix><uuid>". uuid.NewString
// uses a process-global, mutex-guarded random source, so concurrent callers
// never collide or block each other for longer than a lock acquisition.
func newID(prefix string) string {
	return prefix + uuid.NewString()
}

// NewEventID mints a fresh event_id. Safe for concurrent use.
func NewEventID() string { return newID(prefixEvent) }

// NewAlertID mints a fresh alert id. Safe for concurrent use.
func NewAlertID() string { return newID(prefixAlert) }

// NewTraceID mints a fresh trace id. Safe for concurrent use.
func NewTraceID() string { return newID(prefixTrace) }

// New builds the envelope for an event derived from parent, at ingress
// (parent is the zero value) or downstream. trace_id is propagated
// unchanged from the parent; if the parent carries none, a fresh one is
// synthesised and never changes again down the chain.
func New(parent Parent, eventType EventType, timestamp string) Envelope {
	trace := parent.TraceID
	if trace == "" {
		trace = NewTraceID()
	}
	var eventID string
	switch eventType {
	case EventTypeAlert:
		eventID = NewAlertID()
	default:
		eventID = NewEventID()
	}
	return Envelope{
		EventID:       eventID,
		TraceID:       trace,
		SourceEventID: parent.EventID,
		EventType:     eventType,
		Version:       WireVersion,
		Timestamp:     timestamp,
	}
}

// IsWellFormedID reports whether id carries one of the recognised prefixes.
func IsWellFormedID(id string) bool {
	return strings.HasPrefix(id, prefixEvent) ||
		strings.HasPrefix(id, prefixAlert) ||
		strings.HasPrefix(id, prefixTrace)
}
