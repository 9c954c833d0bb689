// Package diag collects failed resolution and bootstrap attempts for support
// debugging. Sinks are append-only and never influence control flow.
package diag

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Kind classifies a diagnostic event.
type Kind string

// Event kinds.
const (
	KindResolution Kind = "resolution"
	KindBootstrap  Kind = "bootstrap"
	KindQuery      Kind = "query"
	KindCatalog    Kind = "catalog"
)

// Event is one failed attempt.
type Event struct {
	Kind      Kind      `json:"kind"`
	Resource  string    `json:"resource"`
	Candidate string    `json:"candidate"`
	Error     string    `json:"error"`
	Time      time.Time `json:"time"`
}

// String renders the event in the "candidate: error" form used in banners.
func (e Event) String() string {
	if e.Candidate == "" {
		return fmt.Sprintf("%s: %s", e.Resource, e.Error)
	}
	return fmt.Sprintf("%s: %s", e.Candidate, e.Error)
}

// Sink receives diagnostic events.
type Sink interface {
	Record(Event)
}

// NewEvent builds an event stamped with the current time.
func NewEvent(kind Kind, resource, candidate string, err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{
		Kind:      kind,
		Resource:  resource,
		Candidate: candidate,
		Error:     msg,
		Time:      time.Now().UTC(),
	}
}

// OrNop returns s, or a no-op sink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Nop discards events.
type Nop struct{}

// Record implements Sink.
func (Nop) Record(Event) {}

// Memory keeps every event in arrival order.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty in-memory sink.
func NewMemory() *Memory {
	return &Memory{}
}

// Record implements Sink.
func (m *Memory) Record(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Snapshot returns a copy of the recorded events.
func (m *Memory) Snapshot() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ByKind returns the recorded events of one kind, rendered as strings.
func (m *Memory) ByKind(kind Kind) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e.String())
		}
	}
	return out
}

// Len returns the number of recorded events.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Log writes events to a structured logger at warn level.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a logging sink. A nil logger discards.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Log{logger: logger}
}

// Record implements Sink.
func (l *Log) Record(e Event) {
	l.logger.Warn("attempt failed",
		"kind", string(e.Kind),
		"resource", e.Resource,
		"candidate", e.Candidate,
		"error", e.Error,
	)
}

// Multi fans an event out to several sinks in order.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(e Event) {
	for _, s := range m {
		if s != nil {
			s.Record(e)
		}
	}
}
