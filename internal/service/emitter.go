package service

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples services from wailsRuntime
// ─────────────────────────────────────────────────────────────

// Events pushed to the frontend.
const (
	// EventBoard carries a GridState after every committed change.
	EventBoard = "bento:board"
	// EventBreakpoint carries the new BreakpointState on a tier change.
	EventBreakpoint = "bento:breakpoint"
	// EventLinkResolved carries a LinkResolved once a link card has metadata.
	EventLinkResolved = "bento:link-resolved"
	// EventNotice carries a Notice the user can dismiss.
	EventNotice = "bento:notice"
)

// Notice levels.
const (
	NoticeWarn  = "warn"
	NoticeError = "error"
)

// Notice is a dismissible message for the user.
type Notice struct {
	Level       string `json:"level"`
	Message     string `json:"message"`
	CellID      string `json:"cellId,omitempty"`
	Dismissible bool   `json:"dismissible"`
}

// LinkResolved reports the outcome of a link metadata fetch.
type LinkResolved struct {
	CellID string `json:"cellId"`
	URL    string `json:"url"`
	OK     bool   `json:"ok"`
}

// EventEmitter is an interface for emitting events to the frontend.
// The App struct implements this by delegating to wailsRuntime.EventsEmit.
// Services receive this interface instead of a wailsRuntime context,
// which makes them independently testable with a mock emitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// NoopEmitter drops every event. Used when no frontend is attached.
type NoopEmitter struct{}

func (NoopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// Link fetches emit from their own goroutines, so it is safe for
// concurrent use.
type MockEmitter struct {
	mu     sync.Mutex
	events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	m.events = append(m.events, EmittedEvent{Event: event, Data: data})
	m.mu.Unlock()
}

// Events returns a copy of everything emitted so far.
func (m *MockEmitter) Events() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.events...)
}

// Named returns the payloads emitted under event.
func (m *MockEmitter) Named(event string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, e := range m.events {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}
