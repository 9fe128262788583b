package sandbox

import (
	"bytes"
	"encoding/json"
)

// EventType names an outbound message.
type EventType string

const (
	EventReady     EventType = "ready"
	EventLog       EventType = "log"
	EventError     EventType = "error"
	EventSuccess   EventType = "success"
	EventCompleted EventType = "completed"
)

// Event is one outbound message. Every operation ends with exactly one
// EventCompleted.
type Event struct {
	ID      string    `json:"id,omitempty"`
	Type    EventType `json:"type"`
	Content string    `json:"content,omitempty"`
	Passed  *bool     `json:"passed,omitempty"`
}

// MarshalJSON keeps content on log, error and success events even when it
// is empty, so a blank guest line still arrives as "content":"". Guest text
// is written unescaped: <, > and & stay as they are.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID      string    `json:"id,omitempty"`
		Type    EventType `json:"type"`
		Content *string   `json:"content,omitempty"`
		Passed  *bool     `json:"passed,omitempty"`
	}

	w := wire{ID: e.ID, Type: e.Type, Passed: e.Passed}
	switch e.Type {
	case EventLog, EventError, EventSuccess:
		w.Content = &e.Content
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Emitter receives outbound events. Implementations must be safe for
// concurrent use: guest output arrives from the interpreter goroutine.
type Emitter interface {
	Emit(Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) {
	f(e)
}

var discardEmitter = EmitterFunc(func(Event) {})

func completed(id string, passed bool) Event {
	return Event{ID: id, Type: EventCompleted, Passed: &passed}
}
