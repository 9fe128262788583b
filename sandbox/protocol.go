package sandbox

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// CommandType names an inbound operation.
type CommandType string

const (
	CommandRun      CommandType = "run"
	CommandValidate CommandType = "validate"
)

// Command is one inbound message. ID is optional and echoed on every event
// the operation produces.
type Command struct {
	ID       string      `json:"id,omitempty"`
	Type     CommandType `json:"type"`
	Code     string      `json:"code"`
	TestCode string      `json:"testCode,omitempty"`
}

// DecodeCommand parses one JSON command line.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// Encoder writes events as JSON lines. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
	err error
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Emit writes e followed by a newline. After the first write error every
// later event is dropped; Err reports it.
func (e *Encoder) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return
	}
	if err := e.enc.Encode(ev); err != nil {
		e.err = fmt.Errorf("encode event: %w", err)
	}
}

// Err returns the first write error, if any.
func (e *Encoder) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
