package sandbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Command
	}{
		{
			name: "run",
			line: `{"type":"run","code":"print(1)"}`,
			want: Command{Type: CommandRun, Code: "print(1)"},
		},
		{
			name: "validate with id",
			line: `{"id":"42","type":"validate","code":"x = 1","testCode":"assert x == 1"}`,
			want: Command{ID: "42", Type: CommandValidate, Code: "x = 1", TestCode: "assert x == 1"},
		},
		{
			name: "unknown type is kept",
			line: `{"type":"format"}`,
			want: Command{Type: "format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.line))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeCommandInvalid(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"type":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode command")
}

func TestEventJSON(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{"ready", Event{Type: EventReady}, `{"type":"ready"}`},
		{"log", Event{Type: EventLog, Content: "hi"}, `{"type":"log","content":"hi"}`},
		{"empty log line", Event{Type: EventLog}, `{"type":"log","content":""}`},
		{"error with id", Event{ID: "7", Type: EventError, Content: "boom"}, `{"id":"7","type":"error","content":"boom"}`},
		{"success", Event{Type: EventSuccess, Content: "All tests passed!"}, `{"type":"success","content":"All tests passed!"}`},
		{"completed", completed("", false), `{"type":"completed","passed":false}`},
		{"completed passed", completed("v", true), `{"id":"v","type":"completed","passed":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestEventMarshalKeepsMarkup(t *testing.T) {
	data, err := Event{ID: "1", Type: EventError, Content: "<b>&</b>"}.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1","type":"error","content":"<b>&</b>"}`, string(data))
}

func TestEncoderWritesLines(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	enc.Emit(Event{Type: EventLog, Content: "<b>&"})
	enc.Emit(completed("", true))
	require.NoError(t, enc.Err())

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"type":"log","content":"<b>&"}`, lines[0])
	assert.Equal(t, `{"type":"completed","passed":true}`, lines[1])
}

func TestEncoderConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			enc.Emit(Event{Type: EventLog, Content: "line"})
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		assert.Equal(t, `{"type":"log","content":"line"}`, line)
	}
}

type failingWriter struct {
	writes int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	w.writes++
	return 0, errors.New("pipe closed")
}

func TestEncoderKeepsFirstError(t *testing.T) {
	w := &failingWriter{}
	enc := NewEncoder(w)

	enc.Emit(Event{Type: EventReady})
	enc.Emit(Event{Type: EventReady})

	require.Error(t, enc.Err())
	assert.Contains(t, enc.Err().Error(), "pipe closed")
	assert.Equal(t, 1, w.writes)
}

func TestEmitterFunc(t *testing.T) {
	var got []Event
	var e Emitter = EmitterFunc(func(ev Event) { got = append(got, ev) })
	e.Emit(Event{Type: EventReady})
	assert.Equal(t, []Event{{Type: EventReady}}, got)
}
