package executor

import (
	"bytes"
	"strings"
	"sync"
)

// maxPendingLine bounds how much of an unterminated line is held before it
// is forwarded as a chunk of its own.
const maxPendingLine = 64 * 1024

// Sink receives guest output one line at a time, without the trailing newline.
type Sink interface {
	Write(chunk string)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(chunk string)

func (f SinkFunc) Write(chunk string) { f(chunk) }

// Discard drops every chunk.
var Discard Sink = SinkFunc(func(string) {})

// lineWriter splits a byte stream into lines and forwards them to a
// swappable Sink.
type lineWriter struct {
	mu      sync.Mutex
	sink    Sink
	pending bytes.Buffer
}

func newLineWriter(sink Sink) *lineWriter {
	if sink == nil {
		sink = Discard
	}
	return &lineWriter{sink: sink}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending.Write(p)
	data := w.pending.Bytes()

	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		w.sink.Write(strings.TrimSuffix(string(data[:i]), "\r"))
		data = data[i+1:]
	}

	rest := string(data)
	w.pending.Reset()
	if len(rest) >= maxPendingLine {
		w.sink.Write(rest)
	} else {
		w.pending.WriteString(rest)
	}

	return len(p), nil
}

// Flush forwards an unterminated trailing line, if any.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

func (w *lineWriter) flushLocked() {
	if w.pending.Len() == 0 {
		return
	}
	w.sink.Write(w.pending.String())
	w.pending.Reset()
}

// Swap installs sink and returns the previous one. Pending output is
// flushed to the previous sink first.
func (w *lineWriter) Swap(sink Sink) Sink {
	if sink == nil {
		sink = Discard
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.flushLocked()
	prev := w.sink
	w.sink = sink
	return prev
}
