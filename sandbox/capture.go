package sandbox

import (
	"strings"
	"sync"

	"github.com/caffeineduck/gradebox/executor"
)

// captureSink records guest output for test code while still forwarding
// each line.
type captureSink struct {
	mu      sync.Mutex
	lines   []string
	forward executor.Sink
}

func newCaptureSink(forward executor.Sink) *captureSink {
	return &captureSink{forward: forward}
}

func (c *captureSink) Write(chunk string) {
	c.mu.Lock()
	c.lines = append(c.lines, chunk)
	c.mu.Unlock()

	c.forward.Write(chunk)
}

func (c *captureSink) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}
