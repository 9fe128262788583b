package executor

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
)

// Guest replies are framed on stderr as
//
//	\x00GRADEBOX:<token>:<KIND>:<payload>\x00
//
// where token is the per-session secret sent in the hello command. Frames
// carrying any other token are treated as ordinary stderr text.
const (
	framePrefix = "\x00GRADEBOX:"
	frameSuffix = "\x00"

	frameReady = "READY"
	frameDone  = "DONE"
	frameError = "ERROR"
)

// command is one JSON line written to guest stdin.
type command struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
	Code  string `json:"code,omitempty"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
}

// reply is the guest's answer to one command.
type reply struct {
	value json.RawMessage
	err   error
}

// sessionProtocol demultiplexes guest stderr into reply frames and plain
// stderr output.
type sessionProtocol struct {
	prefix string
	stderr *lineWriter

	buf     bytes.Buffer
	readyCh chan struct{}
	ready   bool
	replies chan reply

	mu sync.Mutex
}

func newSessionProtocol(token string, stderr *lineWriter) *sessionProtocol {
	return &sessionProtocol{
		prefix:  framePrefix + token + ":",
		stderr:  stderr,
		readyCh: make(chan struct{}),
		replies: make(chan reply, 1),
	}
}

func (p *sessionProtocol) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()

		start := strings.Index(content, p.prefix)
		if start == -1 {
			keep := partialPrefixLen(content, p.prefix)
			p.passthrough(content[:len(content)-keep])
			p.buf.Reset()
			p.buf.WriteString(content[len(content)-keep:])
			break
		}

		p.passthrough(content[:start])

		body := content[start+len(p.prefix):]
		end := strings.Index(body, frameSuffix)
		if end == -1 {
			p.buf.Reset()
			p.buf.WriteString(content[start:])
			break
		}

		p.buf.Reset()
		p.buf.WriteString(body[end+len(frameSuffix):])
		p.handleFrame(body[:end])
	}

	return len(data), nil
}

func (p *sessionProtocol) passthrough(s string) {
	if s != "" {
		p.stderr.Write([]byte(s))
	}
}

func (p *sessionProtocol) handleFrame(frame string) {
	kind, payload, _ := strings.Cut(frame, ":")

	switch kind {
	case frameReady:
		if !p.ready {
			p.ready = true
			close(p.readyCh)
		}
	case frameDone:
		if payload == "" {
			payload = "null"
		}
		p.deliver(reply{value: json.RawMessage(payload)})
	case frameError:
		p.deliver(reply{err: &ExecError{Message: payload}})
	default:
		p.deliver(reply{err: errors.New("unknown reply frame: " + kind)})
	}
}

func (p *sessionProtocol) deliver(r reply) {
	select {
	case p.replies <- r:
	default:
	}
}

// Ready is closed once the guest has finished bootstrapping.
func (p *sessionProtocol) Ready() <-chan struct{} {
	return p.readyCh
}

func (p *sessionProtocol) Replies() <-chan reply {
	return p.replies
}

// Drain discards a stale reply left over from an earlier command.
func (p *sessionProtocol) Drain() {
	select {
	case <-p.replies:
	default:
	}
}

// partialPrefixLen returns the length of the longest suffix of s that is a
// proper prefix of prefix, so a frame split across writes is not lost.
func partialPrefixLen(s, prefix string) int {
	n := len(prefix) - 1
	if len(s) < n {
		n = len(s)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(s, prefix[:n]) {
			return n
		}
	}
	return 0
}
