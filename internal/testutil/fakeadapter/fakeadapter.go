// Package fakeadapter is an in-memory ELM327 stand-in for driver tests.
package fakeadapter

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
)

// Adapter implements both sides of an adapter stream. Each flushed request
// line is answered from the scripted replies; the reply is buffered
// immediately so the next drain sees it.
type Adapter struct {
	mu       sync.Mutex
	replies  map[string][]string
	fallback string
	pending  bytes.Buffer
	inbound  bytes.Buffer
	requests []string
	written  int
	flushes  int

	WriteErr error
	FlushErr error
	ReadErr  error
}

func New() *Adapter {
	return &Adapter{replies: make(map[string][]string)}
}

// Reply queues replies for request text. Successive requests consume them
// in order; the last one repeats.
func (a *Adapter) Reply(request string, replies ...string) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies[request] = append(a.replies[request], replies...)
	return a
}

// Fallback answers requests that have no scripted reply.
func (a *Adapter) Fallback(reply string) *Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fallback = reply
	return a
}

// Feed appends raw bytes to the inbound side as if the adapter sent them.
func (a *Adapter) Feed(s string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inbound.WriteString(s)
}

func (a *Adapter) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.WriteErr != nil {
		return 0, a.WriteErr
	}
	a.written += len(p)
	return a.pending.Write(p)
}

func (a *Adapter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FlushErr != nil {
		return a.FlushErr
	}
	a.flushes++
	for {
		line, err := a.pending.ReadString('\r')
		if errors.Is(err, io.EOF) {
			a.pending.WriteString(line)
			return nil
		}
		request := strings.TrimSuffix(line, "\r")
		a.requests = append(a.requests, request)
		a.inbound.WriteString(a.answer(request))
	}
}

func (a *Adapter) answer(request string) string {
	queued, ok := a.replies[request]
	if !ok || len(queued) == 0 {
		return a.fallback
	}
	reply := queued[0]
	if len(queued) > 1 {
		a.replies[request] = queued[1:]
	}
	return reply
}

func (a *Adapter) Available() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ReadErr != nil {
		return 0, a.ReadErr
	}
	return a.inbound.Len(), nil
}

func (a *Adapter) ReadByte() (byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ReadErr != nil {
		return 0, a.ReadErr
	}
	if a.inbound.Len() == 0 {
		return 0, io.EOF
	}
	return a.inbound.ReadByte()
}

// Requests returns every request line received so far.
func (a *Adapter) Requests() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.requests...)
}

// BytesWritten counts bytes written to the outbound side.
func (a *Adapter) BytesWritten() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.written
}

func (a *Adapter) Flushes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flushes
}

// Unread returns inbound bytes not consumed by a drain.
func (a *Adapter) Unread() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inbound.String()
}
