package transport

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
)

var ErrClosed = errors.New("transport: stream closed")

const readChunk = 256

// Stream adapts a blocking io.ReadWriteCloser to the driver's Source and
// Sink. A pump goroutine moves inbound bytes into a buffer so Available
// reports what has already arrived.
type Stream struct {
	rwc io.ReadWriteCloser
	w   *bufio.Writer

	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	err    error
	closed bool
	done   chan struct{}
}

func NewStream(rwc io.ReadWriteCloser) *Stream {
	s := &Stream{
		rwc:  rwc,
		w:    bufio.NewWriter(rwc),
		done: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

func (s *Stream) pump() {
	defer close(s.done)
	chunk := make([]byte, readChunk)
	for {
		n, err := s.rwc.Read(chunk)
		s.mu.Lock()
		if n > 0 {
			s.buf.Write(chunk[:n])
		}
		if err != nil {
			s.err = err
		}
		s.cond.Broadcast()
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// Available reports buffered inbound bytes. A read fault is returned once
// the buffer is empty; end of stream and local close report zero.
func (s *Stream) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.buf.Len(); n > 0 {
		return n, nil
	}
	if s.err != nil && !s.closed && !errors.Is(s.err, io.EOF) {
		return 0, s.err
	}
	return 0, nil
}

// ReadByte returns the next inbound byte, waiting for one if none is
// buffered. It returns io.EOF once the peer has closed and the buffer is
// drained.
func (s *Stream) ReadByte() (byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Len() == 0 && s.err == nil {
		s.cond.Wait()
	}
	if s.buf.Len() > 0 {
		return s.buf.ReadByte()
	}
	if s.closed || errors.Is(s.err, io.EOF) {
		return 0, io.EOF
	}
	return 0, s.err
}

func (s *Stream) Write(p []byte) (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	return s.w.Write(p)
}

func (s *Stream) Flush() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.w.Flush()
}

// Close closes the underlying connection and waits for the pump to stop.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.rwc.Close()
	<-s.done
	return err
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
