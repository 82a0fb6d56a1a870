package frame

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/obdctl/internal/protocol"
)

const (
	// RequestTerminator ends every request on the wire.
	RequestTerminator byte = '\r'
	// Prompt is the adapter's ready sentinel; it ends a reply.
	Prompt byte = '>'
)

// Source is the readable side of an adapter stream.
// Available must not block. ReadByte returns io.EOF at end of stream.
type Source interface {
	Available() (int, error)
	ReadByte() (byte, error)
}

// Sink is the writable side of an adapter stream.
type Sink interface {
	io.Writer
	Flush() error
}

func EncodeRequest(text string) []byte {
	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	return append(buf, RequestTerminator)
}

// WriteRequest writes the framed request in full and flushes it.
func WriteRequest(dst Sink, text string) error {
	b := EncodeRequest(text)
	for len(b) > 0 {
		n, err := dst.Write(b)
		if err != nil {
			return fmt.Errorf("%w: %w", protocol.ErrWrite, err)
		}
		if n == 0 {
			return fmt.Errorf("%w: %w", protocol.ErrWrite, io.ErrShortWrite)
		}
		b = b[n:]
	}
	if err := dst.Flush(); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrFlush, err)
	}
	return nil
}

// Drain collects reply text while bytes are already buffered on src.
// It never waits for bytes to arrive, so a slow adapter yields a short or
// empty read. The loop stops at the prompt (not included), at end of
// stream, or at a byte outside 7-bit ASCII.
func Drain(src Source) (string, error) {
	var sb strings.Builder
	for {
		n, err := src.Available()
		if err != nil {
			return "", fmt.Errorf("%w: %w", protocol.ErrRead, err)
		}
		if n <= 0 {
			break
		}
		b, err := src.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("%w: %w", protocol.ErrRead, err)
		}
		if b >= 0x80 || b == Prompt {
			break
		}
		sb.WriteByte(b)
	}
	return sb.String(), nil
}

// ReadResponse drains src and cleans the collected text.
func ReadResponse(src Source, cleaner *protocol.Cleaner) (string, error) {
	raw, err := Drain(src)
	if err != nil {
		return "", err
	}
	if cleaner == nil {
		cleaner = protocol.DefaultCleaner()
	}
	return cleaner.Clean(raw), nil
}
