package obd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var ErrOddHexLength = errors.New("obd: odd hex length")

// Command is one request definition: the text put on the wire (without
// terminator) and the decoder for the adapter's cleaned reply.
type Command interface {
	Text() string
	Decode(raw RawResponse) (Response, error)
}

// RawResponse is the cleaned, undecoded reply to one transmitted command.
type RawResponse struct {
	Value   string
	Elapsed time.Duration
}

var processPattern = regexp.MustCompile(`\s|BUS ?INIT|\.|:`)

func (r RawResponse) ElapsedMillis() int64 {
	return r.Elapsed.Milliseconds()
}

// Processed returns Value without whitespace, bus-init chatter, dots or
// colons, leaving a bare hex payload for a well formed reply.
func (r RawResponse) Processed() string {
	return processPattern.ReplaceAllString(r.Value, "")
}

// Bytes decodes Processed as consecutive hex pairs.
func (r RawResponse) Bytes() ([]byte, error) {
	p := r.Processed()
	if len(p)%2 != 0 {
		return nil, fmt.Errorf("%w: %q", ErrOddHexLength, p)
	}
	out, err := hex.DecodeString(p)
	if err != nil {
		return nil, fmt.Errorf("obd: decode hex %q: %w", p, err)
	}
	return out, nil
}

// Response is a decoded, command specific result.
type Response struct {
	Command Command
	Raw     RawResponse
	Value   string
	Unit    string
}

func (r Response) String() string {
	if r.Unit == "" {
		return r.Value
	}
	return strings.TrimSpace(r.Value + " " + r.Unit)
}
