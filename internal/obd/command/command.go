// Package command provides generic commands that need no PID knowledge.
package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/obdctl/internal/obd"
)

var (
	ErrEmptyCommand    = errors.New("command: empty command text")
	ErrAdapterRejected = errors.New("command: adapter rejected command")
	ErrNoData          = errors.New("command: no data")
	ErrMalformed       = errors.New("command: malformed reply")
)

// Replies an ELM327 uses to refuse or fail a request.
var failureReplies = []string{
	"?",
	"UNABLE TO CONNECT",
	"BUS ERROR",
	"CAN ERROR",
	"BUFFER FULL",
	"STOPPED",
	"ERROR",
}

// RawCommand sends text as-is and returns the cleaned reply as the value.
type RawCommand struct {
	text string
}

func Raw(text string) (RawCommand, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return RawCommand{}, ErrEmptyCommand
	}
	return RawCommand{text: text}, nil
}

func (c RawCommand) Text() string { return c.text }

func (c RawCommand) Decode(raw obd.RawResponse) (obd.Response, error) {
	return obd.Response{Command: c, Raw: raw, Value: raw.Value}, nil
}

// ATCommand is an ELM327 control command such as ATZ or ATE0.
type ATCommand struct {
	name string
}

// Common ELM327 control commands.
var (
	Reset          = AT("Z")
	EchoOff        = AT("E0")
	LinefeedsOff   = AT("L0")
	SpacesOn       = AT("S1")
	HeadersOff     = AT("H0")
	AutoProtocol   = AT("SP0")
	Describe       = AT("DP")
	ReadVoltage    = AT("RV")
	AdapterVersion = AT("I")
)

// AT builds a control command; a leading "AT" in name is optional.
func AT(name string) ATCommand {
	name = strings.ToUpper(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "AT")
	return ATCommand{name: strings.TrimSpace(name)}
}

func (c ATCommand) Text() string { return "AT" + c.name }

func (c ATCommand) Decode(raw obd.RawResponse) (obd.Response, error) {
	if err := checkFailure(c, raw); err != nil {
		return obd.Response{}, err
	}
	value := raw.Value
	if c.name == "RV" {
		value = strings.TrimSuffix(strings.TrimSpace(value), "V")
		return obd.Response{Command: c, Raw: raw, Value: value, Unit: "V"}, nil
	}
	return obd.Response{Command: c, Raw: raw, Value: value}, nil
}

// HexCommand sends a mode/PID style request and returns the reply payload
// as contiguous uppercase hex.
type HexCommand struct {
	text string
}

func Hex(text string) (HexCommand, error) {
	text = strings.ToUpper(strings.TrimSpace(text))
	if text == "" {
		return HexCommand{}, ErrEmptyCommand
	}
	return HexCommand{text: text}, nil
}

func (c HexCommand) Text() string { return c.text }

func (c HexCommand) Decode(raw obd.RawResponse) (obd.Response, error) {
	if strings.TrimSpace(raw.Value) == "" || strings.Contains(raw.Value, "NO DATA") {
		return obd.Response{}, fmt.Errorf("%w: %s", ErrNoData, c.text)
	}
	if err := checkFailure(c, raw); err != nil {
		return obd.Response{}, err
	}
	b, err := raw.Bytes()
	if err != nil {
		return obd.Response{}, fmt.Errorf("%w: %s: %v", ErrMalformed, c.text, err)
	}
	return obd.Response{Command: c, Raw: raw, Value: fmt.Sprintf("%X", b)}, nil
}

func checkFailure(cmd obd.Command, raw obd.RawResponse) error {
	v := strings.TrimSpace(raw.Value)
	for _, f := range failureReplies {
		if strings.HasPrefix(v, f) {
			return fmt.Errorf("%w: %s: %q", ErrAdapterRejected, cmd.Text(), v)
		}
	}
	return nil
}

// Parse picks a command for operator input: AT-prefixed text becomes an
// ATCommand, text made of hex digits and spaces a HexCommand, anything else
// a RawCommand.
func Parse(text string) (obd.Command, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyCommand
	}
	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, "AT") {
		return AT(upper), nil
	}
	if isHexRequest(upper) {
		return Hex(upper)
	}
	return Raw(text)
}

func isHexRequest(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r == ' ':
		case r >= '0' && r <= '9', r >= 'A' && r <= 'F':
			digits++
		default:
			return false
		}
	}
	return digits > 0
}
