package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/obdctl/internal/config"
	"go.bug.st/serial"
)

var ErrUnknownKind = errors.New("transport: unknown adapter kind")

// DialTCP connects to a Wi-Fi adapter, typically on port 35000.
func DialTCP(ctx context.Context, addr string, timeout time.Duration) (*Stream, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return NewStream(conn), nil
}

// OpenSerial opens a serial device with 8N1 framing.
func OpenSerial(port string, baud int) (*Stream, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", port, err)
	}
	return NewStream(p), nil
}

// Open connects to the adapter described by cfg.
func Open(ctx context.Context, cfg config.Adapter) (*Stream, error) {
	switch cfg.Kind {
	case config.KindTCP:
		return DialTCP(ctx, cfg.Address, cfg.DialTimeout)
	case config.KindSerial:
		return OpenSerial(cfg.Address, cfg.BaudRate)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}
}
