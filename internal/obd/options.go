package obd

import (
	"time"

	"github.com/danmuck/obdctl/internal/protocol"
	"github.com/rs/zerolog"
)

// Option configures a Conn.
type Option func(*Conn)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Conn) {
		c.logger = logger
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Conn) {
		c.observer = observer
	}
}

// WithCleaner replaces the default "SEARCHING..." noise cleaner.
func WithCleaner(cleaner *protocol.Cleaner) Option {
	return func(c *Conn) {
		if cleaner != nil {
			c.cleaner = cleaner
		}
	}
}

// WithID overrides the generated connection id used in logs and metrics.
func WithID(id string) Option {
	return func(c *Conn) {
		if id != "" {
			c.id = id
		}
	}
}

type runOptions struct {
	useCache bool
	delay    time.Duration
}

// RunOption configures one Run call.
type RunOption func(*runOptions)

// WithCache serves the reply from the connection cache when present and
// stores a fresh reply otherwise.
func WithCache() RunOption {
	return func(o *runOptions) {
		o.useCache = true
	}
}

// UseCache is WithCache driven by a flag.
func UseCache(enabled bool) RunOption {
	return func(o *runOptions) {
		o.useCache = enabled
	}
}

// WithDelay pauses after the request is flushed and before the reply is
// drained, for adapters that need settling time. Non-positive values
// disable the pause.
func WithDelay(d time.Duration) RunOption {
	return func(o *runOptions) {
		o.delay = d
	}
}
