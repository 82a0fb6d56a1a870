package obd

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/obdctl/internal/protocol"
	"github.com/danmuck/obdctl/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrNilCommand = errors.New("obd: nil command")

type (
	Source = frame.Source
	Sink   = frame.Sink
)

// Conn drives request/response cycles against one adapter stream.
type Conn struct {
	id       string
	src      Source
	dst      Sink
	cache    *ResponseCache
	cleaner  *protocol.Cleaner
	logger   zerolog.Logger
	observer Observer
}

func NewConn(src Source, dst Sink, opts ...Option) *Conn {
	c := &Conn{
		id:       uuid.NewString(),
		src:      src,
		dst:      dst,
		cache:    NewResponseCache(),
		cleaner:  protocol.DefaultCleaner(),
		logger:   zerolog.Nop(),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	c.logger = c.logger.With().Str("conn_id", c.id).Logger()
	return c
}

func (c *Conn) ID() string {
	return c.id
}

// Cache exposes the connection's response cache.
func (c *Conn) Cache() *ResponseCache {
	return c.cache
}

// Forget drops the cached reply for cmd, if any.
func (c *Conn) Forget(cmd Command) {
	if cmd == nil {
		return
	}
	c.cache.Delete(cmd.Text())
}

func (c *Conn) ClearCache() {
	c.cache.Clear()
}

// Run sends cmd, collects the reply and decodes it.
//
// With WithCache a stored reply for the same command text is decoded
// without any I/O; otherwise the fresh reply is stored before decoding.
// ctx is checked before the cycle starts; a started cycle is not
// interrupted. Transport and decode errors are returned unchanged and a
// failed cycle leaves the cache untouched.
func (c *Conn) Run(ctx context.Context, cmd Command, opts ...RunOption) (Response, error) {
	if cmd == nil {
		return Response{}, ErrNilCommand
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	key := cmd.Text()
	raw, cached := RawResponse{}, false
	if ro.useCache {
		raw, cached = c.cache.Load(key)
	}
	if cached {
		c.logger.Debug().Str("command", key).Int64("elapsed_ms", raw.ElapsedMillis()).Msg("cache hit")
	} else {
		var err error
		raw, err = c.exchange(key, ro.delay)
		if err != nil {
			c.logger.Debug().Err(err).Str("command", key).Msg("exchange failed")
			c.observer.ObserveRun(RunEvent{ConnID: c.id, Command: key, Stage: StageTransport, Err: err})
			return Response{}, err
		}
		if ro.useCache {
			c.cache.Store(key, raw)
		}
	}

	resp, err := cmd.Decode(raw)
	c.observer.ObserveRun(RunEvent{
		ConnID:   c.id,
		Command:  key,
		Elapsed:  raw.Elapsed,
		Cached:   cached,
		ReplyLen: len(raw.Value),
		Stage:    StageDecode,
		Err:      err,
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("command", key).Str("reply", raw.Value).Msg("decode failed")
		return Response{}, err
	}
	return resp, nil
}

// exchange performs one timed transmit/receive cycle. The delay is part of
// the measured time.
func (c *Conn) exchange(text string, delay time.Duration) (RawResponse, error) {
	start := time.Now()
	if err := frame.WriteRequest(c.dst, text); err != nil {
		return RawResponse{}, err
	}
	if delay > 0 {
		time.Sleep(delay)
	}
	value, err := frame.ReadResponse(c.src, c.cleaner)
	if err != nil {
		return RawResponse{}, err
	}
	raw := RawResponse{Value: value, Elapsed: time.Since(start)}
	c.logger.Debug().
		Str("command", text).
		Str("reply", value).
		Dur("delay", delay).
		Int64("elapsed_ms", raw.ElapsedMillis()).
		Msg("exchange")
	return raw, nil
}
