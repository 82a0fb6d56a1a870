package obd

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/obdctl/internal/protocol"
	"github.com/danmuck/obdctl/internal/testutil/fakeadapter"
	"github.com/danmuck/obdctl/internal/testutil/testlog"
)

var errTestDecode = errors.New("test: unexpected reply")

// textCommand decodes the cleaned reply verbatim; an optional check rejects
// replies it does not expect.
type textCommand struct {
	text  string
	check func(string) bool
	seen  []RawResponse
}

func (c *textCommand) Text() string { return c.text }

func (c *textCommand) Decode(raw RawResponse) (Response, error) {
	c.seen = append(c.seen, raw)
	if c.check != nil && !c.check(raw.Value) {
		return Response{}, errTestDecode
	}
	return Response{Command: c, Raw: raw, Value: raw.Value}, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []RunEvent
}

func (o *recordingObserver) ObserveRun(ev RunEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func newTestConn(t *testing.T, adapter *fakeadapter.Adapter, opts ...Option) *Conn {
	t.Helper()
	logger := testlog.Start(t)
	return NewConn(adapter, adapter, append([]Option{WithLogger(logger)}, opts...)...)
}

func TestRunEndToEndCleansAndDecodes(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 0C", "SEARCHING...\r41 0C 1A F8\r\r>")
	conn := newTestConn(t, adapter)
	cmd := &textCommand{text: "01 0C"}

	resp, err := conn.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.Value != "41 0C 1A F8" {
		t.Fatalf("unexpected value: %q", resp.Value)
	}
	if len(cmd.seen) != 1 || cmd.seen[0].Value != "41 0C 1A F8" {
		t.Fatalf("decoder saw unexpected raw responses: %+v", cmd.seen)
	}
	reqs := adapter.Requests()
	if len(reqs) != 1 || reqs[0] != "01 0C" {
		t.Fatalf("unexpected requests: %+v", reqs)
	}
	if adapter.BytesWritten() != len("01 0C\r") {
		t.Fatalf("unexpected bytes written: %d", adapter.BytesWritten())
	}
	if adapter.Flushes() != 1 {
		t.Fatalf("expected one flush, got %d", adapter.Flushes())
	}
}

func TestRunLeavesBytesAfterPromptUnread(t *testing.T) {
	adapter := fakeadapter.New().Reply("ATRV", "12.6V\r>junk")
	conn := newTestConn(t, adapter)

	resp, err := conn.Run(context.Background(), &textCommand{text: "ATRV"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.Value != "12.6V" {
		t.Fatalf("unexpected value: %q", resp.Value)
	}
	if adapter.Unread() != "junk" {
		t.Fatalf("unexpected unread bytes: %q", adapter.Unread())
	}
}

func TestRunCacheMissThenHitAvoidsIO(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 05", "41 05 7B\r>", "41 05 7C\r>")
	conn := newTestConn(t, adapter)
	cmd := &textCommand{text: "01 05"}

	first, err := conn.Run(context.Background(), cmd, WithCache())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(adapter.Requests()) != 1 {
		t.Fatalf("first cached call must transmit, requests=%+v", adapter.Requests())
	}
	written := adapter.BytesWritten()

	second, err := conn.Run(context.Background(), cmd, WithCache())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if adapter.BytesWritten() != written {
		t.Fatalf("cache hit wrote bytes: before=%d after=%d", written, adapter.BytesWritten())
	}
	if second.Raw != first.Raw {
		t.Fatalf("cache hit returned different raw response: first=%+v second=%+v", first.Raw, second.Raw)
	}
	if second.Value != "41 05 7B" {
		t.Fatalf("unexpected cached value: %q", second.Value)
	}
	if conn.Cache().Len() != 1 {
		t.Fatalf("unexpected cache size: %d", conn.Cache().Len())
	}
}

func TestRunCacheKeyIsCommandText(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 0D", "41 0D 32\r>")
	conn := newTestConn(t, adapter)

	if _, err := conn.Run(context.Background(), &textCommand{text: "01 0D"}, WithCache()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	resp, err := conn.Run(context.Background(), &textCommand{text: "01 0D"}, WithCache())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(adapter.Requests()) != 1 {
		t.Fatalf("equal command text should share a cache entry, requests=%+v", adapter.Requests())
	}
	if resp.Value != "41 0D 32" {
		t.Fatalf("unexpected value: %q", resp.Value)
	}
}

func TestRunWithoutCacheAlwaysTransmits(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 0C", "41 0C 1A F8\r>", "41 0C 1B 00\r>")
	conn := newTestConn(t, adapter)
	cmd := &textCommand{text: "01 0C"}

	first, err := conn.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := conn.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(adapter.Requests()) != 2 {
		t.Fatalf("expected two cycles, requests=%+v", adapter.Requests())
	}
	if first.Value != "41 0C 1A F8" || second.Value != "41 0C 1B 00" {
		t.Fatalf("unexpected values: %q %q", first.Value, second.Value)
	}
	if conn.Cache().Len() != 0 {
		t.Fatalf("uncached runs must not populate cache, size=%d", conn.Cache().Len())
	}
}

func TestRunUncachedCallDoesNotReadCache(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 0C", "41 0C 1A F8\r>", "41 0C 1B 00\r>")
	conn := newTestConn(t, adapter)
	cmd := &textCommand{text: "01 0C"}

	if _, err := conn.Run(context.Background(), cmd, WithCache()); err != nil {
		t.Fatalf("cached run: %v", err)
	}
	resp, err := conn.Run(context.Background(), cmd, UseCache(false))
	if err != nil {
		t.Fatalf("uncached run: %v", err)
	}
	if resp.Value != "41 0C 1B 00" {
		t.Fatalf("uncached run should see fresh reply, got %q", resp.Value)
	}
	cached, ok := conn.Cache().Load("01 0C")
	if !ok || cached.Value != "41 0C 1A F8" {
		t.Fatalf("uncached run must not overwrite cache: %+v ok=%v", cached, ok)
	}
}

func TestRunDelayIsIncludedInElapsed(t *testing.T) {
	adapter := fakeadapter.New().Reply("ATZ", "ELM327 v1.5\r>")
	conn := newTestConn(t, adapter)
	delay := 25 * time.Millisecond

	resp, err := conn.Run(context.Background(), &textCommand{text: "ATZ"}, WithDelay(delay))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.Raw.Elapsed < delay {
		t.Fatalf("elapsed %v shorter than delay %v", resp.Raw.Elapsed, delay)
	}
	if resp.Raw.ElapsedMillis() < delay.Milliseconds() {
		t.Fatalf("elapsed ms %d shorter than delay", resp.Raw.ElapsedMillis())
	}
}

func TestRunEmptyStreamIsNotAnError(t *testing.T) {
	adapter := fakeadapter.New()
	conn := newTestConn(t, adapter)
	cmd := &textCommand{text: "01 00"}

	resp, err := conn.Run(context.Background(), cmd)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.Value != "" {
		t.Fatalf("expected empty value, got %q", resp.Value)
	}
	if len(cmd.seen) != 1 {
		t.Fatalf("decoder should still run on empty reply")
	}
}

func TestRunTransportFaultPropagatesAndLeavesCache(t *testing.T) {
	boom := errors.New("device disconnected")
	adapter := fakeadapter.New().Reply("01 0C", "41 0C 1A F8\r>")
	conn := newTestConn(t, adapter)
	cmd := &textCommand{text: "01 0C"}

	if _, err := conn.Run(context.Background(), cmd, WithCache()); err != nil {
		t.Fatalf("seed cache: %v", err)
	}
	conn.ClearCache()

	adapter.WriteErr = boom
	_, err := conn.Run(context.Background(), cmd, WithCache())
	if !errors.Is(err, boom) || !errors.Is(err, protocol.ErrWrite) {
		t.Fatalf("expected wrapped write fault, got %v", err)
	}
	if _, ok := conn.Cache().Load("01 0C"); ok {
		t.Fatalf("failed cycle must not populate cache")
	}

	adapter.WriteErr = nil
	adapter.ReadErr = boom
	_, err = conn.Run(context.Background(), cmd, WithCache())
	if !errors.Is(err, boom) || !errors.Is(err, protocol.ErrRead) {
		t.Fatalf("expected wrapped read fault, got %v", err)
	}
	if conn.Cache().Len() != 0 {
		t.Fatalf("failed cycle must not populate cache")
	}
}

func TestRunDecodeErrorPropagatesUnchanged(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 0C", "NO DATA\r>")
	conn := newTestConn(t, adapter)
	cmd := &textCommand{text: "01 0C", check: func(s string) bool { return s != "NO DATA" }}

	_, err := conn.Run(context.Background(), cmd, WithCache())
	if err != errTestDecode {
		t.Fatalf("expected decode error unchanged, got %v", err)
	}
	raw, ok := conn.Cache().Load("01 0C")
	if !ok || raw.Value != "NO DATA" {
		t.Fatalf("completed cycle should be cached before decoding: %+v ok=%v", raw, ok)
	}
}

func TestRunForgetForcesNewCycle(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 0C", "41 0C 1A F8\r>", "41 0C 1B 00\r>")
	conn := newTestConn(t, adapter)
	cmd := &textCommand{text: "01 0C"}

	if _, err := conn.Run(context.Background(), cmd, WithCache()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	conn.Forget(cmd)
	resp, err := conn.Run(context.Background(), cmd, WithCache())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if resp.Value != "41 0C 1B 00" || len(adapter.Requests()) != 2 {
		t.Fatalf("forget should force a new cycle: value=%q requests=%+v", resp.Value, adapter.Requests())
	}
}

func TestRunCancelledContextSkipsIO(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 0C", "41 0C 1A F8\r>")
	conn := newTestConn(t, adapter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := conn.Run(ctx, &textCommand{text: "01 0C"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if adapter.BytesWritten() != 0 {
		t.Fatalf("cancelled run wrote %d bytes", adapter.BytesWritten())
	}
}

func TestRunNilCommand(t *testing.T) {
	conn := newTestConn(t, fakeadapter.New())
	if _, err := conn.Run(context.Background(), nil); !errors.Is(err, ErrNilCommand) {
		t.Fatalf("expected ErrNilCommand, got %v", err)
	}
}

func TestRunReportsToObserver(t *testing.T) {
	adapter := fakeadapter.New().Reply("01 0C", "41 0C 1A F8\r>")
	obs := &recordingObserver{}
	conn := newTestConn(t, adapter, WithObserver(obs), WithID("conn.test"))
	cmd := &textCommand{text: "01 0C"}

	if _, err := conn.Run(context.Background(), cmd, WithCache()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := conn.Run(context.Background(), cmd, WithCache()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(obs.events) != 2 {
		t.Fatalf("expected two events, got %d", len(obs.events))
	}
	if obs.events[0].Cached || !obs.events[1].Cached {
		t.Fatalf("unexpected cached flags: %+v", obs.events)
	}
	if obs.events[0].ConnID != "conn.test" || obs.events[0].Command != "01 0C" {
		t.Fatalf("unexpected event: %+v", obs.events[0])
	}
	if obs.events[1].Elapsed != obs.events[0].Elapsed {
		t.Fatalf("cache hit should report original elapsed: %+v", obs.events)
	}
}

func TestRunWithCustomCleaner(t *testing.T) {
	cleaner, err := protocol.NewCleaner(`BUS INIT: \.+(OK)?`)
	if err != nil {
		t.Fatalf("cleaner: %v", err)
	}
	adapter := fakeadapter.New().Reply("01 00", "BUS INIT: ...OK\r41 00 BE 3E B8 11\r>")
	conn := newTestConn(t, adapter, WithCleaner(cleaner))

	resp, err := conn.Run(context.Background(), &textCommand{text: "01 00"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if resp.Value != "41 00 BE 3E B8 11" {
		t.Fatalf("unexpected value: %q", resp.Value)
	}
}
