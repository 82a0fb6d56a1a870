package obd

import "time"

const (
	StageTransport = "transport"
	StageDecode    = "decode"
)

// RunEvent describes one completed Run.
type RunEvent struct {
	ConnID  string
	Command string
	// Elapsed is the recorded cycle time of the raw reply; on a cache hit it
	// is the time of the original transmission.
	Elapsed  time.Duration
	Cached   bool
	ReplyLen int
	Stage    string
	Err      error
}

// Observer receives one event per Run. Implementations must not block.
type Observer interface {
	ObserveRun(RunEvent)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(RunEvent) {}
