// Package obd owns the adapter connection driver.
//
// Ownership boundary:
// - one request/response cycle per Run: send, optional delay, drain, clean
// - per-connection raw response cache
// - cycle timing
//
// Lifecycle of one Run:
// - idle -> sending -> (delaying) -> receiving -> cleaning -> decoding -> done
//
// - a cache hit skips straight to decoding.
//
// A Conn performs no locking around the stream. Callers that share one
// adapter across goroutines go through a Queue.
package obd
