// Package protocol owns the ELM327 wire contract and cleanup primitives.
//
// Ownership boundary:
// - request/response framing (see package frame)
// - adapter noise removal
// - transport fault sentinels
//
// Wire framing:
// - request: command text followed by a single carriage return
//
// - response: every byte up to the first '>' prompt or end of stream,
// noise removed and surrounding whitespace trimmed
package protocol
