// Package transport opens adapter byte streams.
//
// Ownership boundary:
// - TCP (Wi-Fi adapters) and serial (USB, Bluetooth RFCOMM) connections
//
// - buffering inbound bytes so availability can be queried without blocking
//
// Adapter discovery is not in scope; callers name the endpoint.
package transport
