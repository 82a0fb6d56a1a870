package protocol

import "errors"

var (
	ErrWrite          = errors.New("protocol: write failed")
	ErrFlush          = errors.New("protocol: flush failed")
	ErrRead           = errors.New("protocol: read failed")
	ErrInvalidPattern = errors.New("protocol: invalid noise pattern")
)
