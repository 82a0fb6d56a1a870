package protocol

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultNoisePattern matches the filler an ELM327 prints while it probes
// for a vehicle bus before the first reply.
const DefaultNoisePattern = `SEARCHING(\.\.\.)?`

// Cleaner strips adapter noise from accumulated reply text.
type Cleaner struct {
	pattern *regexp.Regexp
}

var defaultCleaner = &Cleaner{pattern: regexp.MustCompile(DefaultNoisePattern)}

// DefaultCleaner returns the cleaner for DefaultNoisePattern.
func DefaultCleaner() *Cleaner {
	return defaultCleaner
}

func NewCleaner(pattern string) (*Cleaner, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPattern)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return &Cleaner{pattern: re}, nil
}

func (c *Cleaner) Pattern() string {
	return c.pattern.String()
}

// RemoveNoise deletes every match of the noise pattern.
func (c *Cleaner) RemoveNoise(s string) string {
	return c.pattern.ReplaceAllString(s, "")
}

// Clean removes noise and then trims leading/trailing whitespace.
func (c *Cleaner) Clean(s string) string {
	return strings.TrimSpace(c.RemoveNoise(s))
}
