package testlog

import (
	"testing"

	"github.com/danmuck/obdctl/internal/logging"
	"github.com/rs/zerolog"
)

// Start configures test logging and returns a logger tagged with the test.
func Start(t *testing.T) zerolog.Logger {
	t.Helper()
	logger := logging.ConfigureTests().With().Str("test", t.Name()).Logger()
	logger.Info().Msg("start")
	return logger
}
