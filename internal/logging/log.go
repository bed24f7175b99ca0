// Package logging builds the process-wide structured logger.
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New returns a timestamped stdout logger at the given level. Unknown
// levels fall back to info.
func New(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}
