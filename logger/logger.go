package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/caldera-labs/plume/config"
)

// New returns a configured zerolog.Logger. Level comes from
// cfg.LogLevel (falling back to debug in development), and output
// goes to stderr plus, when cfg.LogFile is set, an appended file.
func New(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() && cfg.LogLevel == "" {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			out = zerolog.MultiLevelWriter(out, f)
		}
	}

	return zerolog.New(out).With().Timestamp().Logger()
}
