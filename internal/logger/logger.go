package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/fx"

	"humanoid-referee/internal/config"
)

// New builds the process logger: JSON to stdout, or a console writer when
// LOG_FORMAT=console.
func New(cfg *config.AppConfig) zerolog.Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Log.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(out).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(level)

	if !cfg.DotEnv {
		logger.Debug().Msg("no .env file found, using environment variables only")
	}
	return logger
}

func Nop() zerolog.Logger {
	return zerolog.Nop()
}

var Module = fx.Provide(New)
