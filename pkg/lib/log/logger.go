package log

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

func NewLogger(cfg *Config) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	switch cfg.Format {
	case LogFormatConsole:
		l := zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).Level(level).With().Timestamp().Logger()
		return &l, nil
	default:
		l := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
		return &l, nil
	}
}
