package logger

import (
	"os"

	"github.com/gobuffalo/envy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger. LOG_LEVEL selects the level,
// defaulting to info.
func Init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(envy.Get("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	log.Logger = zerolog.New(os.Stdout).With().
		Timestamp().
		Caller().
		Logger().
		Level(level)
}
