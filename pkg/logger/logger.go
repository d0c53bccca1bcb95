// Package logger configura el logger estructurado (zerolog) de la
// aplicación. Los componentes reciben un zerolog.Logger y le añaden su
// propio campo "component".
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config parámetros del logger.
type Config struct {
	Env   string // development usa ConsoleWriter, el resto JSON
	Level string // trace, debug, info, warn, error
	App   string
}

// New construye el logger raíz de la aplicación.
func New(cfg Config) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var out = os.Stdout
	base := zerolog.New(out)
	if cfg.Env == "development" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	}

	return base.Level(parseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("app", cfg.App).
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
