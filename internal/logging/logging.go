// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Setup wires the global logger: console output for local runs, JSON
// otherwise, with an optional size-rotated file sink alongside. Unknown
// levels fall back to info.
func Setup(level, format, file string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if file != "" {
		rotated := &lumberjack.Logger{
			Filename: file,
			MaxSize:  100,
			MaxAge:   14,
			Compress: true,
		}
		out = zerolog.MultiLevelWriter(out, rotated)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
