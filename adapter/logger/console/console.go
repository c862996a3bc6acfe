package console

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

type console struct {
	log zerolog.Logger
}

func New() *console {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	return &console{log: zerolog.New(out).With().Timestamp().Logger()}
}

func (c *console) Log(msg string) {
	c.log.Info().Msg(msg)
}

func (c *console) Warn(msg string) {
	c.log.Warn().Msg(msg)
}

func (c *console) Error(msg string) {
	c.log.Error().Msg(msg)
}
