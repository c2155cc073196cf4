package server

import (
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
)

// Config carries the engine tunables. The zero value is normalized to
// the defaults at construction, so callers only set what they mean to
// change.
type Config struct {
	// SocketBufferSize pins the kernel send/receive buffers of TCP
	// listeners and sizes every socket read chunk.
	SocketBufferSize int `env:"MONOSERVE_SOCKET_BUFFER_SIZE" envDefault:"8192"`

	// ListenBacklog bounds the kernel queue of not yet accepted
	// connections.
	ListenBacklog int `env:"MONOSERVE_LISTEN_BACKLOG" envDefault:"128"`

	// MaxEventsPerLoop bounds how many readiness reports one loop
	// iteration handles.
	MaxEventsPerLoop int `env:"MONOSERVE_MAX_EVENTS_PER_LOOP" envDefault:"12"`

	// MaxHeaderSize bounds the request header section in bytes,
	// terminal blank line excluded. Longer headers get a 400.
	MaxHeaderSize int `env:"MONOSERVE_MAX_HEADER_SIZE" envDefault:"8192"`
}

// ConfigFromEnv reads the config from MONOSERVE_* variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse environment")
	}
	return cfg, nil
}

func (c Config) normalized() Config {
	if c.SocketBufferSize <= 0 {
		c.SocketBufferSize = 8192
	}
	if c.ListenBacklog <= 0 {
		c.ListenBacklog = 128
	}
	if c.MaxEventsPerLoop <= 0 {
		c.MaxEventsPerLoop = 12
	}
	if c.MaxHeaderSize <= 0 {
		c.MaxHeaderSize = 8192
	}
	return c
}
