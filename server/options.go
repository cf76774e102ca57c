package server

import "time"

// Config holds a Server's tunables, built up through functional Options.
type Config struct {
	addr           string
	outboxCapacity int
	writeTimeout   time.Duration
}

// Option mutates a Config at construction time.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		addr:           ":7420",
		outboxCapacity: 64,
		writeTimeout:   10 * time.Second,
	}
}

func applyConfig(opts []Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithAddr sets the listen address (host:port).
func WithAddr(addr string) Option {
	return func(c *Config) { c.addr = addr }
}

// WithOutboxCapacity overrides how many queued frames a slow client may
// accumulate before the server drops it rather than blocking the broadcast
// that feeds every client's outbox.
func WithOutboxCapacity(n int) Option {
	return func(c *Config) { c.outboxCapacity = n }
}

// WithWriteTimeout bounds how long a single frame write to a client may take
// before the connection is considered dead.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) { c.writeTimeout = d }
}
