package client

import (
	"crypto/ed25519"
	"net/http"
	"time"
)

// Config holds a Client's tunables, built up through functional Options the
// way this codebase configures every long-running component.
type Config struct {
	addr      string
	storeDir  string
	issuerKey ed25519.PublicKey

	oneshot bool

	reconnectDelay    time.Duration
	reconnectAttempts int

	pingInterval time.Duration
	dialTimeout  time.Duration

	httpClient *http.Client
}

// Option mutates a Config at construction time.
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		reconnectDelay:    2 * time.Second,
		reconnectAttempts: 3,
		pingInterval:      15 * time.Second,
		dialTimeout:       5 * time.Second,
		httpClient:        http.DefaultClient,
	}
}

func applyConfig(opts []Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithAddr sets the server address to dial (host:port).
func WithAddr(addr string) Option {
	return func(c *Config) { c.addr = addr }
}

// WithStoreDir sets the content-addressed store directory used to persist
// and resume fetched drivers across restarts. Unset (or combined with
// WithOneshot) means no driver is ever persisted.
func WithStoreDir(dir string) Option {
	return func(c *Config) { c.storeDir = dir }
}

// WithIssuerKey sets the Ed25519 public key used to verify fetched driver
// artifacts. Required; New returns an error when it is missing.
func WithIssuerKey(pub ed25519.PublicKey) Option {
	return func(c *Config) { c.issuerKey = pub }
}

// WithOneshot makes the client send Hello::Oneshot on every connection,
// forcing a full download and never touching the on-disk store.
func WithOneshot(oneshot bool) Option {
	return func(c *Config) { c.oneshot = oneshot }
}

// WithReconnectPolicy overrides the default backoff (2s delay, 3 attempts)
// used when the connection to the server drops unexpectedly.
func WithReconnectPolicy(delay time.Duration, attempts int) Option {
	return func(c *Config) {
		c.reconnectDelay = delay
		c.reconnectAttempts = attempts
	}
}

// WithPingInterval overrides how often the pump loop sends UpRequest::Ping.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) { c.pingInterval = d }
}

// WithDialTimeout overrides the TCP dial timeout.
func WithDialTimeout(d time.Duration) Option {
	return func(c *Config) { c.dialTimeout = d }
}

// WithHTTPClient overrides the client used to fetch out-of-band driver
// downloads referenced by a non-empty Welcome URI.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Config) { c.httpClient = h }
}
