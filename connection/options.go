package connection

import (
	"crypto/tls"
	"time"

	"github.com/sealdb/driver/wiremessage"
)

type config struct {
	dialer      Dialer
	tlsConfig   *tls.Config
	handshaker  Handshaker
	compressors []wiremessage.Compressor

	idleTimeout  time.Duration
	maxLifetime  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// Option configures a connection built by New, following the teacher's
// functional-option convention for connection.Option.
type Option func(*config) error

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{dialer: DefaultDialer}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithDialer overrides the default *net.Dialer.
func WithDialer(d Dialer) Option {
	return func(c *config) error { c.dialer = d; return nil }
}

// WithTLSConfig enables a TLS upgrade of the raw TCP connection.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(c *config) error { c.tlsConfig = cfg; return nil }
}

// WithHandshaker sets the hello/isMaster + auth callback run right after
// dialing (and TLS, if configured).
func WithHandshaker(h Handshaker) Option {
	return func(c *config) error { c.handshaker = h; return nil }
}

// WithCompressors offers a set of compressors to negotiate with the server
// (§4.10); the handshake result determines which one, if any, gets used.
func WithCompressors(compressors ...wiremessage.Compressor) Option {
	return func(c *config) error { c.compressors = compressors; return nil }
}

// WithIdleTimeout sets how long a connection may sit unused in a pool
// before it is considered expired (§4.4).
func WithIdleTimeout(d time.Duration) Option {
	return func(c *config) error { c.idleTimeout = d; return nil }
}

// WithMaxLifetime bounds the total lifetime of a connection regardless of
// use, forcing periodic rotation (§4.4).
func WithMaxLifetime(d time.Duration) Option {
	return func(c *config) error { c.maxLifetime = d; return nil }
}

// WithReadTimeout and WithWriteTimeout bound individual socket operations,
// independent of any context deadline also in effect.
func WithReadTimeout(d time.Duration) Option {
	return func(c *config) error { c.readTimeout = d; return nil }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) error { c.writeTimeout = d; return nil }
}
