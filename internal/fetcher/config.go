package fetcher

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	http_transport "github.com/oshokin/http-fetcher/internal/transport/http"
)

// DefaultCharacterEncoding is the encoding used to decode bodies into strings.
const DefaultCharacterEncoding = "UTF-8"

// Config holds the construction-time settings of a Fetcher.
// Zero values are replaced with defaults.
type Config struct {
	// CharacterEncoding is the IANA charset name used by Decode and the *String methods.
	CharacterEncoding string
	// UserAgent is sent on requests that do not set one. Empty keeps Go's default agent.
	UserAgent string
	// Timeout bounds each call, including the wait for a pooled connection.
	Timeout time.Duration
	// MaxConnectionsPerRoute bounds the connections to a single host.
	MaxConnectionsPerRoute int
	// MaxConnectionsTotal bounds the requests in flight across all hosts.
	MaxConnectionsTotal int
	// InsecureSkipVerify disables TLS certificate and hostname verification.
	InsecureSkipVerify bool
	// MaxLogLength caps request/response dumps logged at debug level.
	MaxLogLength uint64
	// Registerer receives the fetcher's metrics. Nil disables metrics.
	Registerer prometheus.Registerer
}

// Static error definitions for better error handling.
var (
	// ErrInvalidTimeout indicates a negative timeout.
	ErrInvalidTimeout = errors.New("timeout must not be negative")
	// ErrUnsupportedEncoding indicates a character encoding that cannot be decoded.
	ErrUnsupportedEncoding = errors.New("unsupported character encoding")
	// ErrDecodeFailed indicates that a body could not be decoded with the configured encoding.
	ErrDecodeFailed = errors.New("failed to decode body")
)

// DefaultConfig returns the default settings: UTF-8, 15 s timeout, 5 connections per route, 10 in total.
func DefaultConfig() Config {
	return Config{
		CharacterEncoding:      DefaultCharacterEncoding,
		Timeout:                http_transport.DefaultTimeout,
		MaxConnectionsPerRoute: http_transport.DefaultMaxConnectionsPerRoute,
		MaxConnectionsTotal:    http_transport.DefaultMaxConnectionsTotal,
		MaxLogLength:           http_transport.DefaultMaxLogLength,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()

	if c.CharacterEncoding == "" {
		c.CharacterEncoding = defaults.CharacterEncoding
	}

	if c.Timeout == 0 {
		c.Timeout = defaults.Timeout
	}

	if c.MaxConnectionsPerRoute == 0 {
		c.MaxConnectionsPerRoute = defaults.MaxConnectionsPerRoute

		// An explicit total smaller than the default per-route limit caps it.
		if c.MaxConnectionsTotal > 0 {
			c.MaxConnectionsPerRoute = min(c.MaxConnectionsPerRoute, c.MaxConnectionsTotal)
		}
	}

	if c.MaxConnectionsTotal == 0 {
		c.MaxConnectionsTotal = max(defaults.MaxConnectionsTotal, c.MaxConnectionsPerRoute)
	}

	if c.MaxLogLength == 0 {
		c.MaxLogLength = defaults.MaxLogLength
	}

	return c
}
