package http

import "time"

const (
	// DefaultTimeout is the default connect and read timeout for HTTP requests.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxConnectionsPerRoute is the default number of connections kept per destination host.
	DefaultMaxConnectionsPerRoute = 5

	// DefaultMaxConnectionsTotal is the default number of connections across all destinations.
	DefaultMaxConnectionsTotal = 10

	// DefaultMaxLogLength is the default maximum size of a logged request or response dump.
	DefaultMaxLogLength = 1 * 1024 * 1024 // 1 MB

	// defaultKeepAlive is the TCP keep-alive period for pooled connections.
	defaultKeepAlive = 30 * time.Second

	// defaultIdleConnTimeout is how long an idle pooled connection is kept before closing.
	defaultIdleConnTimeout = 90 * time.Second
)

const (
	// HeaderUserAgent is the HTTP header name for User-Agent.
	HeaderUserAgent = "User-Agent"
	// HeaderContentType is the HTTP header name for Content-Type.
	HeaderContentType = "Content-Type"
)
