// Package http provides the transport layer used by the fetcher:
// a bounded connection pool built on go-cleanhttp's pooled transport,
// debug dumping of requests and responses, and User-Agent header injection.
// Every constructor returns an http.RoundTripper so the pieces can be chained.
package http
