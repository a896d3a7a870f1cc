package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Request describes a single call. It is built per call and never retained by the Fetcher.
type Request struct {
	// Method is the HTTP method. Empty means GET.
	Method string
	// URL is the absolute http or https target.
	URL *url.URL
	// Headers are applied with canonical, case-insensitive names.
	Headers map[string]string
	// Body is sent as the request payload when non-empty.
	Body []byte
}

// Response is a successful outcome.
type Response struct {
	// StatusCode is 200 or 202.
	StatusCode int
	// Header holds the response headers. Content-Encoding is removed once the body is decompressed.
	Header http.Header
	// Body is the full, decompressed response body.
	Body []byte
}

// NewRequest parses rawURL and builds a Request.
func NewRequest(method, rawURL string, headers map[string]string, body []byte) (*Request, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	return &Request{
		Method:  method,
		URL:     target,
		Headers: headers,
		Body:    body,
	}, nil
}

func (r *Request) validate() error {
	if r.URL == nil {
		return fmt.Errorf("%w: missing URL", ErrInvalidURL)
	}

	if (r.URL.Scheme != "http" && r.URL.Scheme != "https") || r.URL.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute http(s) URL", ErrInvalidURL, r.URL.String())
	}

	return nil
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}

	return r.Method
}

func (r *Request) target() string {
	if r.URL == nil {
		return ""
	}

	return r.URL.String()
}

// toHTTP builds the outgoing request, adding Accept-Encoding: gzip unless the caller set it.
func (r *Request) toHTTP(ctx context.Context) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, r.method(), r.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	for name, value := range r.Headers {
		req.Header.Set(name, value)
	}

	if req.Header.Get(headerAcceptEncoding) == "" {
		req.Header.Set(headerAcceptEncoding, encodingGzip)
	}

	return req, nil
}
