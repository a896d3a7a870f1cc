package http

import (
	"net/http"

	"github.com/oshokin/http-fetcher/internal/utils"
)

// UserAgentInjector is a custom http.RoundTripper that injects a User-Agent header into HTTP requests.
// Requests that already carry a non-empty User-Agent are forwarded untouched.
type UserAgentInjector struct {
	// next is the underlying HTTP round tripper.
	next http.RoundTripper
	// userAgentProvider provides the User-Agent string to inject.
	userAgentProvider utils.UserAgentProvider
}

// NewUserAgentInjector creates and returns a new instance of UserAgentInjector.
// It takes an underlying http.RoundTripper and a UserAgentProvider to supply the User-Agent string.
func NewUserAgentInjector(next http.RoundTripper, userAgentProvider utils.UserAgentProvider) http.RoundTripper {
	return &UserAgentInjector{
		next:              next,
		userAgentProvider: userAgentProvider,
	}
}

// RoundTrip injects a User-Agent header if it is missing and forwards the request.
// The caller's request is cloned before modification, as http.RoundTripper requires.
func (t *UserAgentInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	if req.Header.Get(HeaderUserAgent) != "" {
		return t.next.RoundTrip(req)
	}

	userAgent := t.userAgentProvider.GetUserAgent()
	if userAgent == "" {
		return t.next.RoundTrip(req)
	}

	req = req.Clone(req.Context())
	req.Header.Set(HeaderUserAgent, userAgent)

	return t.next.RoundTrip(req)
}
