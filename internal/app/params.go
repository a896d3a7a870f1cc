package app

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// Params describes the single request issued by the root command.
type Params struct {
	// Method is the HTTP method. Empty means GET.
	Method string
	// URL is the request target.
	URL string
	// Headers are sent with the request.
	Headers map[string]string
	// Body is the request payload.
	Body []byte
	// OutputPath receives the raw response body. Empty writes the decoded body to stdout.
	OutputPath string
}

// bodyFilePrefix marks a data argument that names a file to read the body from.
const bodyFilePrefix = "@"

// Static error definitions for better error handling.
var (
	// ErrUnsupportedMethod indicates an HTTP method the fetcher does not expose.
	ErrUnsupportedMethod = errors.New("unsupported HTTP method")
	// ErrBodyNotAllowed indicates a request body on a method that does not send one.
	ErrBodyNotAllowed = errors.New("request body is only supported for POST and PUT")
)

// SupportedMethods returns the methods accepted by the root command.
func SupportedMethods() []string {
	return []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
}

// ReadBodyArgument resolves a data argument: "@path" reads the file at path, anything else is sent as is.
func ReadBodyArgument(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}

	path, isFile := strings.CutPrefix(data, bodyFilePrefix)
	if !isFile {
		return []byte(data), nil
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body from file: %w", err)
	}

	return body, nil
}

// normalize upper-cases the method and checks that it can carry the body.
func (p *Params) normalize() error {
	p.Method = strings.ToUpper(strings.TrimSpace(p.Method))
	if p.Method == "" {
		p.Method = http.MethodGet
	}

	switch p.Method {
	case http.MethodPost, http.MethodPut:
		return nil
	case http.MethodGet, http.MethodDelete, http.MethodOptions:
		if len(p.Body) > 0 {
			return fmt.Errorf("%w: %s", ErrBodyNotAllowed, p.Method)
		}

		return nil
	default:
		return fmt.Errorf("%w: '%s' (supported: %s)",
			ErrUnsupportedMethod, p.Method, strings.Join(SupportedMethods(), ", "))
	}
}
