package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a FetchError.
type Kind uint8

const (
	// KindFetchFailed is the generic failure: an unmapped status code or a transport error.
	KindFetchFailed Kind = iota
	// KindNotFound is HTTP 404.
	KindNotFound
	// KindBadRequest is HTTP 400.
	KindBadRequest
	// KindForbidden is HTTP 403.
	KindForbidden
	// KindPreconditionFailed is HTTP 412.
	KindPreconditionFailed
)

// maxErrorBodyLength caps how much of a response body is rendered by FetchError.Error.
const maxErrorBodyLength = 512

// Static error definitions for better error handling.
var (
	// ErrFetchFailed matches every FetchError.
	ErrFetchFailed = errors.New("http fetch failed")
	// ErrNotFound matches FetchErrors of KindNotFound.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest matches FetchErrors of KindBadRequest.
	ErrBadRequest = errors.New("bad request")
	// ErrForbidden matches FetchErrors of KindForbidden.
	ErrForbidden = errors.New("forbidden")
	// ErrPreconditionFailed matches FetchErrors of KindPreconditionFailed.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrTimeout tags transport failures caused by the call deadline or a network timeout.
	ErrTimeout = errors.New("request timed out")
	// ErrUnknownHost tags transport failures caused by host name resolution.
	ErrUnknownHost = errors.New("unknown host")
	// ErrInvalidURL tags requests whose URL is not an absolute http or https URL.
	ErrInvalidURL = errors.New("invalid request URL")
	// ErrDecompressFailed tags responses whose gzip body could not be decoded.
	ErrDecompressFailed = errors.New("failed to decompress gzip body")
)

// FetchError is returned instead of a body when a request does not succeed.
// Status failures carry StatusCode, Header and Body; transport failures carry Err and a zero StatusCode.
type FetchError struct {
	// Kind is the failure classification.
	Kind Kind
	// Method is the HTTP method of the failed request.
	Method string
	// URL is the target of the failed request.
	URL string
	// StatusCode is the response status, or 0 when no response was received.
	StatusCode int
	// Header holds the response headers of a status failure.
	Header http.Header
	// Body is the decompressed response body of a status failure.
	Body []byte
	// Err is the underlying transport cause.
	Err error
}

// String returns the snake_case name of the kind, used as a metrics label.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	case KindForbidden:
		return "forbidden"
	case KindPreconditionFailed:
		return "precondition_failed"
	case KindFetchFailed:
		return "fetch_failed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindBadRequest:
		return ErrBadRequest
	case KindForbidden:
		return ErrForbidden
	case KindPreconditionFailed:
		return ErrPreconditionFailed
	default:
		return ErrFetchFailed
	}
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v: %v", e.Method, e.URL, ErrFetchFailed, e.Err)
	}

	body := e.Body
	suffix := ""

	if len(body) > maxErrorBodyLength {
		body = body[:maxErrorBodyLength]
		suffix = "..."
	}

	return fmt.Sprintf("%s %s: %v (status %d): %s%s", e.Method, e.URL, e.Kind.sentinel(), e.StatusCode, body, suffix)
}

// Unwrap returns the underlying transport cause, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrFetchFailed or the sentinel of the error's kind.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed || target == e.Kind.sentinel()
}

// IsTransport reports whether the failure happened before a response status was received.
func (e *FetchError) IsTransport() bool {
	return e.StatusCode == 0
}

// AsFetchError unwraps err into a *FetchError.
func AsFetchError(err error) (*FetchError, bool) {
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		return fetchErr, true
	}

	return nil, false
}

// isSuccessStatus reports whether the status code yields a body.
func isSuccessStatus(code int) bool {
	return code == http.StatusOK || code == http.StatusAccepted
}

// kindForStatus maps a non-success status code to its kind.
func kindForStatus(code int) Kind {
	switch code {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusPreconditionFailed:
		return KindPreconditionFailed
	default:
		return KindFetchFailed
	}
}

// tagTransportCause wraps err with ErrUnknownHost or ErrTimeout when it is one of those failures.
func tagTransportCause(err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return fmt.Errorf("%w: %w", ErrUnknownHost, err)
	}

	if isTimeout(err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return err
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}
