package http

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap/zapcore"

	"github.com/oshokin/http-fetcher/internal/logger"
	"github.com/oshokin/http-fetcher/internal/utils"
)

// LogTransport is a custom http.RoundTripper that dumps HTTP requests and responses at debug level.
// It wraps another http.RoundTripper and writes to an injected logger.
type LogTransport struct {
	// next is the underlying HTTP round tripper.
	next http.RoundTripper
	// log receives the dumps.
	log logger.KVLogger
	// maxLogLength is the maximum length of logged request/response data.
	maxLogLength uint64
}

// Static error definitions for better error handling.
var (
	// ErrNilRequest indicates that the HTTP request is nil.
	ErrNilRequest = errors.New("request is nil")
)

// NewLogTransport creates and returns a new instance of LogTransport.
// If maxLogLength is 0, it defaults to DefaultMaxLogLength. A nil logger discards everything.
func NewLogTransport(next http.RoundTripper, log logger.KVLogger, maxLogLength uint64) http.RoundTripper {
	if maxLogLength == 0 {
		maxLogLength = DefaultMaxLogLength
	}

	if log == nil {
		log = logger.Nop()
	}

	return &LogTransport{
		next:         next,
		log:          log,
		maxLogLength: maxLogLength,
	}
}

// RoundTrip executes a single HTTP transaction and logs the request and response.
// It implements the http.RoundTripper interface.
func (t *LogTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, ErrNilRequest
	}

	// Skip dumping if the logger is not at debug level.
	if !t.log.Level().Enabled(zapcore.DebugLevel) {
		return t.next.RoundTrip(req)
	}

	requestDump := t.dumpRequest(req)

	startTime := time.Now()

	resp, err := t.next.RoundTrip(req)

	duration := time.Since(startTime)

	if err != nil {
		t.log.Debugw("Request failed",
			"method", req.Method,
			"url", req.URL.String(),
			"duration", duration,
			"error", err)

		return nil, err
	}

	responseDump := t.dumpResponse(resp)

	t.log.Debugw("Round trip",
		"method", req.Method,
		"url", req.URL.String(),
		"status", resp.StatusCode,
		"duration", duration,
		"request", requestDump,
		"response", responseDump)

	return resp, nil
}

func (t *LogTransport) dumpRequest(req *http.Request) string {
	// DumpRequestOut restores the body, so the request can still be sent.
	dump, err := httputil.DumpRequestOut(req, utils.IsTextContentType(req.Header.Get(HeaderContentType)))
	if err != nil {
		return err.Error()
	}

	return t.truncate(dump)
}

func (t *LogTransport) dumpResponse(resp *http.Response) string {
	// Body is only dumped for textual, uncompressed responses.
	withBody := utils.IsTextContentType(resp.Header.Get(HeaderContentType)) &&
		resp.Header.Get("Content-Encoding") == ""

	dump, err := httputil.DumpResponse(resp, withBody)
	if err != nil {
		return err.Error()
	}

	return t.truncate(dump)
}

func (t *LogTransport) truncate(data []byte) string {
	if uint64(len(data)) > t.maxLogLength {
		return string(data[:t.maxLogLength]) + "... [truncated, " + humanize.Bytes(uint64(len(data))) + " total]"
	}

	return string(data)
}
