package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/text/encoding"

	"github.com/oshokin/http-fetcher/internal/logger"
	"github.com/oshokin/http-fetcher/internal/metrics"
	http_transport "github.com/oshokin/http-fetcher/internal/transport/http"
	"github.com/oshokin/http-fetcher/internal/utils"
)

// outcomeSuccess and outcomeTransportError complete Kind.String as metrics outcome labels.
const (
	outcomeSuccess        = "success"
	outcomeTransportError = "transport_error"
)

// Fetcher issues HTTP requests over an owned connection pool and classifies their outcomes.
// It holds no per-request state and is safe for concurrent use.
type Fetcher struct {
	// httpClient sends requests through the transport chain.
	httpClient *http.Client
	// pool is the bounded transport at the bottom of the chain.
	pool *http_transport.PoolTransport
	// encoding decodes bodies into strings.
	encoding encoding.Encoding
	// characterEncoding is the configured charset name.
	characterEncoding string
	// timeout bounds every call.
	timeout time.Duration
	// log receives the fetcher's diagnostics.
	log logger.KVLogger
	// metrics is nil when metrics are disabled.
	metrics *metrics.Metrics
}

// NewFetcher creates a Fetcher. A nil log discards diagnostics.
func NewFetcher(cfg Config, log logger.KVLogger) (*Fetcher, error) {
	cfg = cfg.withDefaults()

	if log == nil {
		log = logger.Nop()
	}

	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimeout, cfg.Timeout)
	}

	enc, err := lookupEncoding(cfg.CharacterEncoding)
	if err != nil {
		return nil, err
	}

	pool, err := http_transport.NewPooledTransport(http_transport.PoolConfig{
		MaxConnectionsPerRoute: cfg.MaxConnectionsPerRoute,
		MaxConnectionsTotal:    cfg.MaxConnectionsTotal,
		Timeout:                cfg.Timeout,
		InsecureSkipVerify:     cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Chain: User-Agent injection -> debug dumps -> bounded pool.
	transport := http_transport.NewLogTransport(pool, log, cfg.MaxLogLength)
	if cfg.UserAgent != "" {
		transport = http_transport.NewUserAgentInjector(transport, utils.NewSimpleUserAgentProvider(cfg.UserAgent))
	}

	log.Infow("Initializing fetcher",
		"character_encoding", cfg.CharacterEncoding,
		"user_agent", cfg.UserAgent,
		"timeout", cfg.Timeout,
		"max_connections_per_route", cfg.MaxConnectionsPerRoute,
		"max_connections_total", cfg.MaxConnectionsTotal)

	if cfg.InsecureSkipVerify {
		log.Warnw("TLS certificate and hostname verification is DISABLED; responses can be forged by any network peer")
	}

	fetcherMetrics, err := metrics.New(cfg.Registerer, func() (int64, int64) {
		stats := pool.Stats()

		return stats.Leased, stats.Pending
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	return &Fetcher{
		httpClient:        &http.Client{Transport: transport},
		pool:              pool,
		encoding:          enc,
		characterEncoding: cfg.CharacterEncoding,
		timeout:           cfg.Timeout,
		log:               log,
		metrics:           fetcherMetrics,
	}, nil
}

// Get fetches rawURL and returns the response body.
func (f *Fetcher) Get(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return f.fetch(ctx, http.MethodGet, rawURL, headers, nil)
}

// GetURL fetches an already parsed URL and returns the response body.
func (f *Fetcher) GetURL(ctx context.Context, target *url.URL, headers map[string]string) ([]byte, error) {
	resp, err := f.Do(ctx, &Request{Method: http.MethodGet, URL: target, Headers: headers})
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

// GetString fetches rawURL and returns the body decoded with the configured encoding.
func (f *Fetcher) GetString(ctx context.Context, rawURL string, headers map[string]string) (string, error) {
	return f.decoded(f.Get(ctx, rawURL, headers))
}

// Post sends body to rawURL and returns the response body.
func (f *Fetcher) Post(ctx context.Context, rawURL string, headers map[string]string, body []byte) ([]byte, error) {
	return f.fetch(ctx, http.MethodPost, rawURL, headers, body)
}

// PostString sends body to rawURL and returns the response decoded with the configured encoding.
func (f *Fetcher) PostString(
	ctx context.Context,
	rawURL string,
	headers map[string]string,
	body []byte,
) (string, error) {
	return f.decoded(f.Post(ctx, rawURL, headers, body))
}

// Put sends body to rawURL with PUT and returns the response body.
func (f *Fetcher) Put(ctx context.Context, rawURL string, headers map[string]string, body []byte) ([]byte, error) {
	return f.fetch(ctx, http.MethodPut, rawURL, headers, body)
}

// Delete issues a DELETE to rawURL and returns the response body.
func (f *Fetcher) Delete(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return f.fetch(ctx, http.MethodDelete, rawURL, headers, nil)
}

// Options issues an OPTIONS request to rawURL and returns the response body.
func (f *Fetcher) Options(ctx context.Context, rawURL string, headers map[string]string) ([]byte, error) {
	return f.fetch(ctx, http.MethodOptions, rawURL, headers, nil)
}

// Do executes req and returns the full response. Failures are always *FetchError.
func (f *Fetcher) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, &FetchError{Kind: KindFetchFailed, Err: fmt.Errorf("%w: nil request", ErrInvalidURL)}
	}

	if err := req.validate(); err != nil {
		return nil, &FetchError{Kind: KindFetchFailed, Method: req.method(), URL: req.target(), Err: err}
	}

	return f.execute(ctx, req)
}

// Stats returns the current connection pool occupancy.
func (f *Fetcher) Stats() http_transport.PoolStats {
	return f.pool.Stats()
}

// Close releases idle pooled connections. The Fetcher stays usable.
func (f *Fetcher) Close() {
	f.pool.CloseIdleConnections()
}

func (f *Fetcher) fetch(
	ctx context.Context,
	method, rawURL string,
	headers map[string]string,
	body []byte,
) ([]byte, error) {
	req, err := NewRequest(method, rawURL, headers, body)
	if err != nil {
		return nil, &FetchError{Kind: KindFetchFailed, Method: method, URL: rawURL, Err: err}
	}

	resp, err := f.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}

func (f *Fetcher) decoded(body []byte, err error) (string, error) {
	if err != nil {
		return "", err
	}

	return f.Decode(body), nil
}

// execute is the single path every call goes through.
func (f *Fetcher) execute(ctx context.Context, req *Request) (*Response, error) {
	var (
		requestID = uuid.NewString()
		method    = req.method()
		target    = req.target()
		startTime = time.Now()
	)

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	f.log.Debugw("Executing request",
		"request_id", requestID,
		"method", method,
		"url", target,
		"headers", req.Headers)
	f.log.Debugw("Connection stats",
		"request_id", requestID,
		"pool", f.pool.Stats().String())

	httpRequest, err := req.toHTTP(ctx)
	if err != nil {
		return nil, &FetchError{Kind: KindFetchFailed, Method: method, URL: target, Err: err}
	}

	httpResponse, err := f.httpClient.Do(httpRequest)
	if err != nil {
		return nil, f.transportFailure(requestID, method, target, startTime, err)
	}

	defer httpResponse.Body.Close() //nolint:errcheck // Body is fully read; close error is not actionable.

	body, err := readBody(httpResponse)
	if err != nil {
		return nil, f.transportFailure(requestID, method, target, startTime, err)
	}

	if isSuccessStatus(httpResponse.StatusCode) {
		f.metrics.ObserveRequest(method, outcomeSuccess, time.Since(startTime), len(body))
		f.log.Debugw("Request succeeded",
			"request_id", requestID,
			"status", httpResponse.StatusCode,
			"size", humanize.Bytes(uint64(len(body))),
			"duration", time.Since(startTime))

		return &Response{
			StatusCode: httpResponse.StatusCode,
			Header:     httpResponse.Header,
			Body:       body,
		}, nil
	}

	kind := kindForStatus(httpResponse.StatusCode)

	f.metrics.ObserveRequest(method, kind.String(), time.Since(startTime), len(body))
	f.log.Debugw("Request returned failure status",
		"request_id", requestID,
		"status", httpResponse.StatusCode,
		"kind", kind.String(),
		"duration", time.Since(startTime))

	return nil, &FetchError{
		Kind:       kind,
		Method:     method,
		URL:        target,
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       body,
	}
}

func (f *Fetcher) transportFailure(requestID, method, target string, startTime time.Time, err error) error {
	cause := tagTransportCause(err)

	f.metrics.ObserveRequest(method, outcomeTransportError, time.Since(startTime), -1)

	if errors.Is(cause, ErrUnknownHost) {
		f.log.Infow("Caught unknown host",
			"request_id", requestID,
			"method", method,
			"url", target,
			"error", err)
	} else {
		f.log.Warnw("Request failed",
			"request_id", requestID,
			"method", method,
			"url", target,
			"duration", time.Since(startTime),
			"error", cause)
	}

	return &FetchError{Kind: KindFetchFailed, Method: method, URL: target, Err: cause}
}
