package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	http_transport "github.com/oshokin/http-fetcher/internal/transport/http"
)

// TestFetcher_Get_Scenario tests the basic success and not-found scenario.
func TestFetcher_Get_Scenario(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, []byte("hello"))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusNotFound, []byte("not here"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	f, _ := newTestFetcher(t, DefaultConfig())
	ctx := context.Background()

	body, err := f.Get(ctx, server.URL+"/ok", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), body)

	body, err = f.Get(ctx, server.URL+"/missing", nil)
	require.Error(t, err)
	assert.Nil(t, body)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, err, ErrFetchFailed)

	fetchErr, ok := AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, fetchErr.Kind)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.Equal(t, "not here", string(fetchErr.Body))
	assert.False(t, fetchErr.IsTransport())
}

// TestFetcher_StatusClassification tests the mapping from status codes to outcomes.
func TestFetcher_StatusClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantErr  error
	}{
		{name: "ok", status: http.StatusOK, body: "ok body"},
		{name: "accepted", status: http.StatusAccepted, body: "queued"},
		{
			name: "not found", status: http.StatusNotFound, body: "nothing",
			wantKind: KindNotFound, wantErr: ErrNotFound,
		},
		{
			name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad"}`,
			wantKind: KindBadRequest, wantErr: ErrBadRequest,
		},
		{
			name: "forbidden", status: http.StatusForbidden, body: "go away",
			wantKind: KindForbidden, wantErr: ErrForbidden,
		},
		{
			name: "precondition failed", status: http.StatusPreconditionFailed, body: "etag mismatch",
			wantKind: KindPreconditionFailed, wantErr: ErrPreconditionFailed,
		},
		{
			name: "internal server error", status: http.StatusInternalServerError, body: "boom",
			wantKind: KindFetchFailed, wantErr: ErrFetchFailed,
		},
		{
			name: "created is not a success", status: http.StatusCreated, body: "made",
			wantKind: KindFetchFailed, wantErr: ErrFetchFailed,
		},
		{
			name: "unauthorized", status: http.StatusUnauthorized, body: "login",
			wantKind: KindFetchFailed, wantErr: ErrFetchFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				writeBody(w, tt.status, []byte(tt.body))
			}))
			defer server.Close()

			f, _ := newTestFetcher(t, DefaultConfig())

			body, err := f.Get(context.Background(), server.URL, nil)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, tt.body, string(body))

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			require.ErrorIs(t, err, ErrFetchFailed)

			fetchErr, ok := AsFetchError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, fetchErr.Kind)
			assert.Equal(t, tt.status, fetchErr.StatusCode)
			assert.Equal(t, tt.body, string(fetchErr.Body))
			assert.Contains(t, fetchErr.Error(), tt.body)
		})
	}
}

// TestFetcher_Gzip tests transparent decompression and Accept-Encoding negotiation.
func TestFetcher_Gzip(t *testing.T) {
	t.Parallel()

	payload := []byte(strings.Repeat("compressible payload ", 200))
	compressed := gzipBytes(t, payload)

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gzip", r.Header.Get("Accept-Encoding"))
		w.Header().Set("Content-Encoding", "gzip")
		writeBody(w, http.StatusOK, compressed)
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "GZIP")
		writeBody(w, http.StatusNotFound, gzipBytes(t, []byte("compressed not found")))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusAccepted)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	f, _ := newTestFetcher(t, DefaultConfig())
	ctx := context.Background()

	resp, err := f.Do(ctx, &Request{URL: mustParse(t, server.URL+"/ok")})
	require.NoError(t, err)
	assert.Equal(t, payload, resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))

	_, err = f.Get(ctx, server.URL+"/missing", nil)
	require.ErrorIs(t, err, ErrNotFound)

	fetchErr, ok := AsFetchError(err)
	require.True(t, ok)
	assert.Equal(t, "compressed not found", string(fetchErr.Body))

	body, err := f.Get(ctx, server.URL+"/empty", nil)
	require.NoError(t, err)
	assert.Empty(t, body)
}

// TestFetcher_CorruptGzip tests that an undecodable gzip body is a transport-level failure.
func TestFetcher_CorruptGzip(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		writeBody(w, http.StatusOK, []byte("definitely not gzip"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, DefaultConfig())

	_, err := f.Get(context.Background(), server.URL, nil)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, ErrDecompressFailed)
}

// TestFetcher_Headers tests header application, Accept-Encoding preservation and User-Agent handling.
func TestFetcher_Headers(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, []byte(strings.Join([]string{
			r.Header.Get("Accept-Encoding"),
			r.Header.Get("User-Agent"),
			r.Header.Get("X-Custom"),
		}, "|")))
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.UserAgent = "http-fetcher-test/1.0"

	f, _ := newTestFetcher(t, cfg)
	ctx := context.Background()

	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "defaults",
			headers:  nil,
			expected: "gzip|http-fetcher-test/1.0|",
		},
		{
			name:     "caller accept-encoding is kept",
			headers:  map[string]string{"accept-encoding": "identity"},
			expected: "identity|http-fetcher-test/1.0|",
		},
		{
			name:     "caller user agent wins",
			headers:  map[string]string{"USER-AGENT": "caller/2.0", "x-custom": "value"},
			expected: "gzip|caller/2.0|value",
		},
	}

	for _, tt := range tests {
		body, err := f.GetString(ctx, server.URL, tt.headers)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, body, tt.name)
	}
}

// TestFetcher_Methods tests that every method helper sends the right verb and body.
func TestFetcher_Methods(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		writeBody(w, http.StatusOK, []byte(r.Method+":"+string(payload)))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, DefaultConfig())
	ctx := context.Background()
	headers := map[string]string{"Content-Type": "text/plain"}

	tests := []struct {
		name     string
		call     func() ([]byte, error)
		expected string
	}{
		{
			name:     "get",
			call:     func() ([]byte, error) { return f.Get(ctx, server.URL, headers) },
			expected: "GET:",
		},
		{
			name:     "get parsed url",
			call:     func() ([]byte, error) { return f.GetURL(ctx, mustParse(t, server.URL), headers) },
			expected: "GET:",
		},
		{
			name:     "post",
			call:     func() ([]byte, error) { return f.Post(ctx, server.URL, headers, []byte("created")) },
			expected: "POST:created",
		},
		{
			name:     "post without body",
			call:     func() ([]byte, error) { return f.Post(ctx, server.URL, headers, nil) },
			expected: "POST:",
		},
		{
			name:     "put",
			call:     func() ([]byte, error) { return f.Put(ctx, server.URL, headers, []byte("replaced")) },
			expected: "PUT:replaced",
		},
		{
			name:     "delete",
			call:     func() ([]byte, error) { return f.Delete(ctx, server.URL, headers) },
			expected: "DELETE:",
		},
		{
			name:     "options",
			call:     func() ([]byte, error) { return f.Options(ctx, server.URL, headers) },
			expected: "OPTIONS:",
		},
	}

	for _, tt := range tests {
		body, err := tt.call()
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, string(body), tt.name)
	}

	text, err := f.PostString(ctx, server.URL, headers, []byte("as string"))
	require.NoError(t, err)
	assert.Equal(t, "POST:as string", text)
}

// TestFetcher_Idempotence tests that repeated GETs of an unchanged resource return identical bytes.
func TestFetcher_Idempotence(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, []byte("stable resource"))
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, DefaultConfig())

	first, err := f.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	second, err := f.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestFetcher_Timeout tests that an unresponsive endpoint fails with a timeout instead of hanging.
func TestFetcher_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := DefaultConfig()
	cfg.Timeout = 100 * time.Millisecond

	f, _ := newTestFetcher(t, cfg)

	startTime := time.Now()

	_, err := f.Get(context.Background(), server.URL, nil)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(startTime), 3*time.Second)

	fetchErr, ok := AsFetchError(err)
	require.True(t, ok)
	assert.True(t, fetchErr.IsTransport())
	assert.Equal(t, KindFetchFailed, fetchErr.Kind)
}

// TestFetcher_UnknownHost tests that an unresolvable host is reported as a host-resolution failure.
func TestFetcher_UnknownHost(t *testing.T) {
	t.Parallel()

	f, logs := newTestFetcher(t, DefaultConfig())

	// The .invalid TLD is reserved and never resolves.
	_, err := f.Get(context.Background(), "http://no-such-host.invalid/", nil)
	require.ErrorIs(t, err, ErrFetchFailed)
	require.ErrorIs(t, err, ErrUnknownHost)
	assert.NotErrorIs(t, err, ErrNotFound)

	fetchErr, ok := AsFetchError(err)
	require.True(t, ok)
	assert.True(t, fetchErr.IsTransport())
	assert.Nil(t, fetchErr.Body)

	assert.Equal(t, 1, logs.FilterMessage("Caught unknown host").Len())
}

// TestFetcher_InvalidURL tests that malformed or non-http URLs are rejected before sending.
func TestFetcher_InvalidURL(t *testing.T) {
	t.Parallel()

	f, _ := newTestFetcher(t, DefaultConfig())

	for _, rawURL := range []string{"://missing-scheme", "ftp://example.com/file", "relative/path", ""} {
		_, err := f.Get(context.Background(), rawURL, nil)
		require.ErrorIs(t, err, ErrFetchFailed, rawURL)
		require.ErrorIs(t, err, ErrInvalidURL, rawURL)
	}

	_, err := f.Do(context.Background(), nil)
	require.ErrorIs(t, err, ErrInvalidURL)

	_, err = f.GetURL(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrInvalidURL)
}

// TestFetcher_CharacterEncoding tests decoding with a non-UTF-8 encoding.
func TestFetcher_CharacterEncoding(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		// "café" in ISO-8859-1.
		writeBody(w, http.StatusOK, []byte{'c', 'a', 'f', 0xE9})
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.CharacterEncoding = "ISO-8859-1"

	f, _ := newTestFetcher(t, cfg)

	text, err := f.GetString(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "café", text)

	raw, err := f.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xE9}, raw)
}

// TestNewFetcher_InvalidConfig tests construction-time validation.
func TestNewFetcher_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "unknown encoding",
			mutate:  func(c *Config) { c.CharacterEncoding = "no-such-charset" },
			wantErr: ErrUnsupportedEncoding,
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Timeout = -time.Second },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative pool size",
			mutate:  func(c *Config) { c.MaxConnectionsTotal = -1 },
			wantErr: http_transport.ErrInvalidPoolLimit,
		},
		{
			name: "per route above total",
			mutate: func(c *Config) {
				c.MaxConnectionsPerRoute = 20
				c.MaxConnectionsTotal = 10
			},
			wantErr: http_transport.ErrPerRouteExceedsTotal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := DefaultConfig()
			tt.mutate(&cfg)

			f, err := NewFetcher(cfg, nil)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, f)
		})
	}
}

// TestNewFetcher_Defaults tests that a zero Config gets the documented defaults.
func TestNewFetcher_Defaults(t *testing.T) {
	t.Parallel()

	f, err := NewFetcher(Config{}, nil)
	require.NoError(t, err)

	defer f.Close()

	stats := f.Stats()
	assert.Equal(t, int64(10), stats.Max)
	assert.Equal(t, 5, stats.MaxPerRoute)
	assert.Equal(t, int64(0), stats.Leased)
	assert.Equal(t, 15*time.Second, f.timeout)
	assert.Equal(t, DefaultCharacterEncoding, f.characterEncoding)
}

// TestNewFetcher_PartialPoolLimits tests how a missing pool limit is derived from the one given.
func TestNewFetcher_PartialPoolLimits(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		cfg             Config
		wantMax         int64
		wantMaxPerRoute int
	}{
		{
			name:            "total below default per-route",
			cfg:             Config{MaxConnectionsTotal: 3},
			wantMax:         3,
			wantMaxPerRoute: 3,
		},
		{
			name:            "total above default per-route",
			cfg:             Config{MaxConnectionsTotal: 20},
			wantMax:         20,
			wantMaxPerRoute: 5,
		},
		{
			name:            "per-route above default total",
			cfg:             Config{MaxConnectionsPerRoute: 12},
			wantMax:         12,
			wantMaxPerRoute: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := NewFetcher(tt.cfg, nil)
			require.NoError(t, err)

			defer f.Close()

			stats := f.Stats()
			assert.Equal(t, tt.wantMax, stats.Max)
			assert.Equal(t, tt.wantMaxPerRoute, stats.MaxPerRoute)
		})
	}
}

// TestFetcher_InsecureSkipVerifyWarns tests that disabling TLS verification is logged loudly.
func TestFetcher_InsecureSkipVerifyWarns(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.InsecureSkipVerify = true

	_, logs := newTestFetcher(t, cfg)

	warnings := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "DISABLED")
}

// TestFetcher_TLSVerification tests that self-signed certificates are rejected unless verification is disabled.
func TestFetcher_TLSVerification(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, []byte("secure"))
	}))
	defer server.Close()

	strict, _ := newTestFetcher(t, DefaultConfig())

	_, err := strict.Get(context.Background(), server.URL, nil)
	require.ErrorIs(t, err, ErrFetchFailed)

	cfg := DefaultConfig()
	cfg.InsecureSkipVerify = true

	insecure, _ := newTestFetcher(t, cfg)

	body, err := insecure.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "secure", string(body))
}

// TestFetcher_Metrics tests that outcomes are counted per method.
func TestFetcher_Metrics(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, []byte("fine"))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusForbidden, []byte("no"))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Registerer = prometheus.NewRegistry()

	f, _ := newTestFetcher(t, cfg)
	ctx := context.Background()

	_, err := f.Get(ctx, server.URL+"/ok", nil)
	require.NoError(t, err)

	_, err = f.Get(ctx, server.URL+"/ok", nil)
	require.NoError(t, err)

	_, err = f.Post(ctx, server.URL+"/forbidden", nil, []byte("x"))
	require.ErrorIs(t, err, ErrForbidden)

	assert.InDelta(t, 2, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("GET", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(f.metrics.RequestsTotal.WithLabelValues("POST", "forbidden")), 0)
}

// TestNewFetcher_SharedRegisterer tests that several fetchers can report to one registry.
func TestNewFetcher_SharedRegisterer(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeBody(w, http.StatusOK, []byte("shared"))
	}))
	defer server.Close()

	reg := prometheus.NewRegistry()

	utf8Config := DefaultConfig()
	utf8Config.Registerer = reg

	latinConfig := DefaultConfig()
	latinConfig.CharacterEncoding = "ISO-8859-1"
	latinConfig.Registerer = reg

	first, _ := newTestFetcher(t, utf8Config)
	second, _ := newTestFetcher(t, latinConfig)

	ctx := context.Background()

	_, err := first.Get(ctx, server.URL, nil)
	require.NoError(t, err)

	_, err = second.Get(ctx, server.URL, nil)
	require.NoError(t, err)

	assert.InDelta(t, 2, testutil.ToFloat64(first.metrics.RequestsTotal.WithLabelValues("GET", "success")), 0)
	assert.NotEqual(t, first.metrics.PoolID, second.metrics.PoolID)
}

// TestFetcher_Logging tests that each call is logged with a correlation id.
func TestFetcher_Logging(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		writeBody(w, http.StatusOK, []byte("logged"))
	}))
	defer server.Close()

	f, logs := newTestFetcher(t, DefaultConfig())

	_, err := f.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)

	executing := logs.FilterMessage("Executing request").All()
	require.Len(t, executing, 1)
	assert.NotEmpty(t, executing[0].ContextMap()["request_id"])
	assert.Equal(t, http.MethodGet, executing[0].ContextMap()["method"])

	assert.Equal(t, 1, logs.FilterMessage("Connection stats").Len())
	assert.Equal(t, 1, logs.FilterMessage("Round trip").Len())
	assert.Equal(t, 1, logs.FilterMessage("Request succeeded").Len())
}

// TestFetcher_CallerContext tests that a caller deadline shorter than the timeout is honored.
func TestFetcher_CallerContext(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	f, _ := newTestFetcher(t, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := f.Get(ctx, server.URL, nil)
	require.ErrorIs(t, err, ErrTimeout)
}

func mustParse(t *testing.T, rawURL string) *url.URL {
	t.Helper()

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)

	return parsed
}
