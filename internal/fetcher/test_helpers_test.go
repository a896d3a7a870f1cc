package fetcher

import (
	"bytes"
	"net/http"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// newTestFetcher creates a Fetcher whose logs are captured by an observer.
func newTestFetcher(t *testing.T, cfg Config) (*Fetcher, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)

	f, err := NewFetcher(cfg, zap.New(core).Sugar())
	require.NoError(t, err)

	t.Cleanup(f.Close)

	return f, logs
}

// gzipBytes compresses payload.
func gzipBytes(t *testing.T, payload []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	writer := gzip.NewWriter(&buf)
	_, err := writer.Write(payload)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	return buf.Bytes()
}

// writeBody writes status and body, ignoring write errors from closed connections.
func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
