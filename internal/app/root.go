package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/oshokin/http-fetcher/internal/config"
	"github.com/oshokin/http-fetcher/internal/constants"
	"github.com/oshokin/http-fetcher/internal/fetcher"
	"github.com/oshokin/http-fetcher/internal/logger"
)

// maxLoggedBodyLength caps the failure body written to the log.
const maxLoggedBodyLength = 4096

// ExecuteRootCommand is the entry point for the application.
// It performs the request described by params and exits the process on failure.
func ExecuteRootCommand(ctx context.Context, cfg *config.Config, params Params) {
	if err := Run(ctx, cfg, params, os.Stdout); err != nil {
		logger.Fatalf(ctx, "Failed to fetch %s: %v", params.URL, err)
	}
}

// Run builds a fetcher from cfg, executes one request and writes the response body.
// The body goes to params.OutputPath as raw bytes, or to out decoded with the configured encoding.
func Run(ctx context.Context, cfg *config.Config, params Params, out io.Writer) error {
	if err := params.normalize(); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()

	f, err := fetcher.NewFetcher(cfg.ToFetcherConfig(registry), logger.FromContext(ctx).Named("fetcher"))
	if err != nil {
		return fmt.Errorf("failed to initialize fetcher: %w", err)
	}

	defer f.Close()

	ctx = logger.WithKV(ctx, "url", params.URL)

	body, err := execute(ctx, f, params)

	logMetrics(ctx, registry)

	if err != nil {
		logFailure(ctx, err)

		return err
	}

	return writeBody(ctx, f, params.OutputPath, body, out)
}

func execute(ctx context.Context, f *fetcher.Fetcher, params Params) ([]byte, error) {
	logger.Debugf(ctx, "Sending %s request", params.Method)

	switch params.Method {
	case http.MethodPost:
		return f.Post(ctx, params.URL, params.Headers, params.Body)
	case http.MethodPut:
		return f.Put(ctx, params.URL, params.Headers, params.Body)
	case http.MethodDelete:
		return f.Delete(ctx, params.URL, params.Headers)
	case http.MethodOptions:
		return f.Options(ctx, params.URL, params.Headers)
	default:
		return f.Get(ctx, params.URL, params.Headers)
	}
}

func writeBody(ctx context.Context, f *fetcher.Fetcher, outputPath string, body []byte, out io.Writer) error {
	if outputPath != "" {
		// The output directory is created if it doesn't exist.
		if err := os.MkdirAll(filepath.Dir(outputPath), constants.DefaultFolderPermissions); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		if err := os.WriteFile(outputPath, body, constants.DefaultFilePermissions); err != nil {
			return fmt.Errorf("failed to write response body: %w", err)
		}

		logger.Infof(ctx, "Saved %s to %s", humanize.Bytes(uint64(len(body))), outputPath)

		return nil
	}

	if _, err := io.WriteString(out, f.Decode(body)); err != nil {
		return fmt.Errorf("failed to write response body: %w", err)
	}

	return nil
}

func logFailure(ctx context.Context, err error) {
	fetchErr, ok := fetcher.AsFetchError(err)
	if !ok {
		logger.ErrorKV(ctx, "Request failed", "error", err)

		return
	}

	if fetchErr.IsTransport() {
		logger.ErrorKV(ctx, "Request failed",
			"kind", fetchErr.Kind.String(),
			"error", fetchErr.Err)

		return
	}

	body := fetchErr.Body
	if len(body) > maxLoggedBodyLength {
		body = body[:maxLoggedBodyLength]
	}

	logger.ErrorKV(ctx, "Request returned failure status",
		"kind", fetchErr.Kind.String(),
		"status", fetchErr.StatusCode,
		"size", humanize.Bytes(uint64(len(fetchErr.Body))),
		"body", string(body))
}

// logMetrics writes the gathered request metrics at debug level.
func logMetrics(ctx context.Context, gatherer prometheus.Gatherer) {
	if !logger.IsDebugLevel() {
		return
	}

	families, err := gatherer.Gather()
	if err != nil {
		logger.Warnf(ctx, "Failed to gather metrics: %v", err)

		return
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			kvs := []any{"metric", family.GetName()}

			for _, label := range metric.GetLabel() {
				kvs = append(kvs, label.GetName(), label.GetValue())
			}

			kvs = append(kvs, metricValue(family.GetType(), metric)...)

			logger.DebugKV(ctx, "Metric", kvs...)
		}
	}
}

func metricValue(metricType dto.MetricType, metric *dto.Metric) []any {
	switch metricType {
	case dto.MetricType_COUNTER:
		return []any{"value", metric.GetCounter().GetValue()}
	case dto.MetricType_GAUGE:
		return []any{"value", metric.GetGauge().GetValue()}
	case dto.MetricType_HISTOGRAM:
		return []any{
			"count", metric.GetHistogram().GetSampleCount(),
			"sum", metric.GetHistogram().GetSampleSum(),
		}
	default:
		return nil
	}
}
