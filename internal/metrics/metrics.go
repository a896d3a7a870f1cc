package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "http_fetcher"

	// poolLabel tells apart the pools of fetchers sharing one registerer.
	poolLabel = "pool"
)

// PoolStatsFunc reports the number of leased connection slots and waiting requests.
type PoolStatsFunc func() (leased, pending int64)

// Metrics holds the fetcher's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// RequestsTotal counts finished requests by method and outcome.
	RequestsTotal *prometheus.CounterVec
	// RequestDuration observes the wall time of each request, body read included.
	RequestDuration *prometheus.HistogramVec
	// ResponseSize observes decompressed response body sizes.
	ResponseSize *prometheus.HistogramVec
	// PoolID is the pool label value of this instance's pool gauges.
	PoolID string
}

// ErrRegistration indicates that a collector could not be registered.
var ErrRegistration = errors.New("failed to register metrics")

// New registers the collectors on reg. It returns nil when reg is nil.
// Request collectors already registered by another fetcher are shared;
// pool gauges are registered per instance under a distinct pool label.
func New(reg prometheus.Registerer, poolStats PoolStatsFunc) (*Metrics, error) {
	if reg == nil {
		return nil, nil //nolint:nilnil // A nil *Metrics is the disabled state.
	}

	requestsTotal, err := registerOrReuse(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and outcome",
		},
		[]string{"method", "outcome"},
	))
	if err != nil {
		return nil, err
	}

	requestDuration, err := registerOrReuse(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds, including the body read",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	))
	if err != nil {
		return nil, err
	}

	responseSize, err := registerOrReuse(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "response_size_bytes",
			Help:      "Decompressed HTTP response body size in bytes",
			Buckets:   prometheus.ExponentialBuckets(128, 4, 8), //nolint:mnd // 128 B .. 2 MB.
		},
		[]string{"method"},
	))
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		RequestsTotal:   requestsTotal,
		RequestDuration: requestDuration,
		ResponseSize:    responseSize,
		PoolID:          uuid.NewString(),
	}

	if poolStats != nil {
		if err = m.registerPoolGauges(reg, poolStats); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ObserveRequest records one finished request.
func (m *Metrics) ObserveRequest(method, outcome string, duration time.Duration, responseSize int) {
	if m == nil {
		return
	}

	m.RequestsTotal.WithLabelValues(method, outcome).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(duration.Seconds())

	if responseSize >= 0 {
		m.ResponseSize.WithLabelValues(method).Observe(float64(responseSize))
	}
}

func (m *Metrics) registerPoolGauges(reg prometheus.Registerer, poolStats PoolStatsFunc) error {
	constLabels := prometheus.Labels{poolLabel: m.PoolID}

	leased := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pool_leased_connections",
			Help:        "Connection slots currently held by in-flight requests",
			ConstLabels: constLabels,
		},
		func() float64 {
			value, _ := poolStats()

			return float64(value)
		},
	)

	pending := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "pool_pending_requests",
			Help:        "Requests waiting for a free connection slot",
			ConstLabels: constLabels,
		},
		func() float64 {
			_, value := poolStats()

			return float64(value)
		},
	)

	for _, gauge := range []prometheus.Collector{leased, pending} {
		if err := reg.Register(gauge); err != nil {
			return fmt.Errorf("%w: %w", ErrRegistration, err)
		}
	}

	return nil
}

// registerOrReuse registers collector, returning the existing one when an identical collector is already registered.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegistered prometheus.AlreadyRegisteredError
	if errors.As(err, &alreadyRegistered) {
		if existing, ok := alreadyRegistered.ExistingCollector.(T); ok {
			return existing, nil
		}
	}

	var zero T

	return zero, fmt.Errorf("%w: %w", ErrRegistration, err)
}
