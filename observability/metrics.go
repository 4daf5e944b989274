package observability

import (
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "escrowswap"

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	listingMetricsOnce sync.Once
	listingRegistry    *ListingMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by module, method and outcome.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by module, method and error code.",
			}, []string{"module", "method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a JSON-RPC request. code is the JSON-RPC
// error code, or zero on success.
func (m *moduleMetrics) Observe(module, method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or "replay".
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// ListingMetrics records listing engine activity. It satisfies the engine's
// Observer interface.
type ListingMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	fills      *prometheus.CounterVec
	volume     *prometheus.CounterVec
	fees       *prometheus.CounterVec
}

// Listing returns the singleton listing metrics registry.
func Listing() *ListingMetrics {
	listingMetricsOnce.Do(func() {
		listingRegistry = newListingMetrics()
		prometheus.MustRegister(
			listingRegistry.operations,
			listingRegistry.latency,
			listingRegistry.fills,
			listingRegistry.volume,
			listingRegistry.fees,
		)
	})
	return listingRegistry
}

func newListingMetrics() *ListingMetrics {
	return &ListingMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "operations_total",
			Help:      "Listing engine operations segmented by operation and outcome category.",
		}, []string{"operation", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "operation_duration_seconds",
			Help:      "Latency distribution for listing engine operations including commit.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "fills_total",
			Help:      "Executed fills segmented by asset pair.",
		}, []string{"source_asset", "dest_asset"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "fill_volume_total",
			Help:      "Destination amount paid by takers, in base units of the destination asset.",
		}, []string{"dest_asset"}),
		fees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listing",
			Name:      "fees_total",
			Help:      "Platform fees collected, in base units of the destination asset.",
		}, []string{"dest_asset"}),
	}
}

// ObserveOperation records the outcome and latency of a committed or rejected
// operation.
func (m *ListingMetrics) ObserveOperation(op, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// ObserveFill records a committed fill.
func (m *ListingMetrics) ObserveFill(sourceAsset, destAsset [20]byte, fillDestination, fee uint64) {
	if m == nil {
		return
	}
	src, dest := assetLabel(sourceAsset), assetLabel(destAsset)
	m.fills.WithLabelValues(src, dest).Inc()
	m.volume.WithLabelValues(dest).Add(float64(fillDestination))
	m.fees.WithLabelValues(dest).Add(float64(fee))
}

func assetLabel(asset [20]byte) string {
	return "0x" + hex.EncodeToString(asset[:])
}
