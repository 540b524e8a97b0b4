// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/krau/autotone/tensor"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autotone"

var (
	ModelState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "model",
		Name:      "state",
		Help:      "Model lifecycle state (0=unloaded, 1=loaded, 2=load_failed)",
	})

	ModelLoadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "model",
		Name:      "load_duration_seconds",
		Help:      "Time spent fetching and opening the model artifact",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	InferenceDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "inference",
		Name:      "duration_seconds",
		Help:      "Duration of a single model invocation",
		Buckets:   prometheus.DefBuckets,
	})

	InferenceErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "inference",
		Name:      "errors_total",
		Help:      "Failed inference calls by reason",
	}, []string{"reason"})

	Recommendations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recommend",
		Name:      "total",
		Help:      "Recommendations produced by label",
	}, []string{"label"})

	Adjustments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "adjust",
		Name:      "applied_total",
		Help:      "Adjustments applied by label",
	}, []string{"label"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"path", "method", "status"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method", "status"})

	TensorsLive = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tensor",
		Name:      "live",
		Help:      "Allocated tensors not yet released",
	}, func() float64 { return float64(tensor.Live()) })
)

func init() {
	prometheus.MustRegister(
		ModelState,
		ModelLoadDuration,
		InferenceDuration,
		InferenceErrors,
		Recommendations,
		Adjustments,
		HTTPRequests,
		HTTPDuration,
		TensorsLive,
	)
}

func ObserveHTTP(path, method string, status int, seconds float64) {
	code := strconv.Itoa(status)
	HTTPRequests.WithLabelValues(path, method, code).Inc()
	HTTPDuration.WithLabelValues(path, method, code).Observe(seconds)
}
