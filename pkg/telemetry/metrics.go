package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
)

// Metrics provides Prometheus metrics for layer records.
type Metrics struct {
	config MetricsConfig

	// Lifecycle
	stateTransitions *prometheus.CounterVec
	layersLoaded     *prometheus.GaugeVec

	// Server round trips
	featureCountRequests *prometheus.CounterVec
	attributeLoads       *prometheus.CounterVec
	symbologyLoads       *prometheus.CounterVec

	// Identify
	identifyRequests *prometheus.CounterVec
	identifyDuration *prometheus.HistogramVec

	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	configReloads *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		stateTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "layer_state_transitions_total",
				Help:      "Total number of layer state transitions by target state",
			},
			[]string{"layer_type", "state"},
		),
		layersLoaded: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "layers_loaded",
				Help:      "Number of layer records currently in the loaded state",
			},
			[]string{"layer_type"},
		),

		featureCountRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feature_count_requests_total",
				Help:      "Total number of feature count requests by outcome",
			},
			[]string{"outcome"},
		),
		attributeLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribute_loads_total",
				Help:      "Total number of attribute downloads by outcome",
			},
			[]string{"outcome"},
		),
		symbologyLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "symbology_loads_total",
				Help:      "Total number of symbology stack loads by outcome",
			},
			[]string{"outcome"},
		),

		identifyRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "identify_requests_total",
				Help:      "Total number of identify requests",
			},
			[]string{"layer_type", "outcome"},
		),
		identifyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "identify_duration_seconds",
				Help:      "Duration of identify requests in seconds",
				Buckets:   buckets,
			},
			[]string{"layer_type"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of layer errors by class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of layer errors by code",
			},
			[]string{"code"},
		),

		configReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of layer configuration reloads by outcome",
			},
			[]string{"outcome"},
		),
	}

	collectors := []prometheus.Collector{
		m.stateTransitions,
		m.layersLoaded,
		m.featureCountRequests,
		m.attributeLoads,
		m.symbologyLoads,
		m.identifyRequests,
		m.identifyDuration,
		m.errorsByClass,
		m.errorsByCode,
		m.configReloads,
	}

	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

// Registry returns the underlying registry, nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordStateTransition counts a transition into state and keeps the
// loaded gauge in step.
func (m *Metrics) RecordStateTransition(layerType, from, to string) {
	if m.stateTransitions == nil {
		return
	}
	m.stateTransitions.WithLabelValues(layerType, to).Inc()

	const loaded = "rv-loaded"
	if to == loaded && from != loaded {
		m.layersLoaded.WithLabelValues(layerType).Inc()
	} else if from == loaded && to != loaded {
		m.layersLoaded.WithLabelValues(layerType).Dec()
	}
}

// RecordLayerRemoved drops a loaded layer from the gauge.
func (m *Metrics) RecordLayerRemoved(layerType, state string) {
	if m.layersLoaded == nil || state != "rv-loaded" {
		return
	}
	m.layersLoaded.WithLabelValues(layerType).Dec()
}

// RecordFeatureCount records one feature count round trip.
func (m *Metrics) RecordFeatureCount(outcome string) {
	if m.featureCountRequests == nil {
		return
	}
	m.featureCountRequests.WithLabelValues(outcome).Inc()
}

// RecordAttributeLoad records one attribute download.
func (m *Metrics) RecordAttributeLoad(outcome string) {
	if m.attributeLoads == nil {
		return
	}
	m.attributeLoads.WithLabelValues(outcome).Inc()
}

// RecordSymbologyLoad records one symbology stack load.
func (m *Metrics) RecordSymbologyLoad(outcome string) {
	if m.symbologyLoads == nil {
		return
	}
	m.symbologyLoads.WithLabelValues(outcome).Inc()
}

// RecordIdentify records a finished identify request.
func (m *Metrics) RecordIdentify(layerType string, duration time.Duration, failed bool) {
	if m.identifyRequests == nil {
		return
	}
	outcome := OutcomeSuccess
	if failed {
		outcome = OutcomeFailure
	}
	m.identifyRequests.WithLabelValues(layerType, outcome).Inc()
	m.identifyDuration.WithLabelValues(layerType).Observe(duration.Seconds())
}

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// RecordConfigReload records a configuration reload attempt.
func (m *Metrics) RecordConfigReload(outcome string) {
	if m.configReloads == nil {
		return
	}
	m.configReloads.WithLabelValues(outcome).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. The returned
// server may be shut down by the caller; it is nil when metrics are disabled.
func (m *Metrics) StartMetricsServer() (*http.Server, error) {
	if !m.config.Enabled {
		return nil, nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return server, nil
}
