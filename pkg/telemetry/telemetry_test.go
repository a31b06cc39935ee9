package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"disabled level", func(c *Config) { c.Logging.Level = "disabled" }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "zipkin" }, true},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, true},
		{"no metrics address", func(c *Config) { c.Metrics.ListenAddress = "" }, true},
		{"no service", func(c *Config) { c.ServiceName = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMetrics_StateTransitionsTrackLoadedGauge(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	m.RecordStateTransition("esriFeature", "rv-loading", "rv-loaded")
	m.RecordStateTransition("esriFeature", "rv-loaded", "rv-refresh")
	m.RecordStateTransition("esriFeature", "rv-refresh", "rv-loaded")
	m.RecordStateTransition("esriTile", "rv-loading", "rv-loaded")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stateTransitions.WithLabelValues("esriFeature", "rv-loaded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.layersLoaded.WithLabelValues("esriFeature")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.layersLoaded.WithLabelValues("esriTile")))

	m.RecordLayerRemoved("esriTile", "rv-loaded")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.layersLoaded.WithLabelValues("esriTile")))
}

func TestMetrics_DisabledIsSafe(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	m.RecordStateTransition("esriFeature", "rv-new", "rv-loading")
	m.RecordFeatureCount(OutcomeFailure)
	m.RecordIdentify("esriFeature", time.Second, true)
	m.RecordError("load", "")
	assert.Nil(t, m.Registry())

	srv, err := m.StartMetricsServer()
	assert.NoError(t, err)
	assert.Nil(t, srv)
}

func TestMetrics_Outcomes(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	m.RecordFeatureCount(OutcomeRetry)
	m.RecordFeatureCount(OutcomeFailure)
	m.RecordAttributeLoad(OutcomeSuccess)
	m.RecordSymbologyLoad(OutcomeFailure)
	m.RecordIdentify("esriDynamic", 20*time.Millisecond, true)
	m.RecordConfigReload(OutcomeSuccess)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.featureCountRequests.WithLabelValues(OutcomeRetry)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.featureCountRequests.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attributeLoads.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.symbologyLoads.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.identifyRequests.WithLabelValues("esriDynamic", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.configReloads.WithLabelValues(OutcomeSuccess)))
}

func TestEventPublisher_SyncDeliveryAndFilters(t *testing.T) {
	cfg := DefaultConfig().Events
	cfg.EnableAsync = false
	ep, err := NewEventPublisher(cfg)
	require.NoError(t, err)
	defer ep.Shutdown(context.Background())

	errorsOnly := make(chan Event, 4)
	ep.Subscribe(func(e Event) { errorsOnly <- e }, FilterByLevel(EventLevelError))

	riversOnly := make(chan Event, 4)
	ep.Subscribe(func(e Event) { riversOnly <- e }, FilterByLayerID("rivers"))

	require.NoError(t, ep.PublishStateChanged("rivers", "esriDynamic", "rv-loading", "rv-loaded"))
	require.NoError(t, ep.PublishFeatureCountFailed("parcels", "", "https://x.test/0"))

	select {
	case e := <-riversOnly:
		assert.Equal(t, EventTypeStateChanged, e.Type)
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("rivers event not delivered")
	}

	select {
	case e := <-errorsOnly:
		assert.Equal(t, EventTypeFeatureCountFail, e.Type)
		assert.Equal(t, "parcels", e.LayerID)
	case <-time.After(time.Second):
		t.Fatal("error event not delivered")
	}
}

func TestEventPublisher_AsyncDelivers(t *testing.T) {
	cfg := DefaultConfig().Events
	ep, err := NewEventPublisher(cfg)
	require.NoError(t, err)

	got := make(chan Event, 1)
	ep.Subscribe(func(e Event) { got <- e }, nil)

	require.NoError(t, ep.PublishConfigReloaded("layers.yaml", 3, nil))

	select {
	case e := <-got:
		assert.Equal(t, EventTypeConfigReloaded, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("async event not delivered")
	}

	require.NoError(t, ep.Shutdown(context.Background()))
}

func TestEventPublisher_GlobalFilter(t *testing.T) {
	cfg := DefaultConfig().Events
	cfg.EnableAsync = false
	ep, err := NewEventPublisher(cfg)
	require.NoError(t, err)

	got := make(chan Event, 2)
	ep.Subscribe(func(e Event) { got <- e }, nil)
	ep.AddFilter(FilterByType(EventTypeIdentifyCompleted))

	require.NoError(t, ep.PublishStateChanged("a", "esriTile", "rv-new", "rv-loading"))
	require.NoError(t, ep.PublishIdentifyCompleted("req", "a", 2, time.Millisecond, nil))

	select {
	case e := <-got:
		assert.Equal(t, EventTypeIdentifyCompleted, e.Type)
		assert.Equal(t, "req", e.RequestID)
	case <-time.After(time.Second):
		t.Fatal("identify event not delivered")
	}
	assert.Len(t, got, 0)
}

type classified struct{ class string }

func (c classified) Error() string      { return "boom" }
func (c classified) ErrorClass() string { return c.class }

func TestRecordLayerOperation_ClassifiesErrors(t *testing.T) {
	cfg := DisabledConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.ListenAddress = ":0"
	tel, err := NewTelemetry(cfg)
	require.NoError(t, err)

	ctx := tel.WithContext(context.Background())
	wrapped := errors.Join(errors.New("outer"), classified{class: "feature_count"})

	got := RecordLayerOperation(ctx, "parcels", "esriFeature", "feature_count", func(context.Context) error {
		return wrapped
	})
	assert.Same(t, wrapped, got)
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Metrics.errorsByClass.WithLabelValues("feature_count")))

	assert.NoError(t, RecordLayerOperation(context.Background(), "x", "esriTile", "noop", func(context.Context) error {
		return nil
	}))
}

func TestNop(t *testing.T) {
	tel := Nop()
	tel.LayerStateChanged("a", "esriTile", "rv-new", "rv-loading")
	tel.IdentifyCompleted("r", "a", "esriTile", 0, time.Millisecond, errors.New("x"))

	ctx, span := tel.Tracer.StartLayerSpan(context.Background(), "a", "esriTile", "load")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	assert.Empty(t, TraceID(ctx))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestLoggerLevels(t *testing.T) {
	for _, lvl := range []string{"trace", "debug", "info", "warn", "error", "fatal", "disabled"} {
		l, err := NewLogger(LoggingConfig{Level: lvl, Format: "json", Output: "discard"})
		require.NoError(t, err)
		assert.Equal(t, parseLogLevel(lvl), l.Zerolog().GetLevel())
	}
}
