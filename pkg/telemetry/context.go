package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry combines logging, tracing, metrics and events behind one handle.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// Nop returns a telemetry instance where every component discards its input.
func Nop() *Telemetry {
	cfg := DisabledConfig()
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  NopTracer(),
		Metrics: &Metrics{config: cfg.Metrics},
		Events:  &EventPublisher{config: cfg.Events},
		Config:  cfg,
	}
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown gracefully shuts down all telemetry components.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Events.Shutdown(ctx); err != nil {
		return err
	}
	return t.Tracer.Shutdown(ctx)
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() (*http.Server, error) {
	return t.Metrics.StartMetricsServer()
}

// LayerStateChanged records a layer state transition on every component.
func (t *Telemetry) LayerStateChanged(layerID, layerType, from, to string) {
	t.Logger.WithLayerID(layerID).WithFields(map[string]interface{}{
		"layer_type": layerType,
		"from":       from,
		"to":         to,
	}).Debug("layer state changed")
	t.Metrics.RecordStateTransition(layerType, from, to)
	_ = t.Events.PublishStateChanged(layerID, layerType, from, to)
}

// IdentifyCompleted records the end of an identify request.
func (t *Telemetry) IdentifyCompleted(requestID, layerID, layerType string, hits int, duration time.Duration, err error) {
	logger := t.Logger.WithLayerID(layerID).WithRequestID(requestID)
	if err != nil {
		logger.WithError(err).Warn("identify completed with errors")
	} else {
		logger.Debugf("identify returned %d results", hits)
	}
	t.Metrics.RecordIdentify(layerType, duration, err != nil)
	_ = t.Events.PublishIdentifyCompleted(requestID, layerID, hits, duration, err)
}

// InstrumentedContext bundles a span, a logger and a timer for one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx),
			Timer:  NewTimer(),
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := tel.Logger.WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    spanCtx,
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		if err != nil {
			RecordError(ic.Span, err)
		} else {
			RecordSuccess(ic.Span)
		}
		ic.Span.End()
	}
}

// WithLayerContext returns a context whose logger carries the layer id.
func WithLayerContext(ctx context.Context, layerID, layerType string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return ctx
	}
	logger := tel.Logger.WithLayerID(layerID).WithField("layer_type", layerType)
	return logger.WithContext(ctx)
}

type classifiedError interface {
	error
	ErrorClass() string
}

// RecordLayerOperation runs fn inside a layer span and records any error
// class on the metrics.
func RecordLayerOperation(ctx context.Context, layerID, layerType, operation string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)

	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartLayerSpan(ctx, layerID, layerType, operation)
		defer span.End()
	}

	timer := NewTimer()
	err := fn(ctx)

	if tel != nil {
		SetAttributes(span, attribute.Int64("duration_ms", timer.Duration().Milliseconds()))
		if err != nil {
			var c classifiedError
			if errors.As(err, &c) {
				tel.Metrics.RecordError(c.ErrorClass(), "")
				SetAttributes(span, AttrErrorClass.String(c.ErrorClass()))
			}
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}

	return err
}
