// Package telemetry provides observability instrumentation for layer records.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing behind a single
// Telemetry handle.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	srv, err := tel.StartMetricsServer()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer srv.Close()
//
// Library code that is handed no telemetry uses Nop, which discards
// everything without allocating exporters or registries.
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("dynamic-record")
//	logger = logger.WithLayerID("rivers").WithSublayer("3")
//	logger.Info("sublayer converted to leaf")
//	logger.WithError(err).Error("attribute load failed")
//
// Log levels: trace, debug, info, warn, error, fatal, disabled.
//
// # Distributed Tracing
//
//	ctx, span := tel.Tracer.StartLayerSpan(ctx, "rivers", "esriDynamic", "feature_count")
//	defer span.End()
//
// Identify requests get their own span carrying the request id and the list
// of sublayers asked for. Exporters: otlp (gRPC), stdout, none.
//
// # Metrics
//
// Exposed under the configured namespace:
//
//   - layer_state_transitions_total{layer_type,state}
//   - layers_loaded{layer_type}
//   - feature_count_requests_total{outcome}
//   - attribute_loads_total{outcome}
//   - symbology_loads_total{outcome}
//   - identify_requests_total{layer_type,outcome}
//   - identify_duration_seconds{layer_type}
//   - errors_by_class_total{class}, errors_by_code_total{code}
//   - config_reloads_total{outcome}
//
// # Events
//
// EventPublisher fans events out to subscribers, optionally through an
// async buffer. Subscribers can filter by level, type or layer:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Message)
//	}, telemetry.FilterByLayerID("rivers"))
//
// # Layer Helpers
//
// LayerStateChanged and IdentifyCompleted fan one observation out to the
// logger, the metrics and the event stream. RecordLayerOperation wraps a
// function in a layer span and classifies its error.
package telemetry
