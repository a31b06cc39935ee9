package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event raised by a layer record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Type is one of the EventType constants.
	Type string `json:"type"`

	// Source identifies the component that raised the event.
	Source string `json:"source"`

	LayerID   string `json:"layer_id,omitempty"`
	Sublayer  string `json:"sublayer,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for layer events.
const (
	EventTypeStateChanged       = "layer.state_changed"
	EventTypeIdentifyCompleted  = "identify.completed"
	EventTypeAttributeLoadFail  = "attributes.load_failed"
	EventTypeFeatureCountFail   = "feature_count.failed"
	EventTypeUnsupportedType    = "layer.unsupported_type"
	EventTypeConfigReloaded     = "config.reloaded"
	EventTypeConfigReloadFailed = "config.reload_failed"
	EventTypeError              = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishStateChanged publishes a layer state transition.
func (ep *EventPublisher) PublishStateChanged(layerID, layerType, from, to string) error {
	level := EventLevelInfo
	if to == "rv-error" {
		level = EventLevelError
	}
	return ep.Publish(Event{
		Type:    EventTypeStateChanged,
		Source:  "layer_record",
		LayerID: layerID,
		Message: fmt.Sprintf("Layer %s changed state from %s to %s", layerID, from, to),
		Level:   level,
		Data: map[string]interface{}{
			"layer_type": layerType,
			"from":       from,
			"to":         to,
		},
	})
}

// PublishIdentifyCompleted publishes the end of an identify request.
func (ep *EventPublisher) PublishIdentifyCompleted(requestID, layerID string, hits int, duration time.Duration, err error) error {
	event := Event{
		Type:      EventTypeIdentifyCompleted,
		Source:    "identify",
		LayerID:   layerID,
		RequestID: requestID,
		Message:   fmt.Sprintf("Identify on layer %s returned %d results in %s", layerID, hits, duration),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"hits":        hits,
			"duration_ms": duration.Milliseconds(),
		},
	}
	if err != nil {
		event.Level = EventLevelWarning
		event.Data["error"] = err.Error()
	}
	return ep.Publish(event)
}

// PublishAttributeLoadFailed publishes an attribute download failure.
func (ep *EventPublisher) PublishAttributeLoadFailed(layerID, sublayer, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeAttributeLoadFail,
		Source:   "attributes",
		LayerID:  layerID,
		Sublayer: sublayer,
		Message:  fmt.Sprintf("Attribute load failed for %s/%s: %s", layerID, sublayer, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishFeatureCountFailed publishes a feature count failure after retry.
func (ep *EventPublisher) PublishFeatureCountFailed(layerID, sublayer, url string) error {
	return ep.Publish(Event{
		Type:     EventTypeFeatureCountFail,
		Source:   "feature_count",
		LayerID:  layerID,
		Sublayer: sublayer,
		Message:  fmt.Sprintf("Feature count failed for %s", url),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"url": url,
		},
	})
}

// PublishUnsupportedType publishes a sublayer of a type the core cannot handle.
func (ep *EventPublisher) PublishUnsupportedType(layerID, sublayer, serverType string) error {
	return ep.Publish(Event{
		Type:     EventTypeUnsupportedType,
		Source:   "dynamic_record",
		LayerID:  layerID,
		Sublayer: sublayer,
		Message:  fmt.Sprintf("Unexpected layer type in getLayerType %s", serverType),
		Level:    EventLevelWarning,
	})
}

// PublishConfigReloaded publishes the outcome of a configuration reload.
func (ep *EventPublisher) PublishConfigReloaded(path string, layers int, err error) error {
	if err != nil {
		return ep.Publish(Event{
			Type:    EventTypeConfigReloadFailed,
			Source:  "config_watcher",
			Message: fmt.Sprintf("Reload of %s failed: %v", path, err),
			Level:   EventLevelError,
			Data:    map[string]interface{}{"path": path},
		})
	}
	return ep.Publish(Event{
		Type:    EventTypeConfigReloaded,
		Source:  "config_watcher",
		Message: fmt.Sprintf("Reloaded %s with %d layers", path, layers),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"path":   path,
			"layers": layers,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			if len(batch) >= ep.config.MaxBatchSize || len(ep.buffer) == 0 {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		// Call subscriber in a goroutine to avoid blocking
		go entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	// Signal shutdown
	ep.cancel()

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByLayerID creates a filter that only allows events for a specific layer.
func FilterByLayerID(layerID string) EventFilter {
	return func(event Event) bool {
		return event.LayerID == layerID
	}
}
