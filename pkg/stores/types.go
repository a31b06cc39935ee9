package stores

import (
	"context"
	"time"

	"github.com/layerkit/layerkit/pkg/layer"
)

// Transition is one journaled layer state change.
type Transition struct {
	ID        string    `json:"id"`
	LayerID   string    `json:"layer_id"`
	LayerType string    `json:"layer_type"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	At        time.Time `json:"at"`
}

// IdentifyRequest is one journaled identify completion for a layer.
type IdentifyRequest struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id"`
	LayerID   string        `json:"layer_id"`
	LayerType string        `json:"layer_type"`
	Sublayers []string      `json:"sublayers"`
	Hits      int           `json:"hits"`
	Duration  time.Duration `json:"duration"`
	Error     *string       `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}

// LayerSummary is the latest known state of a layer.
type LayerSummary struct {
	LayerID     string    `json:"layer_id"`
	LayerType   string    `json:"layer_type"`
	State       string    `json:"state"`
	Since       time.Time `json:"since"`
	Transitions int       `json:"transitions"`
}

// Filter narrows journal queries. Zero values mean "any".
type Filter struct {
	LayerID string
	Since   time.Time
	Limit   int
	Offset  int
}

// Store defines the persistence operations of the journal.
type Store interface {
	layer.Observer

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Writes
	RecordTransition(ctx context.Context, t *Transition) error
	RecordIdentify(ctx context.Context, r *IdentifyRequest) error

	// Reads
	ListTransitions(ctx context.Context, f Filter) ([]*Transition, error)
	ListIdentifyRequests(ctx context.Context, f Filter) ([]*IdentifyRequest, error)
	GetIdentifyRequest(ctx context.Context, requestID string) ([]*IdentifyRequest, error)
	LayerSummaries(ctx context.Context) ([]*LayerSummary, error)

	// Maintenance
	Prune(ctx context.Context, before time.Time) (int64, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
