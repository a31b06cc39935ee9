package layer

import (
	"sync"

	"github.com/layerkit/layerkit/pkg/deferred"
)

// Result formats of identify items.
const (
	FormatEsri = "EsriFeature"
	FormatText = "Text"
	FormatHTML = "HTML"
)

// ResultRequester describes who an identify result belongs to.
type ResultRequester struct {
	Name       string           `json:"name"`
	Symbology  *SymbologyBundle `json:"-"`
	Format     string           `json:"format"`
	Caption    string           `json:"caption,omitempty"`
	LayerID    string           `json:"layerId"`
	FeatureIdx string           `json:"featureIdx"`
}

// IdentifyItem is one identified feature, or one block of server content.
type IdentifyItem struct {
	Name      string          `json:"name,omitempty"`
	Details   []Detail        `json:"details,omitempty"`
	OID       any             `json:"oid,omitempty"`
	Symbology []SymbologyItem `json:"symbology,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// IdentifyResult collects what identify found in one sublayer. It starts
// loading and is completed exactly once.
type IdentifyResult struct {
	RequestID string
	Requester ResultRequester

	mu        sync.RWMutex
	isLoading bool
	data      []IdentifyItem
}

// NewIdentifyResult returns a loading result.
func NewIdentifyResult(requestID string, req ResultRequester) *IdentifyResult {
	return &IdentifyResult{RequestID: requestID, Requester: req, isLoading: true, data: []IdentifyItem{}}
}

// IsLoading reports whether the result is still pending.
func (r *IdentifyResult) IsLoading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isLoading
}

// Data returns a copy of the identified items.
func (r *IdentifyResult) Data() []IdentifyItem {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]IdentifyItem, len(r.data))
	copy(out, r.data)
	return out
}

// Add appends an item while the result is loading.
func (r *IdentifyResult) Add(item IdentifyItem) {
	r.mu.Lock()
	r.data = append(r.data, item)
	r.mu.Unlock()
}

// Complete marks the result loaded with items appended.
func (r *IdentifyResult) Complete(items ...IdentifyItem) {
	r.mu.Lock()
	r.data = append(r.data, items...)
	r.isLoading = false
	r.mu.Unlock()
}

// IdentifyBatch is what an identify call returns: the results, already
// listed, and a deferred that settles when every result is complete.
type IdentifyBatch struct {
	Results []*IdentifyResult
	Done    *deferred.Deferred[struct{}]
}

// emptyBatch is returned by layers that have nothing to identify.
func emptyBatch() IdentifyBatch {
	return IdentifyBatch{Results: []*IdentifyResult{}, Done: deferred.Resolved(struct{}{})}
}

func countHits(results []*IdentifyResult) int {
	n := 0
	for _, r := range results {
		n += len(r.Data())
	}
	return n
}
