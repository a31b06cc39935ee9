package layer

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"

	"github.com/layerkit/layerkit/pkg/telemetry"
)

// countAttempts is how many times a count query is sent before giving up.
// Map servers regularly answer the first count request with garbage.
const countAttempts = 2

type countResponse struct {
	Count *int            `json:"count"`
	Error json.RawMessage `json:"error"`
}

var errMalformedCount = errors.New("count missing from response")

// countFeatures asks the service at layerURL how many features it holds.
// File based layers, with no url, count their graphics.
func (r *Record) countFeatures(ctx context.Context, layerURL, sublayer string) (int, error) {
	if layerURL == "" {
		l := r.Layer()
		if l == nil {
			return 0, nil
		}
		return len(l.Graphics()), nil
	}
	if r.svc.Requester == nil {
		return 0, NewFeatureCountError(ErrNotSupported).WithLayer(r.cfg.ID)
	}

	ctx = r.opCtx(ctx)
	var count int
	err := telemetry.RecordLayerOperation(ctx, r.cfg.ID, string(r.LayerType()), "feature_count",
		func(ctx context.Context) error {
			n, err := r.queryCount(ctx, layerURL)
			if err != nil {
				return NewFeatureCountError(err).WithLayer(r.cfg.ID).WithDetail("sublayer", sublayer)
			}
			count = n
			return nil
		})
	if err != nil {
		r.tel.Metrics.RecordFeatureCount(telemetry.OutcomeFailure)
		r.log.WithSublayer(sublayer).WithError(err).Warn("feature count failed")
		_ = r.tel.Events.PublishFeatureCountFailed(r.cfg.ID, sublayer, layerURL)
		return 0, err
	}
	r.tel.Metrics.RecordFeatureCount(telemetry.OutcomeSuccess)
	return count, nil
}

func (r *Record) queryCount(ctx context.Context, layerURL string) (int, error) {
	return QueryCount(ctx, r.svc.Requester, layerURL, func(err error) {
		r.tel.Metrics.RecordFeatureCount(telemetry.OutcomeRetry)
		r.log.WithError(err).Debug("retrying feature count")
	})
}

// QueryCount sends the count query for the service layer at layerURL,
// retrying once. onRetry, when set, sees the error that caused the retry.
func QueryCount(ctx context.Context, req Requester, layerURL string, onRetry func(error)) (int, error) {
	params := url.Values{
		"f":               {"json"},
		"where":           {"1=1"},
		"returnCountOnly": {"true"},
		"returnGeometry":  {"false"},
	}

	var lastErr error
	for attempt := 1; attempt <= countAttempts; attempt++ {
		if attempt > 1 && onRetry != nil {
			onRetry(lastErr)
		}

		raw, err := req.Query(ctx, layerURL+"/query", params)
		if err != nil {
			lastErr = err
			continue
		}
		var resp countResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			lastErr = err
			continue
		}
		if resp.Count == nil || len(resp.Error) > 0 && string(resp.Error) != "null" {
			lastErr = errMalformedCount
			continue
		}
		return *resp.Count, nil
	}
	return 0, lastErr
}
