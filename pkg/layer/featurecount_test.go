package layer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerkit/layerkit/pkg/config"
)

func newCountRecord(t *testing.T, req *fakeRequester) *TileRecord {
	t.Helper()
	fx := newFeatureFixture()
	fx.svc.Requester = req
	rec, err := NewTileRecord(&config.LayerConfig{ID: "base", LayerType: config.KindTile, URL: dynamicURL}, fx.svc, fx.layer)
	require.NoError(t, err)
	return rec
}

func TestCountFeatures_RetriesOnce(t *testing.T) {
	tests := []struct {
		name      string
		responses []string
		errs      []error
		count     int
		calls     int
		wantErr   bool
	}{
		{name: "first answer", responses: []string{`{"count": 40}`}, count: 40, calls: 1},
		{name: "bad json then success", responses: []string{`<html>`, `{"count": 9}`}, count: 9, calls: 2},
		{name: "error body then success", responses: []string{`{"error": {"code": 500}}`, `{"count": 3}`}, count: 3, calls: 2},
		{name: "transport error then success", responses: []string{``, `{"count": 1}`}, errs: []error{errors.New("reset")}, count: 1, calls: 2},
		{name: "two failures", responses: []string{`nope`}, calls: 2, wantErr: true},
		{name: "zero is a count", responses: []string{`{"count": 0}`}, count: 0, calls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &fakeRequester{responses: tt.responses, errs: tt.errs}
			rec := newCountRecord(t, req)

			n, err := rec.countFeatures(context.Background(), featureURL, "3")
			assert.Equal(t, tt.calls, req.Calls())
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsFeatureCountError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.count, n)
			assert.Equal(t, featureURL+"/query", req.endpoints[0])
		})
	}
}

func TestCountFeatures_WithoutRequester(t *testing.T) {
	fx := newFeatureFixture()
	fx.svc.Requester = nil
	rec, err := NewTileRecord(&config.LayerConfig{ID: "base", LayerType: config.KindTile, URL: dynamicURL}, fx.svc, fx.layer)
	require.NoError(t, err)

	_, err = rec.countFeatures(context.Background(), featureURL, "0")
	assert.True(t, IsFeatureCountError(err))
	assert.ErrorIs(t, err, ErrNotSupported)
}
