package ogc

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/layerkit/layerkit/pkg/geo"
	"github.com/layerkit/layerkit/pkg/layer"
	"github.com/layerkit/layerkit/pkg/telemetry"
)

// Supported protocol versions.
const (
	Version111 = "1.1.1"
	Version130 = "1.3.0"
)

// DefaultFeatureCount is the FEATURE_COUNT sent with GetFeatureInfo.
const DefaultFeatureCount = 10

const maxResponseBytes = 8 << 20

// errNoMap is returned by GetFeatureInfo without a map view.
var errNoMap = errors.New("ogc: feature info needs a map view")

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ogc: %s returned HTTP %d", e.URL, e.StatusCode)
}

// ServiceException is a WMS service exception report.
type ServiceException struct {
	Code    string
	Message string
}

func (e *ServiceException) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("ogc: service exception %s: %s", e.Code, e.Message)
	}
	return "ogc: service exception: " + e.Message
}

// Client builds and sends WMS requests.
type Client struct {
	http         *http.Client
	version      string
	featureCount int
	logger       *telemetry.Logger
	tracer       *telemetry.Tracer
}

var _ layer.OGCService = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithVersion selects the protocol version. Unknown versions are ignored.
func WithVersion(v string) Option {
	return func(c *Client) {
		if v == Version111 || v == Version130 {
			c.version = v
		}
	}
}

// WithFeatureCount sets the maximum features per GetFeatureInfo response.
func WithFeatureCount(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.featureCount = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(c *Client) { c.logger = l.NewComponentLogger("ogc") }
}

// WithTracer wraps feature info requests in a span.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// NewClient returns a WMS 1.3.0 client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		version:      Version130,
		featureCount: DefaultFeatureCount,
		logger:       telemetry.NopLogger(),
		tracer:       telemetry.NopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LegendURLs returns one GetLegendGraphic url per layer id, in order.
func (c *Client) LegendURLs(l layer.WMSLayer, layerIDs []string) []string {
	urls := make([]string, 0, len(layerIDs))
	for _, id := range layerIDs {
		params := url.Values{
			"SERVICE": {"WMS"},
			"REQUEST": {"GetLegendGraphic"},
			"VERSION": {c.version},
			"FORMAT":  {"image/png"},
			"LAYER":   {id},
		}
		u, err := withParams(l.URL(), params)
		if err != nil {
			c.logger.WithError(err).Warn("skipping legend url")
			urls = append(urls, "")
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

// GetFeatureInfo asks the service what lies under click on the map m and
// returns the response body unparsed.
func (c *Client) GetFeatureInfo(ctx context.Context, l layer.WMSLayer, m layer.MapView, click layer.ClickEvent, layerIDs []string, mimeType string) (string, error) {
	if m == nil {
		return "", errNoMap
	}
	params := c.featureInfoParams(m, click, layerIDs, mimeType)
	u, err := withParams(l.URL(), params)
	if err != nil {
		return "", err
	}

	ctx, span := c.tracer.StartSpan(ctx, "ogc.get_feature_info",
		attribute.String("layer.id", l.ID()),
		attribute.StringSlice("wms.layers", layerIDs),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("ogc: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("ogc: feature info %s: %w", l.URL(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &StatusError{URL: l.URL(), StatusCode: resp.StatusCode}
		telemetry.RecordError(span, err)
		return "", err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		telemetry.RecordError(span, err)
		return "", fmt.Errorf("ogc: read feature info: %w", err)
	}
	if exc := parseException(resp.Header.Get("Content-Type"), body); exc != nil {
		telemetry.RecordError(span, exc)
		return "", exc
	}

	c.logger.WithFields(map[string]interface{}{
		"layer_id": l.ID(),
		"bytes":    len(body),
	}).Debug("feature info")
	telemetry.RecordSuccess(span)
	return string(body), nil
}

func (c *Client) featureInfoParams(m layer.MapView, click layer.ClickEvent, layerIDs []string, mimeType string) url.Values {
	extent := m.Extent()
	sr := m.SpatialReference()
	width := m.WidthPx()
	height := width
	if extent.Width() > 0 {
		height = int(math.Round(float64(width) * extent.Height() / extent.Width()))
	}
	ids := strings.Join(layerIDs, ",")

	params := url.Values{
		"SERVICE":       {"WMS"},
		"REQUEST":       {"GetFeatureInfo"},
		"VERSION":       {c.version},
		"LAYERS":        {ids},
		"QUERY_LAYERS":  {ids},
		"STYLES":        {""},
		"BBOX":          {bbox(extent, c.version)},
		"WIDTH":         {strconv.Itoa(width)},
		"HEIGHT":        {strconv.Itoa(height)},
		"INFO_FORMAT":   {mimeType},
		"FEATURE_COUNT": {strconv.Itoa(c.featureCount)},
	}
	x, y := strconv.Itoa(click.ScreenPoint.X), strconv.Itoa(click.ScreenPoint.Y)
	if c.version == Version130 {
		params.Set("CRS", crs(sr))
		params.Set("I", x)
		params.Set("J", y)
	} else {
		params.Set("SRS", crs(sr))
		params.Set("X", x)
		params.Set("Y", y)
	}
	return params
}

func crs(sr geo.SpatialReference) string {
	id := sr.WKID
	if sr.LatestWKID != 0 {
		id = sr.LatestWKID
	}
	if id == 102100 {
		id = 3857
	}
	return "EPSG:" + strconv.Itoa(id)
}

// bbox formats the extent. WMS 1.3.0 puts latitude first for EPSG:4326.
func bbox(e geo.Extent, version string) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	b := e.Bound
	if version == Version130 && crs(e.SR) == "EPSG:4326" {
		return strings.Join([]string{f(b.Min[1]), f(b.Min[0]), f(b.Max[1]), f(b.Max[0])}, ",")
	}
	return strings.Join([]string{f(b.Min[0]), f(b.Min[1]), f(b.Max[0]), f(b.Max[1])}, ",")
}

// withParams merges params into base. Keys already on base are replaced,
// matching case-insensitively as servers do.
func withParams(base string, params url.Values) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("ogc: invalid service url %q: %w", base, err)
	}
	q := u.Query()
	for k := range q {
		if _, ok := params[strings.ToUpper(k)]; ok {
			q.Del(k)
		}
	}
	for k, vs := range params {
		q[k] = vs
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type exceptionReport struct {
	Exceptions []struct {
		Code    string `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"ServiceException"`
}

// parseException returns the first exception of a service exception report,
// or nil when body is a normal response.
func parseException(contentType string, body []byte) *ServiceException {
	trimmed := bytes.TrimSpace(body)
	if !strings.Contains(contentType, "se_xml") && !bytes.Contains(trimmed[:min(len(trimmed), 256)], []byte("ServiceExceptionReport")) {
		return nil
	}
	var report exceptionReport
	if err := xml.Unmarshal(trimmed, &report); err != nil || len(report.Exceptions) == 0 {
		return &ServiceException{Message: strings.TrimSpace(string(trimmed))}
	}
	e := report.Exceptions[0]
	return &ServiceException{Code: e.Code, Message: strings.TrimSpace(e.Message)}
}
