package arcgis

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/layerkit/layerkit/pkg/layer"
	"github.com/layerkit/layerkit/pkg/telemetry"
)

// DefaultTimeout bounds a single REST request.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// StatusError is returned for a non-2xx HTTP response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("arcgis: %s returned HTTP %d", e.URL, e.StatusCode)
}

// ServiceError is the error object a map server embeds in a 200 response.
type ServiceError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *ServiceError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("arcgis: service error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("arcgis: service error %d: %s", e.Code, e.Message)
}

// Client issues GET requests against REST endpoints and returns raw JSON.
type Client struct {
	http   *http.Client
	token  string
	logger *telemetry.Logger
	tracer *telemetry.Tracer
}

var _ layer.Requester = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithToken appends a token parameter to every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the logger requests are logged to at debug level.
func WithLogger(l *telemetry.Logger) Option {
	return func(c *Client) { c.logger = l.NewComponentLogger("arcgis") }
}

// WithTracer wraps every request in a span.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// NewClient returns a client with a 30 second timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: DefaultTimeout},
		logger: telemetry.NopLogger(),
		tracer: telemetry.NopTracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query sends params to endpoint and returns the response body. Error
// objects inside a 200 response are returned as data; callers that want
// them as errors use GetJSON.
func (c *Client) Query(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	u, err := c.requestURL(endpoint, params)
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.StartSpan(ctx, "arcgis.request",
		attribute.String("http.url", endpoint),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("arcgis: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("arcgis: request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(map[string]interface{}{
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("rest request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &StatusError{URL: endpoint, StatusCode: resp.StatusCode}
		telemetry.RecordError(span, err)
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("arcgis: read %s: %w", endpoint, err)
	}
	telemetry.RecordSuccess(span)
	return json.RawMessage(body), nil
}

// GetJSON queries endpoint and decodes the body into v. An embedded error
// object is returned as a *ServiceError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, v any) error {
	raw, err := c.Query(ctx, endpoint, params)
	if err != nil {
		return err
	}
	var envelope struct {
		Error *ServiceError `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("arcgis: decode %s: %w", endpoint, err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("arcgis: decode %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) requestURL(endpoint string, params url.Values) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("arcgis: invalid endpoint %q: %w", endpoint, err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if q.Get("f") == "" {
		q.Set("f", "json")
	}
	if c.token != "" {
		q.Set("token", c.token)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
