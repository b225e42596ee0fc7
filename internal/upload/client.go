// Package upload sends finalized recordings to the remote inference endpoint.
//
// The endpoint contract is fixed: a single multipart/form-data POST carrying
// the artifact as one file part, answered by a JSON body that is displayed to
// the user without further interpretation. Each send is fire-once; there is
// no retry, backoff or idempotency key.
//
// Usage:
//
//	c, err := upload.New("http://localhost:5000/predict")
//	res, err := c.Send(ctx, artifact)
//	fmt.Println(res)
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"

	"github.com/MrWong99/nap/internal/observe"
	"github.com/MrWong99/nap/internal/session"
)

const (
	// DefaultEndpoint is the inference endpoint used when none is configured.
	DefaultEndpoint = "http://localhost:5000/predict"

	// DefaultField is the multipart field name carrying the audio.
	DefaultField = "audioFile"

	// DefaultFilename is the filename reported for the audio part.
	DefaultFilename = "audio.wav"

	defaultTimeout = 30 * time.Second

	// maxExcerpt bounds the response body kept in a StatusError.
	maxExcerpt = 512
)

var (
	// ErrNoArtifact is returned by Send when there is no finalized recording.
	// No network call is made.
	ErrNoArtifact = errors.New("upload: no audio recorded")

	// ErrUploadFailed is returned when the request could not be delivered
	// (connection refused, DNS failure, timeout).
	ErrUploadFailed = errors.New("upload: transport failure")

	// ErrUploadRejected is returned when the endpoint answers with a non-2xx
	// status. The chain also contains a *StatusError.
	ErrUploadRejected = errors.New("upload: rejected by endpoint")

	// ErrResponseMalformed is returned when a 2xx body is not valid JSON.
	ErrResponseMalformed = errors.New("upload: malformed response")
)

// StatusError carries the HTTP status of a rejected upload.
type StatusError struct {
	StatusCode int
	// Body is a prefix of the response body, for diagnostics.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("endpoint returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Result is a parsed endpoint response.
type Result struct {
	// Status is the HTTP status code.
	Status int

	// Body is the decoded JSON value (map[string]any for objects).
	Body any

	// Raw is the undecoded response body.
	Raw json.RawMessage

	// Duration is the request round-trip time.
	Duration time.Duration
}

// String renders the response for display. JSON objects become one
// "key: value" line per field, sorted by key; anything else is shown as JSON.
func (r *Result) String() string {
	obj, ok := r.Body.(map[string]any)
	if !ok {
		return string(r.Raw)
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(formatValue(obj[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The client's transport is used as
// is; no tracing instrumentation is added.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the request timeout. Defaults to 30s. A client passed
// with [WithHTTPClient] is copied rather than modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithField overrides the multipart field name. Defaults to "audioFile".
func WithField(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.field = name
		}
	}
}

// WithFilename overrides the reported filename. Defaults to "audio.wav".
func WithFilename(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.filename = name
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Client uploads artifacts to one endpoint. It is safe for concurrent use;
// the endpoint may be swapped at runtime with [Client.SetEndpoint].
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	field      string
	filename   string
	metrics    *observe.Metrics

	mu       sync.RWMutex
	endpoint string
}

// New creates a Client posting to endpoint. An empty endpoint selects
// [DefaultEndpoint].
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		field:    DefaultField,
		filename: DefaultFilename,
		endpoint: endpoint,
	}
	for _, o := range opts {
		o(c)
	}
	if c.timeout > 0 {
		hc := *c.httpClient
		hc.Timeout = c.timeout
		c.httpClient = &hc
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// ValidateEndpoint reports whether endpoint is an absolute http(s) URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("upload: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("upload: endpoint %q must use http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("upload: endpoint %q has no host", endpoint)
	}
	return nil
}

// Endpoint returns the current endpoint URL.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// SetEndpoint swaps the endpoint for subsequent sends.
func (c *Client) SetEndpoint(endpoint string) error {
	if err := ValidateEndpoint(endpoint); err != nil {
		return err
	}
	c.mu.Lock()
	c.endpoint = endpoint
	c.mu.Unlock()
	return nil
}

// Send POSTs art to the endpoint and decodes the JSON answer.
//
// A nil art returns [ErrNoArtifact] without touching the network. Failures
// wrap exactly one of [ErrUploadFailed], [ErrUploadRejected] or
// [ErrResponseMalformed].
func (c *Client) Send(ctx context.Context, art *session.Artifact) (*Result, error) {
	if art == nil {
		return nil, ErrNoArtifact
	}
	endpoint := c.Endpoint()

	ctx, span := observe.StartSpan(ctx, "upload.Send")
	defer span.End()
	span.SetAttributes(
		attribute.String("upload.endpoint", endpoint),
		attribute.Int("upload.bytes", art.Size()),
		attribute.String("session.id", art.SessionID),
	)
	log := observe.Logger(ctx).With("endpoint", endpoint, "session_id", art.SessionID)

	start := time.Now()
	res, err := c.send(ctx, endpoint, art)
	elapsed := time.Since(start)
	kind := errorKind(err)
	c.metrics.RecordUpload(ctx, kind, elapsed.Seconds())

	if err != nil {
		observe.FailSpan(span, err, kind)
		log.Warn("upload failed", "kind", kind, "bytes", art.Size(), "err", err)
		return nil, err
	}
	res.Duration = elapsed
	span.SetAttributes(attribute.Int("http.response.status_code", res.Status))
	log.Info("upload complete", "status", res.Status, "bytes", art.Size(), "duration", elapsed)
	return res, nil
}

func (c *Client) send(ctx context.Context, endpoint string, art *session.Artifact) (*Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(c.field), escapeQuotes(c.filename)))
	mime := art.MIMEType()
	if mime == "" {
		mime = "application/octet-stream"
	}
	h.Set("Content-Type", mime)

	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%w: create form file: %w", ErrUploadFailed, err)
	}
	if _, err := io.Copy(fw, art.Reader()); err != nil {
		return nil, fmt.Errorf("%w: write audio data: %w", ErrUploadFailed, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: close multipart writer: %w", ErrUploadFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response body: %w", ErrUploadFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Body: excerpt(data)}
		return nil, fmt.Errorf("%w: %w", ErrUploadRejected, se)
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponseMalformed, err)
	}
	return &Result{Status: resp.StatusCode, Body: v, Raw: json.RawMessage(data)}, nil
}

// errorKind maps a Send error to the metric label.
func errorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUploadRejected):
		return "rejected"
	case errors.Is(err, ErrResponseMalformed):
		return "malformed"
	default:
		return "failed"
	}
}

func excerpt(data []byte) string {
	s := strings.ToValidUTF8(strings.TrimSpace(string(data)), "\uFFFD")
	if len(s) > maxExcerpt {
		cut := maxExcerpt
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "..."
	}
	return s
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }
