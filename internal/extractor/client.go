// Package extractor is the HTTP client for the external extraction service.
// The service owns the per-document-type parsing heuristics; this side only
// ships raw bytes out and structured records back.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ingest-cli/internal/reprocess"
	"github.com/sells-group/ingest-cli/internal/resilience"
)

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetry overrides the default retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// Client calls the extraction service. It satisfies the orchestrator's
// Extractor interface.
type Client struct {
	baseURL string
	http    *http.Client
	retry   resilience.RetryConfig
}

// NewClient creates a client for the extraction service at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	c := &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retry: resilience.DefaultRetryConfig(),
	}
	c.retry.OnRetry = resilience.RetryLogger("extractor", "extract")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type extractRequest struct {
	Class   string `json:"class"`
	Version string `json:"version"`
	Content []byte `json:"content"` // base64 over the wire
}

type extractResponse struct {
	Record          json.RawMessage    `json:"record"`
	Confidence      float64            `json:"confidence"`
	FieldConfidence map[string]float64 `json:"fieldConfidence,omitempty"`
	Error           string             `json:"error,omitempty"`
}

// Extract runs the service's extractor at the given class/version over raw
// bytes. A 422 means the document itself is unparseable; that error is
// permanent and surfaces as a failed artifact upstream. 5xx and 429 are
// retried with backoff.
func (c *Client) Extract(ctx context.Context, class, version string, raw []byte) (*reprocess.Extraction, error) {
	payload, err := json.Marshal(extractRequest{Class: class, Version: version, Content: raw})
	if err != nil {
		return nil, eris.Wrap(err, "extractor: marshal request")
	}

	body, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.post(ctx, payload)
	})
	if err != nil {
		return nil, err
	}

	var resp extractResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "extractor: decode response")
	}
	if resp.Error != "" {
		return nil, eris.Errorf("extractor: %s", resp.Error)
	}

	return &reprocess.Extraction{
		Record:          resp.Record,
		Confidence:      resp.Confidence,
		FieldConfidence: resp.FieldConfidence,
	}, nil
}

func (c *Client) post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "extractor: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extractor: request failed"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "extractor: read response"), resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnprocessableEntity:
		// The document is the problem, not the service. Don't retry.
		return nil, eris.Errorf("extractor: unprocessable document: %s", string(body))
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(
			eris.Errorf("extractor: status %d", resp.StatusCode), resp.StatusCode)
	default:
		return nil, eris.Errorf("extractor: unexpected status %d: %s", resp.StatusCode, string(body))
	}
}
