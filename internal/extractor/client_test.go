package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ingest-cli/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestExtract_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/extract", r.URL.Path)

		var req extractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "adv_firm", req.Class)
		assert.Equal(t, "2.1.0", req.Version)
		assert.Equal(t, []byte("<xml/>"), req.Content)

		json.NewEncoder(w).Encode(extractResponse{ //nolint:errcheck
			Record:          json.RawMessage(`{"crd":"12345"}`),
			Confidence:      0.93,
			FieldConfidence: map[string]float64{"crd": 0.99},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	out, err := c.Extract(context.Background(), "adv_firm", "2.1.0", []byte("<xml/>"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"crd":"12345"}`, string(out.Record))
	assert.InDelta(t, 0.93, out.Confidence, 1e-9)
	assert.InDelta(t, 0.99, out.FieldConfidence["crd"], 1e-9)
}

func TestExtract_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(extractResponse{ //nolint:errcheck
			Record: json.RawMessage(`{}`), Confidence: 0.5,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithRetry(fastRetry()))
	out, err := c.Extract(context.Background(), "adv_firm", "1.0.0", []byte("x"))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.Confidence, 1e-9)
	assert.Equal(t, int32(3), calls.Load())
}

func TestExtract_UnprocessableIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte("truncated document")) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithRetry(fastRetry()))
	_, err := c.Extract(context.Background(), "adv_firm", "1.0.0", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unprocessable document")
	assert.Equal(t, int32(1), calls.Load())
}

func TestExtract_ServiceErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(extractResponse{Error: "unknown extractor class"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Extract(context.Background(), "bogus", "1.0.0", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown extractor class")
}

func TestExtract_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, WithRetry(fastRetry()))
	_, err := c.Extract(context.Background(), "adv_firm", "1.0.0", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(3), calls.Load())
}
