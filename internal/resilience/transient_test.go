package resilience

import (
	"fmt"
	"net/http"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial tcp: deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked transient", NewTransientError(eris.New("http 429 from efts.sec.gov"), 429), true},
		{"marked transient, wrapped", fmt.Errorf("full text search: %w", NewTransientError(eris.New("http 502"), 502)), true},
		{"network timeout", timeoutErr{}, true},
		{"connection reset errno", fmt.Errorf("read index.json: %w", syscall.ECONNRESET), true},
		{"flaky transport message", eris.New("Get \"https://www.sec.gov\": TLS handshake timeout"), true},
		{"parse failure", eris.New("semver: too many parts"), false},
		{"not found", eris.New("http 404 from www.sec.gov"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestTransientErrorUnwraps(t *testing.T) {
	inner := eris.New("http 503 from data.sec.gov")
	te := NewTransientError(inner, http.StatusServiceUnavailable)

	assert.Equal(t, inner.Error(), te.Error())
	assert.ErrorIs(t, te, inner)
	assert.Equal(t, http.StatusServiceUnavailable, te.StatusCode)
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 301, 400, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}
