package health

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadiness(t *testing.T) {
	h := New()
	mux := http.NewServeMux()
	h.Register(mux)

	probe := func(path string) int {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, probe("/healthz"))
	assert.Equal(t, http.StatusServiceUnavailable, probe("/readyz"))

	h.SetReady()
	assert.True(t, h.Ready())
	assert.Equal(t, http.StatusOK, probe("/readyz"))

	h.SetNotReady()
	assert.Equal(t, http.StatusServiceUnavailable, probe("/readyz"))
}
