package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func() error

func (f pingFunc) Ping() error { return f() }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name         string
		ping         error
		wantStatus   int
		wantSuccess  bool
		wantDatabase string
	}{
		{"database reachable", nil, http.StatusOK, true, "connected"},
		{"database down", errors.New("dial tcp: refused"), http.StatusServiceUnavailable, false, "disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(pingFunc(func() error { return tt.ping }))
			r := gin.New()
			r.GET("/health", h.Health)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.Equal(t, tt.wantSuccess, resp.Success)
			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantDatabase, data["database"])
		})
	}
}
