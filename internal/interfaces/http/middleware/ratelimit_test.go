package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/kksync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) now() time.Time { return f.t }

func newTestLimiter(perSecond float64, burst int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(perSecond, burst)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter(t *testing.T) {
	t.Run("allows the burst then refuses", func(t *testing.T) {
		rl, _ := newTestLimiter(1, 3)

		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
		}
		assert.False(t, rl.Allow("10.0.0.1"))
		assert.Equal(t, 0, rl.Remaining("10.0.0.1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl, _ := newTestLimiter(1, 1)

		assert.True(t, rl.Allow("10.0.0.1"))
		assert.False(t, rl.Allow("10.0.0.1"))
		assert.True(t, rl.Allow("10.0.0.2"))
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		rl, clock := newTestLimiter(2, 2)

		assert.True(t, rl.Allow("k"))
		assert.True(t, rl.Allow("k"))
		assert.False(t, rl.Allow("k"))

		clock.t = clock.t.Add(500 * time.Millisecond)
		assert.True(t, rl.Allow("k"))
		assert.False(t, rl.Allow("k"))
	})

	t.Run("unknown key has a full bucket", func(t *testing.T) {
		rl, _ := newTestLimiter(5, 10)
		assert.Equal(t, 10, rl.Remaining("fresh"))
	})

	t.Run("burst below one is raised", func(t *testing.T) {
		rl, _ := newTestLimiter(1, 0)
		assert.True(t, rl.Allow("k"))
	})
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, clock := newTestLimiter(1, 1)
	rl.Allow("old")

	clock.t = clock.t.Add(5 * time.Minute)
	rl.Allow("recent")

	clock.t = clock.t.Add(6 * time.Minute)
	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.clients, 1)
	assert.Contains(t, rl.clients, "recent")
}

func TestRateLimitMiddleware(t *testing.T) {
	rl, _ := newTestLimiter(1, 2)

	router := gin.New()
	router.Use(RateLimit(rl))
	router.GET("/api/v1/sync/tasks", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sync/tasks", nil)
		req.RemoteAddr = "192.0.2.10:4711"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := do()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "2", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, do().Code)

	third := do()
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.Equal(t, "0", third.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", third.Header().Get("Retry-After"))
	assert.Equal(t, dto.ErrCodeRateLimited, decodeError(t, third).Code)
}
