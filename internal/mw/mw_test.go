package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestRateLimiterCapsBursts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// A refill this slow makes the test deterministic: only the burst passes.
	r.Use(RateLimiter(rate.Limit(0.001), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestCacheServesRepeatedGets(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := cache.New(time.Minute, time.Minute)

	hits := 0
	r := gin.New()
	r.Use(Cache(store, time.Minute))
	r.GET("/assets", func(c *gin.Context) {
		hits++
		c.Header("X-Set", "yes")
		c.JSON(http.StatusOK, gin.H{"hits": hits})
	})
	r.POST("/assets", func(c *gin.Context) {
		hits++
		c.Status(http.StatusOK)
	})

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/assets", nil)
		r.ServeHTTP(w, req)
		return w
	}

	first := get()
	second := get()
	assert.Equal(t, 1, hits, "the second GET is served from the cache")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "yes", second.Header().Get("X-Set"), "cached headers are replayed")

	// Writes pass straight through.
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/assets", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, 2, hits)

	// A flush (what the synchronization loop does on change) re-pulls.
	store.Flush()
	get()
	assert.Equal(t, 3, hits)
}

func TestCacheSkipsFailedResponses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := cache.New(time.Minute, time.Minute)

	hits := 0
	r := gin.New()
	r.Use(Cache(store, time.Minute))
	r.GET("/broken", func(c *gin.Context) {
		hits++
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "down"})
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/broken", nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	}
	assert.Equal(t, 2, hits, "error responses are never cached")
}
