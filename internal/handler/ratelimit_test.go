package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/socialmedia/internal/handler"
)

func TestRateLimiter_perClientBurst(t *testing.T) {
	gin.SetMode(gin.TestMode)
	stop := make(chan struct{})
	defer close(stop)

	r := gin.New()
	r.Use(handler.RateLimiter(1, 2, stop))
	r.GET("/api/v1/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	get := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		if w := get("192.0.2.1:4000"); w.Code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i, w.Code)
		}
	}

	w := get("192.0.2.1:4000")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over burst: got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1" {
		t.Errorf("Retry-After: got %q, want 1", got)
	}
	if !strings.Contains(w.Body.String(), `"reason":"rate_limited"`) {
		t.Errorf("body: %s", w.Body.String())
	}

	if w := get("192.0.2.2:4000"); w.Code != http.StatusOK {
		t.Errorf("other client: got %d", w.Code)
	}
}
