package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ── Stubs ────────────────────────────────────────────────────────────────

type stubJournal struct {
	entries   int
	verifyErr error
	lenErr    error
}

func (s *stubJournal) Verify(_ context.Context) error { return s.verifyErr }

func (s *stubJournal) Len(_ context.Context) (int, error) { return s.entries, s.lenErr }

// ── Tests ────────────────────────────────────────────────────────────────

func TestCheck_healthy(t *testing.T) {
	j := &stubJournal{entries: 7}
	checker := New(j, Config{}, zap.NewNop())

	st := checker.Check(context.Background())
	if st.Status != "ok" || st.Entries != 7 || st.Error != "" {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.CheckedAt.IsZero() {
		t.Error("expected CheckedAt to be set")
	}
}

func TestCheck_degradesAfterThreshold(t *testing.T) {
	j := &stubJournal{entries: 3, verifyErr: errors.New("entry 2: hash mismatch")}
	checker := New(j, Config{FailThreshold: 2}, zap.NewNop())

	var results []bool
	checker.SetMetricsRecord(func(ok bool) { results = append(results, ok) })

	if st := checker.Check(context.Background()); st.Status != "ok" || st.Error == "" {
		t.Errorf("first failure should stay ok with an error, got %+v", st)
	}
	if st := checker.Check(context.Background()); st.Status != "degraded" {
		t.Errorf("second failure should degrade, got %+v", st)
	}

	j.verifyErr = nil
	if st := checker.Check(context.Background()); st.Status != "ok" {
		t.Errorf("expected recovery, got %+v", st)
	}

	want := []bool{true, false, true}
	if len(results) != len(want) {
		t.Fatalf("metrics calls: got %v, want %v", results, want)
	}
	for i := range want {
		if results[i] != want[i] {
			t.Errorf("metrics[%d]: got %v, want %v", i, results[i], want[i])
		}
	}
}

func TestCheck_lenErrorCountsAsFailure(t *testing.T) {
	j := &stubJournal{lenErr: errors.New("connection refused")}
	checker := New(j, Config{FailThreshold: 1}, zap.NewNop())

	if st := checker.Check(context.Background()); st.Status != "degraded" {
		t.Errorf("expected degraded, got %+v", st)
	}
}

func TestHandler_statusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	j := &stubJournal{entries: 1}
	checker := New(j, Config{FailThreshold: 1}, zap.NewNop())

	r := gin.New()
	r.GET("/healthz", checker.Handler())

	get := func() int {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return w.Code
	}

	if code := get(); code != http.StatusOK {
		t.Errorf("before first audit: got %d, want 200", code)
	}

	j.verifyErr = errors.New("broken chain")
	checker.Check(context.Background())
	if code := get(); code != http.StatusServiceUnavailable {
		t.Errorf("degraded: got %d, want 503", code)
	}
}

func TestStart_stops(t *testing.T) {
	checker := New(&stubJournal{}, Config{}, zap.NewNop())
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		checker.Start(stop)
		close(done)
	}()
	close(stop)
	<-done
}
