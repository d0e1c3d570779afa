// Package health audits the call journal in the background and reports the
// result on the node's health endpoint.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	grpchealth "google.golang.org/grpc/health"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	CheckTimeout  time.Duration
	FailThreshold int // consecutive failed audits before the node reports degraded
}

// Journal is the subset of txlog.Log the checker audits.
type Journal interface {
	Verify(ctx context.Context) error
	Len(ctx context.Context) (int, error)
}

// MetricsRecordFunc is an optional callback for recording audit results.
type MetricsRecordFunc func(healthy bool)

// Status is the outcome of the latest audit.
type Status struct {
	Status    string    `json:"status"` // "ok" or "degraded"
	Entries   int       `json:"entries"`
	CheckedAt time.Time `json:"checked_at"`
	Error     string    `json:"error,omitempty"`
}

// HealthChecker runs periodic journal integrity audits.
type HealthChecker struct {
	journal   Journal
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger

	mu         sync.Mutex
	failCount  int
	last       Status
	grpcHealth *grpchealth.Server // nil until NewGRPCServer
}

// New creates a new HealthChecker. The node reports ok until the first
// audit completes.
func New(journal Journal, cfg Config, logger *zap.Logger) *HealthChecker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 5 * time.Minute
	}
	if cfg.CheckTimeout == 0 {
		cfg.CheckTimeout = 30 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &HealthChecker{
		journal: journal,
		cfg:     cfg,
		logger:  logger,
		last:    Status{Status: "ok"},
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *HealthChecker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Start runs the audit loop until stop is closed.
func (h *HealthChecker) Start(stop <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), h.cfg.CheckTimeout)
			h.Check(ctx)
			cancel()
		case <-stop:
			return
		}
	}
}

// Check audits the journal once and returns the resulting status.
func (h *HealthChecker) Check(ctx context.Context) Status {
	now := time.Now().UTC()
	n, err := h.journal.Len(ctx)
	if err == nil {
		err = h.journal.Verify(ctx)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	prevCount := h.failCount
	if err == nil {
		h.failCount = 0
	} else {
		h.failCount++
	}

	st := Status{Status: "ok", Entries: n, CheckedAt: now}
	if err != nil {
		st.Error = err.Error()
		if h.failCount >= h.cfg.FailThreshold {
			st.Status = "degraded"
		}
	}

	switch {
	case err == nil && prevCount >= h.cfg.FailThreshold:
		h.logger.Info("health: journal recovered", zap.Int("entries", n))
	case err != nil && h.failCount == h.cfg.FailThreshold:
		h.logger.Error("health: journal degraded",
			zap.Int("fail_count", h.failCount),
			zap.Error(err),
		)
	case err != nil:
		h.logger.Warn("health: journal audit failed",
			zap.Int("fail_count", h.failCount),
			zap.Error(err),
		)
	}

	if h.onMetrics != nil {
		h.onMetrics(st.Status == "ok")
	}
	if h.grpcHealth != nil {
		setServing(h.grpcHealth, st.Status == "ok")
	}
	h.last = st
	return st
}

// Status returns the latest audit result.
func (h *HealthChecker) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Handler serves the latest status: 200 when ok, 503 when degraded.
func (h *HealthChecker) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		st := h.Status()
		code := http.StatusOK
		if st.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, st)
	}
}
