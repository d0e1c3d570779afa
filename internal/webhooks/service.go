package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/socialmedia/internal/social"
	"go.uber.org/zap"
)

var (
	// ErrForbidden is returned when an identity acts on a subscription it
	// does not own.
	ErrForbidden = errors.New("not authorized for this subscription")
	// ErrInvalidEvents is returned when a subscription names no events or an
	// unknown event kind.
	ErrInvalidEvents = errors.New("invalid event list")
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Social-Signature"

const (
	maxAttempts        = 3
	defaultListTimeout = 5 * time.Second
)

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// Service manages webhook subscriptions and event dispatching.
type Service struct {
	repo       Repository
	httpClient *http.Client
	onMetrics  MetricsRecorder
	delays     []time.Duration // wait before attempt 2 and 3
	listTime   time.Duration   // bound on the subscriber lookup per event
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new webhook Service.
func NewService(repo Repository, logger *zap.Logger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		repo:       repo,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		delays:     []time.Duration{1 * time.Second, 5 * time.Second},
		listTime:   defaultListTimeout,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// SetMetricsRecorder configures the metrics callback.
func (s *Service) SetMetricsRecorder(fn MetricsRecorder) {
	s.onMetrics = fn
}

// SetRetryDelays overrides the waits between delivery attempts.
func (s *Service) SetRetryDelays(d ...time.Duration) {
	s.delays = d
}

// SetListTimeout bounds how long Dispatch waits for the repository to list
// the subscribers of an event.
func (s *Service) SetListTimeout(d time.Duration) {
	s.listTime = d
}

// SetHTTPClient overrides the client used for deliveries.
func (s *Service) SetHTTPClient(c *http.Client) {
	s.httpClient = c
}

// Subscribe creates a new webhook subscription with a generated HMAC secret.
func (s *Service) Subscribe(ctx context.Context, owner social.Identity, req *CreateSubscriptionRequest) (*Subscription, error) {
	if len(req.Events) == 0 {
		return nil, fmt.Errorf("%w: at least one event is required", ErrInvalidEvents)
	}
	for _, k := range req.Events {
		if !k.Valid() {
			return nil, fmt.Errorf("%w: unknown event %q", ErrInvalidEvents, k)
		}
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	sub := &Subscription{
		Owner:  owner,
		URL:    req.URL,
		Events: req.Events,
		Secret: secret,
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

// Unsubscribe deletes a subscription, checking ownership.
func (s *Service) Unsubscribe(ctx context.Context, owner social.Identity, subID uuid.UUID) error {
	sub, err := s.repo.GetByID(ctx, subID)
	if err != nil {
		return err
	}
	if sub.Owner != owner {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, subID)
}

// ListByOwner returns all subscriptions of owner.
func (s *Service) ListByOwner(ctx context.Context, owner social.Identity) ([]*Subscription, error) {
	return s.repo.ListByOwner(ctx, owner)
}

// Handle dispatches a ledger event. It has the shape notify.Hub expects of
// a subscriber and returns once deliveries are started.
func (s *Service) Handle(ev social.Event) {
	s.Dispatch(s.ctx, ev)
}

// Dispatch fans out ev to all matching subscriptions.
func (s *Service) Dispatch(ctx context.Context, ev social.Event) {
	listCtx, cancel := context.WithTimeout(ctx, s.listTime)
	subs, err := s.repo.ListByEvent(listCtx, ev.Kind)
	cancel()
	if err != nil {
		s.logger.Error("webhook: list subscribers",
			zap.String("kind", string(ev.Kind)),
			zap.Error(err),
		)
		return
	}

	env := Envelope{
		ID:        uuid.New(),
		Type:      ev.Kind,
		Timestamp: time.Now().UTC(),
		Event:     ev,
	}
	for _, sub := range subs {
		s.wg.Add(1)
		go func(sub *Subscription) {
			defer s.wg.Done()
			s.deliver(ctx, sub, env)
		}(sub)
	}
}

// Wait blocks until in-flight deliveries finish.
func (s *Service) Wait() { s.wg.Wait() }

// Close abandons pending retries and waits for in-flight deliveries.
func (s *Service) Close() {
	s.cancel()
	s.wg.Wait()
}

// deliver sends the envelope to a single subscription with retries.
func (s *Service) deliver(ctx context.Context, sub *Subscription, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		s.logger.Error("webhook: marshal event", zap.Error(err))
		return
	}

	signature := signPayload(body, sub.Secret)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if !s.wait(ctx, attempt) {
				return
			}
		}

		success, statusCode, errMsg := s.doDelivery(ctx, sub.URL, body, signature, env.ID)

		delivery := &Delivery{
			SubscriptionID: sub.ID,
			EnvelopeID:     env.ID,
			EventType:      env.Type,
			StatusCode:     statusCode,
			Attempt:        attempt,
			Success:        success,
			ErrorMessage:   errMsg,
		}
		if recordErr := s.repo.RecordDelivery(context.WithoutCancel(ctx), delivery); recordErr != nil {
			s.logger.Warn("webhook: record delivery", zap.Error(recordErr))
		}

		if s.onMetrics != nil {
			s.onMetrics(success)
		}

		if success {
			return
		}

		s.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
}

// wait sleeps before the given attempt; it reports false if ctx ended first.
func (s *Service) wait(ctx context.Context, attempt int) bool {
	var d time.Duration
	if i := attempt - 2; i < len(s.delays) {
		d = s.delays[i]
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// doDelivery performs a single HTTP POST delivery.
func (s *Service) doDelivery(ctx context.Context, url string, body []byte, signature string, id uuid.UUID) (bool, int, string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)
	req.Header.Set("X-Social-Delivery", id.String())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, 0, err.Error()
	}
	defer resp.Body.Close()
	io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	errMsg := ""
	if !success {
		errMsg = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return success, resp.StatusCode, errMsg
}

// Sign returns the SignatureHeader value for body under secret. Receivers
// compare it against the header with hmac.Equal.
func Sign(body []byte, secret string) string {
	return signPayload(body, secret)
}

// signPayload computes an HMAC-SHA256 signature.
func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// generateSecret creates a random 32-byte hex-encoded secret.
func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
