package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/socialmedia/internal/social"
)

// ErrNotFound is returned when a webhook subscription is not found.
var ErrNotFound = errors.New("webhook subscription not found")

// Repository provides persistence for webhook subscriptions and deliveries.
type Repository interface {
	Create(ctx context.Context, sub *Subscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListByOwner(ctx context.Context, owner social.Identity) ([]*Subscription, error)
	ListByEvent(ctx context.Context, kind social.EventKind) ([]*Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	RecordDelivery(ctx context.Context, d *Delivery) error
}

// PostgresRepository stores subscriptions in the webhook_subscriptions and
// webhook_deliveries tables.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const subscriptionColumns = `id, owner, url, events, secret, active, created_at`

// Create inserts a new webhook subscription.
func (r *PostgresRepository) Create(ctx context.Context, sub *Subscription) error {
	prepareSubscription(sub)
	query := `INSERT INTO webhook_subscriptions (` + subscriptionColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Exec(ctx, query,
		sub.ID, sub.Owner.String(), sub.URL, kindsToStrings(sub.Events), sub.Secret, sub.Active, sub.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

// GetByID retrieves a subscription by ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions WHERE id = $1`, id)
	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// ListByOwner returns all subscriptions of owner, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner social.Identity) ([]*Subscription, error) {
	return r.list(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions
		 WHERE owner = $1 ORDER BY created_at DESC`, owner.String())
}

// ListByEvent returns all active subscriptions listening for kind.
func (r *PostgresRepository) ListByEvent(ctx context.Context, kind social.EventKind) ([]*Subscription, error) {
	return r.list(ctx,
		`SELECT `+subscriptionColumns+` FROM webhook_subscriptions
		 WHERE active = true AND $1 = ANY(events) ORDER BY created_at`, string(kind))
}

func (r *PostgresRepository) list(ctx context.Context, query string, arg any) ([]*Subscription, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Delete removes a subscription.
func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery records a webhook delivery attempt.
func (r *PostgresRepository) RecordDelivery(ctx context.Context, d *Delivery) error {
	prepareDelivery(d)
	query := `INSERT INTO webhook_deliveries (id, subscription_id, envelope_id, event_type, status_code, attempt, success, error_message, delivered_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.Exec(ctx, query,
		d.ID, d.SubscriptionID, d.EnvelopeID, string(d.EventType),
		d.StatusCode, d.Attempt, d.Success, d.ErrorMessage, d.DeliveredAt,
	)
	return err
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var (
		sub    Subscription
		owner  string
		events []string
	)
	if err := row.Scan(&sub.ID, &owner, &sub.URL, &events, &sub.Secret, &sub.Active, &sub.CreatedAt); err != nil {
		return nil, err
	}
	sub.Owner = social.Identity(owner)
	sub.Events = make([]social.EventKind, len(events))
	for i, e := range events {
		sub.Events[i] = social.EventKind(e)
	}
	return &sub, nil
}

func kindsToStrings(kinds []social.EventKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func prepareSubscription(sub *Subscription) {
	sub.ID = uuid.New()
	sub.CreatedAt = time.Now().UTC()
	sub.Active = true
}

func prepareDelivery(d *Delivery) {
	d.ID = uuid.New()
	d.DeliveredAt = time.Now().UTC()
}

// MemoryRepository is a Repository kept in process memory, for nodes run
// without a database and for tests.
type MemoryRepository struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]*Subscription
	deliveries []Delivery
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{subs: make(map[uuid.UUID]*Subscription)}
}

// Create stores a new subscription.
func (r *MemoryRepository) Create(_ context.Context, sub *Subscription) error {
	prepareSubscription(sub)
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := copySubscription(sub)
	r.subs[sub.ID] = cp
	return nil
}

// GetByID retrieves a subscription by ID.
func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySubscription(sub), nil
}

// ListByOwner returns all subscriptions of owner, newest first.
func (r *MemoryRepository) ListByOwner(_ context.Context, owner social.Identity) ([]*Subscription, error) {
	subs := r.filter(func(s *Subscription) bool { return s.Owner == owner })
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].CreatedAt.After(subs[j].CreatedAt) })
	return subs, nil
}

// ListByEvent returns all active subscriptions listening for kind.
func (r *MemoryRepository) ListByEvent(_ context.Context, kind social.EventKind) ([]*Subscription, error) {
	subs := r.filter(func(s *Subscription) bool { return s.Active && s.Wants(kind) })
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].CreatedAt.Before(subs[j].CreatedAt) })
	return subs, nil
}

func (r *MemoryRepository) filter(keep func(*Subscription) bool) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Subscription
	for _, s := range r.subs {
		if keep(s) {
			out = append(out, copySubscription(s))
		}
	}
	return out
}

// Delete removes a subscription.
func (r *MemoryRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return ErrNotFound
	}
	delete(r.subs, id)
	return nil
}

// RecordDelivery records a webhook delivery attempt.
func (r *MemoryRepository) RecordDelivery(_ context.Context, d *Delivery) error {
	prepareDelivery(d)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, *d)
	return nil
}

// Deliveries returns every recorded attempt in order.
func (r *MemoryRepository) Deliveries() []Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Delivery(nil), r.deliveries...)
}

func copySubscription(s *Subscription) *Subscription {
	cp := *s
	cp.Events = append([]social.EventKind(nil), s.Events...)
	return &cp
}
