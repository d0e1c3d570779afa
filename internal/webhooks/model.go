package webhooks

import (
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/socialmedia/internal/social"
)

// Subscription is an identity's request to receive ledger events at a URL.
type Subscription struct {
	ID        uuid.UUID          `json:"id"         db:"id"`
	Owner     social.Identity    `json:"owner"      db:"owner"`
	URL       string             `json:"url"        db:"url"`
	Events    []social.EventKind `json:"events"     db:"events"`
	Secret    string             `json:"-"          db:"secret"` // never returned in API responses
	Active    bool               `json:"active"     db:"active"`
	CreatedAt time.Time          `json:"created_at" db:"created_at"`
}

// Wants reports whether the subscription listens for kind.
func (s *Subscription) Wants(kind social.EventKind) bool {
	for _, k := range s.Events {
		if k == kind {
			return true
		}
	}
	return false
}

// Envelope is the JSON body POSTed to a subscriber. ID is the same on every
// retry of one event, so receivers can deduplicate.
type Envelope struct {
	ID        uuid.UUID        `json:"id"`
	Type      social.EventKind `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Event     social.Event     `json:"event"`
}

// Delivery records the outcome of a single delivery attempt.
type Delivery struct {
	ID             uuid.UUID        `json:"id"              db:"id"`
	SubscriptionID uuid.UUID        `json:"subscription_id" db:"subscription_id"`
	EnvelopeID     uuid.UUID        `json:"envelope_id"     db:"envelope_id"`
	EventType      social.EventKind `json:"event_type"      db:"event_type"`
	StatusCode     int              `json:"status_code"     db:"status_code"`
	Attempt        int              `json:"attempt"         db:"attempt"`
	Success        bool             `json:"success"         db:"success"`
	ErrorMessage   string           `json:"error_message"   db:"error_message"`
	DeliveredAt    time.Time        `json:"delivered_at"    db:"delivered_at"`
}

// CreateSubscriptionRequest is the payload for creating a webhook subscription.
type CreateSubscriptionRequest struct {
	URL    string             `json:"url"    binding:"required,url"`
	Events []social.EventKind `json:"events" binding:"required"`
}
