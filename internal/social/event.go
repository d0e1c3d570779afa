package social

import "time"

// EventKind names a notification emitted after a successful mutation.
type EventKind string

const (
	EventUserRegistered EventKind = "user.registered"
	EventPostCreated    EventKind = "post.created"
	EventPostLiked      EventKind = "post.liked"
	EventCommentAdded   EventKind = "comment.added"
)

// EventKinds lists every kind the ledger emits.
var EventKinds = []EventKind{
	EventUserRegistered,
	EventPostCreated,
	EventPostLiked,
	EventCommentAdded,
}

// Valid reports whether k is a kind the ledger emits.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Event is the notification record for one successful call. Fields that do
// not apply to a kind are left at their zero value:
//
//	user.registered  Caller, Username
//	post.created     Caller, PostID, Content, Timestamp
//	post.liked       Caller, PostID
//	comment.added    Caller, PostID, CommentID, Content, Timestamp
type Event struct {
	Kind      EventKind `json:"kind"`
	Caller    Identity  `json:"caller"`
	Username  string    `json:"username,omitempty"`
	PostID    uint64    `json:"post_id"`
	CommentID uint64    `json:"comment_id"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier receives events from the ledger. Notify is called at most once per
// successful mutation and never for a rejected one.
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(Event)

// Notify implements Notifier.
func (f NotifierFunc) Notify(e Event) { f(e) }
