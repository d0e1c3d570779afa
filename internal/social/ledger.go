// Package social implements the SocialMedia ledger: registered users, an
// append-only sequence of posts, and a comment sequence per post.
//
// A Ledger is plain sequential state. It performs no locking and no I/O; the
// host that owns it must run one call at a time and must supply the caller
// identity and the current time on every call. Every mutating call either
// applies completely and emits exactly one Event, or is rejected with one of
// the sentinel errors and leaves the ledger unchanged.
package social

import (
	"fmt"
	"time"
)

// Ledger is the social state container.
type Ledger struct {
	owner    Identity
	users    map[Identity]User
	posts    []*post
	notifier Notifier // nil = no notifications
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNotifier sets the collaborator that receives an Event after every
// successful mutation.
func WithNotifier(n Notifier) Option {
	return func(l *Ledger) { l.notifier = n }
}

// New creates an empty ledger. owner is recorded once and kept for the
// lifetime of the ledger.
func New(owner Identity, opts ...Option) *Ledger {
	l := &Ledger{
		owner: owner,
		users: make(map[Identity]User),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// SetNotifier replaces the notification collaborator. Pass nil to disable
// notifications, e.g. while replaying history.
func (l *Ledger) SetNotifier(n Notifier) {
	l.notifier = n
}

// Owner returns the identity recorded at construction.
func (l *Ledger) Owner() Identity { return l.owner }

// IsOwner reports whether id is the ledger owner. Reserved for privileged
// operations; none are currently defined.
func (l *Ledger) IsOwner(id Identity) bool { return id == l.owner }

func (l *Ledger) notify(e Event) {
	if l.notifier != nil {
		l.notifier.Notify(e)
	}
}

func (l *Ledger) isRegistered(id Identity) bool {
	return l.users[id].Registered
}

// ── Precondition checks ─────────────────────────────────────────────────────

// CheckRegister validates a Register call without applying it.
func (l *Ledger) CheckRegister(caller Identity, username string) error {
	if l.isRegistered(caller) {
		return fmt.Errorf("register %s: %w", caller, ErrAlreadyRegistered)
	}
	if len(username) == 0 {
		return fmt.Errorf("register: username: %w", ErrEmptyInput)
	}
	return nil
}

// CheckCreatePost validates a CreatePost call without applying it.
func (l *Ledger) CheckCreatePost(caller Identity, content string) error {
	if !l.isRegistered(caller) {
		return fmt.Errorf("create post: %w", ErrUnauthorized)
	}
	if len(content) == 0 {
		return fmt.Errorf("create post: content: %w", ErrEmptyInput)
	}
	return nil
}

// CheckLikePost validates a LikePost call without applying it.
func (l *Ledger) CheckLikePost(caller Identity, postID uint64) error {
	if !l.isRegistered(caller) {
		return fmt.Errorf("like post: %w", ErrUnauthorized)
	}
	if _, err := l.lookup(postID); err != nil {
		return fmt.Errorf("like post: %w", err)
	}
	return nil
}

// CheckAddComment validates an AddComment call without applying it.
func (l *Ledger) CheckAddComment(caller Identity, postID uint64, content string) error {
	if !l.isRegistered(caller) {
		return fmt.Errorf("add comment: %w", ErrUnauthorized)
	}
	if _, err := l.lookup(postID); err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	if len(content) == 0 {
		return fmt.Errorf("add comment: content: %w", ErrEmptyInput)
	}
	return nil
}

// ── Mutations ───────────────────────────────────────────────────────────────

// Register records caller as a user named username.
func (l *Ledger) Register(caller Identity, username string) error {
	if err := l.CheckRegister(caller, username); err != nil {
		return err
	}
	l.users[caller] = User{Username: username, Owner: caller, Registered: true}
	l.notify(Event{Kind: EventUserRegistered, Caller: caller, Username: username})
	return nil
}

// CreatePost appends a post authored by caller and returns its id, which is
// the number of posts that existed before the call.
func (l *Ledger) CreatePost(caller Identity, content string, now time.Time) (uint64, error) {
	if err := l.CheckCreatePost(caller, content); err != nil {
		return 0, err
	}
	id := uint64(len(l.posts))
	l.posts = append(l.posts, &post{author: caller, content: content, createdAt: now})
	l.notify(Event{Kind: EventPostCreated, Caller: caller, PostID: id, Content: content, Timestamp: now})
	return id, nil
}

// LikePost increments the like counter of postID by one. Likes are not
// deduplicated per caller.
func (l *Ledger) LikePost(caller Identity, postID uint64) error {
	if err := l.CheckLikePost(caller, postID); err != nil {
		return err
	}
	l.posts[postID].likes++
	l.notify(Event{Kind: EventPostLiked, Caller: caller, PostID: postID})
	return nil
}

// AddComment appends a comment to postID and returns its 0-based position in
// that post's comment sequence.
func (l *Ledger) AddComment(caller Identity, postID uint64, content string, now time.Time) (uint64, error) {
	if err := l.CheckAddComment(caller, postID, content); err != nil {
		return 0, err
	}
	p := l.posts[postID]
	id := uint64(len(p.comments))
	p.comments = append(p.comments, Comment{
		PostID:    postID,
		ID:        id,
		Commenter: caller,
		Content:   content,
		CreatedAt: now,
	})
	l.notify(Event{
		Kind:      EventCommentAdded,
		Caller:    caller,
		PostID:    postID,
		CommentID: id,
		Content:   content,
		Timestamp: now,
	})
	return id, nil
}

// ── Queries ─────────────────────────────────────────────────────────────────

func (l *Ledger) lookup(postID uint64) (*post, error) {
	if postID >= uint64(len(l.posts)) {
		return nil, fmt.Errorf("post %d: %w", postID, ErrNotFound)
	}
	return l.posts[postID], nil
}

// GetPost returns a snapshot of postID.
func (l *Ledger) GetPost(postID uint64) (Post, error) {
	p, err := l.lookup(postID)
	if err != nil {
		return Post{}, err
	}
	return p.snapshot(postID), nil
}

// GetComment returns comment commentID of postID.
func (l *Ledger) GetComment(postID, commentID uint64) (Comment, error) {
	p, err := l.lookup(postID)
	if err != nil {
		return Comment{}, err
	}
	if commentID >= uint64(len(p.comments)) {
		return Comment{}, fmt.Errorf("comment %d on post %d: %w", commentID, postID, ErrNotFound)
	}
	return p.comments[commentID], nil
}

// PostCount returns the number of posts.
func (l *Ledger) PostCount() uint64 {
	return uint64(len(l.posts))
}

// CommentCount returns the number of comments on postID.
func (l *Ledger) CommentCount(postID uint64) (uint64, error) {
	p, err := l.lookup(postID)
	if err != nil {
		return 0, err
	}
	return uint64(len(p.comments)), nil
}

// GetUser returns the user record for id, or ErrNotFound if id never
// registered.
func (l *Ledger) GetUser(id Identity) (User, error) {
	u, ok := l.users[id]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return u, nil
}

// UserCount returns the number of registered identities.
func (l *Ledger) UserCount() int {
	return len(l.users)
}

// ListPosts returns up to limit posts starting at offset, in id order.
// An offset past the end yields an empty slice.
func (l *Ledger) ListPosts(offset, limit uint64) []Post {
	lo, hi := window(uint64(len(l.posts)), offset, limit)
	out := make([]Post, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, l.posts[i].snapshot(i))
	}
	return out
}

// ListComments returns up to limit comments of postID starting at offset.
func (l *Ledger) ListComments(postID, offset, limit uint64) ([]Comment, error) {
	p, err := l.lookup(postID)
	if err != nil {
		return nil, err
	}
	lo, hi := window(uint64(len(p.comments)), offset, limit)
	out := make([]Comment, hi-lo)
	copy(out, p.comments[lo:hi])
	return out, nil
}

// window clamps [offset, offset+limit) to [0, n).
func window(n, offset, limit uint64) (uint64, uint64) {
	if offset >= n {
		return n, n
	}
	hi := n
	if limit < n-offset {
		hi = offset + limit
	}
	return offset, hi
}
