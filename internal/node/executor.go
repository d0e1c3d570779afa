// Package node hosts a social.Ledger the way a chain hosts a contract: it
// runs one call at a time, stamps every call with the caller identity and
// the host clock, journals it to a hash-chained txlog before applying it,
// and forwards the ledger's notifications to observers.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/socialmedia/internal/social"
	"github.com/jmerrifield20/socialmedia/internal/txlog"
	"go.uber.org/zap"
)

// ErrJournal is returned when a validated call could not be journaled.
// The ledger is left unchanged.
var ErrJournal = errors.New("journal append failed")

// CallRecorder is an optional callback invoked once per mutating call with
// its method and outcome ("ok" or a social.Reason label).
type CallRecorder func(method Method, outcome string)

// Executor serialises all access to a single ledger.
type Executor struct {
	mu       sync.Mutex
	ledger   *social.Ledger
	log      txlog.Log
	notifier social.Notifier // nil = no notifications
	now      func() time.Time
	onCall   CallRecorder // nil = no call metrics
	logger   *zap.Logger
}

// NewExecutor creates an Executor around a fresh ledger owned by owner.
// Call Replay before serving traffic if log already holds history.
func NewExecutor(owner social.Identity, log txlog.Log, logger *zap.Logger) *Executor {
	return &Executor{
		ledger: social.New(owner),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// SetNotifier configures where ledger notifications are delivered.
func (e *Executor) SetNotifier(n social.Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
	e.ledger.SetNotifier(n)
}

// SetClock overrides the host clock. The clock is read once per call and the
// value is journaled, so replay does not depend on it.
func (e *Executor) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetCallRecorder configures the per-call metrics callback.
func (e *Executor) SetCallRecorder(fn CallRecorder) {
	e.onCall = fn
}

// Log returns the journal backing this executor.
func (e *Executor) Log() txlog.Log { return e.log }

func (e *Executor) record(m Method, err error) {
	if e.onCall == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = social.Reason(err)
	}
	e.onCall(m, outcome)
}

// execute is the single path every mutating call takes:
// check, journal, apply. Only a call that passes its checks is journaled,
// and only a journaled call is applied. Observers are notified from inside
// apply; the hub only enqueues, so the lock is never held across delivery.
func (e *Executor) execute(ctx context.Context, tx Tx) (receipt *Receipt, err error) {
	defer func() { e.record(tx.Method, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	tx.Timestamp = e.now().UTC().Truncate(time.Microsecond)
	if err := check(e.ledger, tx); err != nil {
		e.logger.Debug("call rejected",
			zap.String("method", string(tx.Method)),
			zap.String("caller", tx.Caller.String()),
			zap.Error(err),
		)
		return nil, err
	}

	entry, err := e.log.Append(ctx, string(tx.Method), tx.Caller.String(), tx)
	if err != nil {
		e.logger.Error("journal append failed",
			zap.String("method", string(tx.Method)),
			zap.String("caller", tx.Caller.String()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrJournal, err)
	}

	r := &Receipt{Method: tx.Method, TxIndex: entry.Index, TxHash: entry.Hash, Timestamp: tx.Timestamp}
	if err := apply(e.ledger, tx, r); err != nil {
		// Unreachable while the lock is held: the same checks just passed.
		e.logger.Error("journaled call failed to apply",
			zap.Int("tx_index", entry.Index),
			zap.Error(err),
		)
		return nil, fmt.Errorf("apply tx %d: %w", entry.Index, err)
	}
	r.snapshot(e.ledger, tx)

	e.logger.Info("call applied",
		zap.String("method", string(tx.Method)),
		zap.String("caller", tx.Caller.String()),
		zap.Int("tx_index", entry.Index),
	)
	return r, nil
}

// Register registers caller under username.
func (e *Executor) Register(ctx context.Context, caller social.Identity, username string) (*Receipt, error) {
	return e.execute(ctx, Tx{Method: MethodRegister, Caller: caller, Username: username})
}

// CreatePost publishes a post; the receipt carries the new post id.
func (e *Executor) CreatePost(ctx context.Context, caller social.Identity, content string) (*Receipt, error) {
	return e.execute(ctx, Tx{Method: MethodCreatePost, Caller: caller, Content: content})
}

// LikePost adds one like to postID.
func (e *Executor) LikePost(ctx context.Context, caller social.Identity, postID uint64) (*Receipt, error) {
	return e.execute(ctx, Tx{Method: MethodLikePost, Caller: caller, PostID: postID})
}

// AddComment comments on postID; the receipt carries the new comment id.
func (e *Executor) AddComment(ctx context.Context, caller social.Identity, postID uint64, content string) (*Receipt, error) {
	return e.execute(ctx, Tx{Method: MethodAddComment, Caller: caller, PostID: postID, Content: content})
}

// ── Read-only queries ───────────────────────────────────────────────────────

// GetPost returns a snapshot of postID.
func (e *Executor) GetPost(postID uint64) (social.Post, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.GetPost(postID)
}

// GetComment returns comment commentID of postID.
func (e *Executor) GetComment(postID, commentID uint64) (social.Comment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.GetComment(postID, commentID)
}

// PostCount returns the number of posts.
func (e *Executor) PostCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.PostCount()
}

// GetUser returns the user record for id.
func (e *Executor) GetUser(id social.Identity) (social.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.GetUser(id)
}

// ListPosts returns a page of posts and the total post count, read atomically.
func (e *Executor) ListPosts(offset, limit uint64) ([]social.Post, uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ListPosts(offset, limit), e.ledger.PostCount()
}

// ListComments returns a page of comments on postID and its comment count.
func (e *Executor) ListComments(postID, offset, limit uint64) ([]social.Comment, uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs, err := e.ledger.ListComments(postID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	n, _ := e.ledger.CommentCount(postID)
	return cs, n, nil
}

// Stats is a consistent snapshot of ledger-wide counters.
type Stats struct {
	Owner     social.Identity `json:"owner"`
	PostCount uint64          `json:"post_count"`
	UserCount int             `json:"user_count"`
}

// Stats returns ledger-wide counters.
func (e *Executor) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Owner:     e.ledger.Owner(),
		PostCount: e.ledger.PostCount(),
		UserCount: e.ledger.UserCount(),
	}
}
