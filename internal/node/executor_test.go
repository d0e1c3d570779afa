package node_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/socialmedia/internal/node"
	"github.com/jmerrifield20/socialmedia/internal/notify"
	"github.com/jmerrifield20/socialmedia/internal/social"
	"github.com/jmerrifield20/socialmedia/internal/txlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	owner = social.Identity("0x00000000000000000000000000000000000000F0")
	alice = social.Identity("0x000000000000000000000000000000000000A11C")
	bob   = social.Identity("0x0000000000000000000000000000000000000B0B")
	eve   = social.Identity("0x0000000000000000000000000000000000000E7E")
)

var ctx = context.Background()

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// failingLog wraps a MemoryLog and fails every Append while fail is set.
type failingLog struct {
	*txlog.MemoryLog
	fail bool
}

func (f *failingLog) Append(ctx context.Context, method, caller string, payload any) (*txlog.Entry, error) {
	if f.fail {
		return nil, errors.New("disk full")
	}
	return f.MemoryLog.Append(ctx, method, caller, payload)
}

func TestExecutor_scenario(t *testing.T) {
	log := txlog.NewMemory()
	ex := node.NewExecutor(owner, log, zap.NewNop())
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ex.SetClock(fixedClock(t0))

	r, err := ex.Register(ctx, alice, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, r.TxIndex)

	r, err = ex.CreatePost(ctx, alice, "hello")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.PostID)
	assert.Equal(t, t0, r.Timestamp)

	_, err = ex.Register(ctx, bob, "bob")
	require.NoError(t, err)
	_, err = ex.LikePost(ctx, bob, 0)
	require.NoError(t, err)
	_, err = ex.LikePost(ctx, bob, 0)
	require.NoError(t, err)

	r, err = ex.AddComment(ctx, bob, 0, "nice!")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.CommentID)

	p, err := ex.GetPost(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.LikeCount)
	assert.Equal(t, uint64(1), p.CommentCount)
	assert.Equal(t, t0, p.CreatedAt)

	_, err = ex.GetComment(0, 1)
	assert.ErrorIs(t, err, social.ErrNotFound)
	assert.Equal(t, uint64(1), ex.PostCount())

	n, _ := log.Len(ctx)
	assert.Equal(t, 7, n) // genesis + 6 calls
	require.NoError(t, log.Verify(ctx))
}

func TestExecutor_rejectionIsNotJournaled(t *testing.T) {
	log := txlog.NewMemory()
	ex := node.NewExecutor(owner, log, zap.NewNop())

	var outcomes []string
	ex.SetCallRecorder(func(m node.Method, outcome string) {
		outcomes = append(outcomes, string(m)+":"+outcome)
	})

	_, err := ex.CreatePost(ctx, eve, "spam")
	assert.ErrorIs(t, err, social.ErrUnauthorized)
	_, err = ex.Register(ctx, alice, "")
	assert.ErrorIs(t, err, social.ErrEmptyInput)
	_, err = ex.Register(ctx, alice, "alice")
	require.NoError(t, err)
	_, err = ex.LikePost(ctx, alice, 3)
	assert.ErrorIs(t, err, social.ErrNotFound)

	n, _ := log.Len(ctx)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{
		"create_post:unauthorized",
		"register:empty_input",
		"register:ok",
		"like_post:not_found",
	}, outcomes)
}

func TestExecutor_journalFailureLeavesLedgerUnchanged(t *testing.T) {
	log := &failingLog{MemoryLog: txlog.NewMemory()}
	ex := node.NewExecutor(owner, log, zap.NewNop())

	var notified int
	ex.SetNotifier(social.NotifierFunc(func(social.Event) { notified++ }))

	_, err := ex.Register(ctx, alice, "alice")
	require.NoError(t, err)

	log.fail = true
	_, err = ex.CreatePost(ctx, alice, "hello")
	assert.ErrorIs(t, err, node.ErrJournal)
	assert.Zero(t, ex.PostCount())
	assert.Equal(t, 1, notified)

	log.fail = false
	r, err := ex.CreatePost(ctx, alice, "hello")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), r.PostID)
}

func TestExecutor_replayRebuildsState(t *testing.T) {
	log := txlog.NewMemory()
	ex := node.NewExecutor(owner, log, zap.NewNop())
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ex.SetClock(fixedClock(t0))

	_, _ = ex.Register(ctx, alice, "alice")
	_, _ = ex.Register(ctx, bob, "bob")
	_, _ = ex.CreatePost(ctx, alice, "one")
	_, _ = ex.CreatePost(ctx, bob, "two")
	_, _ = ex.LikePost(ctx, bob, 0)
	_, _ = ex.AddComment(ctx, alice, 1, "reply")
	_, _ = ex.CreatePost(ctx, eve, "rejected")

	restarted := node.NewExecutor(owner, log, zap.NewNop())
	var notified int
	restarted.SetNotifier(social.NotifierFunc(func(social.Event) { notified++ }))

	applied, err := restarted.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, applied)
	assert.Zero(t, notified, "replay must not re-emit notifications")

	for id := uint64(0); id < 2; id++ {
		want, _ := ex.GetPost(id)
		got, err := restarted.GetPost(id)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	c, err := restarted.GetComment(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "reply", c.Content)
	assert.Equal(t, t0, c.CreatedAt)

	u, err := restarted.GetUser(bob)
	require.NoError(t, err)
	assert.Equal(t, "bob", u.Username)

	// Notifications resume for new calls after replay.
	_, err = restarted.LikePost(ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, notified)
}

func TestExecutor_replayRejectsInconsistentJournal(t *testing.T) {
	log := txlog.NewMemory()
	// A post by an identity the journal never registered.
	_, err := log.Append(ctx, string(node.MethodCreatePost), alice.String(), node.Tx{
		Method:  node.MethodCreatePost,
		Caller:  alice,
		Content: "orphan",
	})
	require.NoError(t, err)

	ex := node.NewExecutor(owner, log, zap.NewNop())
	_, err = ex.Replay(ctx)
	assert.ErrorIs(t, err, social.ErrUnauthorized)
	assert.Zero(t, ex.PostCount())
}

func TestExecutor_concurrentCallsAreSerialised(t *testing.T) {
	log := txlog.NewMemory()
	ex := node.NewExecutor(owner, log, zap.NewNop())
	_, err := ex.Register(ctx, alice, "alice")
	require.NoError(t, err)
	_, err = ex.CreatePost(ctx, alice, "hot take")
	require.NoError(t, err)

	const workers, likes = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < likes; i++ {
				_, _ = ex.LikePost(ctx, alice, 0)
			}
		}()
	}
	wg.Wait()

	p, err := ex.GetPost(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(workers*likes), p.LikeCount)
	require.NoError(t, log.Verify(ctx))
}

func TestExecutor_stats(t *testing.T) {
	ex := node.NewExecutor(owner, txlog.NewMemory(), zap.NewNop())
	_, _ = ex.Register(ctx, alice, "alice")
	_, _ = ex.CreatePost(ctx, alice, "x")

	assert.Equal(t, node.Stats{Owner: owner, PostCount: 1, UserCount: 1}, ex.Stats())

	posts, total := ex.ListPosts(0, 10)
	assert.Len(t, posts, 1)
	assert.Equal(t, uint64(1), total)

	_, _, err := ex.ListComments(5, 0, 10)
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestExecutor_slowObserverDoesNotStallCalls(t *testing.T) {
	ex := node.NewExecutor(owner, txlog.NewMemory(), zap.NewNop())
	hub := notify.New(zap.NewNop())
	ex.SetNotifier(hub)

	release := make(chan struct{})
	require.NoError(t, hub.Subscribe(func(social.Event) { <-release }, social.EventPostLiked))
	defer hub.Close()
	defer close(release)

	_, err := ex.Register(ctx, alice, "alice")
	require.NoError(t, err)
	_, err = ex.CreatePost(ctx, alice, "hello")
	require.NoError(t, err)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := ex.LikePost(ctx, alice, 0)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(1), ex.PostCount())
	assert.Less(t, time.Since(start), 500*time.Millisecond, "calls waited on a blocked observer")

	p, err := ex.GetPost(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), p.LikeCount)
}

func TestExecutor_receiptCarriesSnapshot(t *testing.T) {
	ex := node.NewExecutor(owner, txlog.NewMemory(), zap.NewNop())

	r, err := ex.Register(ctx, alice, "alice")
	require.NoError(t, err)
	require.NotNil(t, r.User)
	assert.Equal(t, "alice", r.User.Username)

	r, err = ex.CreatePost(ctx, alice, "hello")
	require.NoError(t, err)
	require.NotNil(t, r.Post)
	assert.Equal(t, "hello", r.Post.Content)

	_, err = ex.LikePost(ctx, alice, 0)
	require.NoError(t, err)
	r, err = ex.LikePost(ctx, alice, 0)
	require.NoError(t, err)
	require.NotNil(t, r.Post)
	assert.Equal(t, uint64(2), r.Post.LikeCount)

	_, err = ex.LikePost(ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), r.Post.LikeCount, "snapshot is not affected by later calls")

	r, err = ex.AddComment(ctx, alice, 0, "first")
	require.NoError(t, err)
	require.NotNil(t, r.Comment)
	assert.Equal(t, "first", r.Comment.Content)
	assert.Nil(t, r.Post)
}
