package social_test

import (
	"testing"
	"time"

	"github.com/jmerrifield20/socialmedia/internal/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	owner = social.Identity("0x00000000000000000000000000000000000000F0")
	alice = social.Identity("0x000000000000000000000000000000000000A11C")
	bob   = social.Identity("0x0000000000000000000000000000000000000B0B")
	eve   = social.Identity("0x0000000000000000000000000000000000000E7E")
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	events []social.Event
}

func (r *recorder) Notify(e social.Event) { r.events = append(r.events, e) }

func newLedger(t *testing.T) (*social.Ledger, *recorder) {
	t.Helper()
	rec := &recorder{}
	return social.New(owner, social.WithNotifier(rec)), rec
}

func TestExampleScenario(t *testing.T) {
	l, rec := newLedger(t)

	require.NoError(t, l.Register(alice, "alice"))

	id, err := l.CreatePost(alice, "hello", t0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	p, err := l.GetPost(0)
	require.NoError(t, err)
	assert.Equal(t, social.Post{ID: 0, Author: alice, Content: "hello", CreatedAt: t0}, p)

	require.NoError(t, l.Register(bob, "bob"))
	require.NoError(t, l.LikePost(bob, 0))
	require.NoError(t, l.LikePost(bob, 0))

	cid, err := l.AddComment(bob, 0, "nice!", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cid)

	p, err = l.GetPost(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.LikeCount)
	assert.Equal(t, uint64(1), p.CommentCount)

	_, err = l.GetComment(0, 1)
	assert.ErrorIs(t, err, social.ErrNotFound)
	assert.Equal(t, uint64(1), l.PostCount())

	kinds := make([]social.EventKind, 0, len(rec.events))
	for _, e := range rec.events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []social.EventKind{
		social.EventUserRegistered,
		social.EventPostCreated,
		social.EventUserRegistered,
		social.EventPostLiked,
		social.EventPostLiked,
		social.EventCommentAdded,
	}, kinds)
}

func TestRegister_twiceKeepsFirstUsername(t *testing.T) {
	l, rec := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))

	err := l.Register(alice, "mallory")
	assert.ErrorIs(t, err, social.ErrAlreadyRegistered)

	u, err := l.GetUser(alice)
	require.NoError(t, err)
	assert.Equal(t, social.User{Username: "alice", Owner: alice, Registered: true}, u)
	assert.Len(t, rec.events, 1)
}

func TestRegister_emptyUsername(t *testing.T) {
	l, rec := newLedger(t)
	assert.ErrorIs(t, l.Register(alice, ""), social.ErrEmptyInput)

	_, err := l.GetUser(alice)
	assert.ErrorIs(t, err, social.ErrNotFound)
	assert.Empty(t, rec.events)
}

func TestRegister_alreadyRegisteredCheckedFirst(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))
	assert.ErrorIs(t, l.Register(alice, ""), social.ErrAlreadyRegistered)
}

func TestPostIDsAreMonotonic(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))

	const n = 25
	for k := 1; k <= n; k++ {
		id, err := l.CreatePost(alice, "post", t0)
		require.NoError(t, err)
		assert.Equal(t, uint64(k-1), id)
	}
	assert.Equal(t, uint64(n), l.PostCount())
}

func TestBoundsEnforcement(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))
	_, err := l.CreatePost(alice, "only", t0)
	require.NoError(t, err)

	for _, id := range []uint64{1, 2, 1 << 40} {
		_, err := l.GetPost(id)
		assert.ErrorIs(t, err, social.ErrNotFound, "GetPost(%d)", id)
		assert.ErrorIs(t, l.LikePost(alice, id), social.ErrNotFound, "LikePost(%d)", id)
		_, err = l.AddComment(alice, id, "x", t0)
		assert.ErrorIs(t, err, social.ErrNotFound, "AddComment(%d)", id)
		_, err = l.GetComment(id, 0)
		assert.ErrorIs(t, err, social.ErrNotFound, "GetComment(%d, 0)", id)
	}

	_, err = l.GetComment(0, 0)
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestUnregisteredCallerIsRejected(t *testing.T) {
	l, rec := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))
	_, err := l.CreatePost(alice, "hello", t0)
	require.NoError(t, err)
	before, _ := l.GetPost(0)
	eventsBefore := len(rec.events)

	_, err = l.CreatePost(eve, "spam", t0)
	assert.ErrorIs(t, err, social.ErrUnauthorized)
	assert.ErrorIs(t, l.LikePost(eve, 0), social.ErrUnauthorized)
	_, err = l.AddComment(eve, 0, "spam", t0)
	assert.ErrorIs(t, err, social.ErrUnauthorized)

	after, _ := l.GetPost(0)
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(1), l.PostCount())
	assert.Len(t, rec.events, eventsBefore)
}

func TestUnauthorizedCheckedBeforeBounds(t *testing.T) {
	l, _ := newLedger(t)
	assert.ErrorIs(t, l.LikePost(eve, 99), social.ErrUnauthorized)
	_, err := l.AddComment(eve, 99, "", t0)
	assert.ErrorIs(t, err, social.ErrUnauthorized)
}

func TestLikesAccumulateWithoutDedup(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))
	require.NoError(t, l.Register(bob, "bob"))
	_, err := l.CreatePost(alice, "hello", t0)
	require.NoError(t, err)

	const k = 7
	for i := 0; i < k; i++ {
		caller := alice
		if i%2 == 1 {
			caller = bob
		}
		require.NoError(t, l.LikePost(caller, 0))
	}
	p, err := l.GetPost(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(k), p.LikeCount)
}

func TestCommentCountConsistency(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))
	_, err := l.CreatePost(alice, "first", t0)
	require.NoError(t, err)
	_, err = l.CreatePost(alice, "second", t0)
	require.NoError(t, err)

	const k = 5
	for i := 0; i < k; i++ {
		id, err := l.AddComment(alice, 1, "c", t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), id)
	}

	p, err := l.GetPost(1)
	require.NoError(t, err)
	n, err := l.CommentCount(1)
	require.NoError(t, err)
	all, err := l.ListComments(1, 0, 100)
	require.NoError(t, err)

	assert.Equal(t, uint64(k), p.CommentCount)
	assert.Equal(t, uint64(k), n)
	assert.Len(t, all, k)

	for i := uint64(0); i < k; i++ {
		c, err := l.GetComment(1, i)
		require.NoError(t, err)
		assert.Equal(t, alice, c.Commenter)
		assert.Equal(t, i, c.ID)
	}
	_, err = l.GetComment(1, k)
	assert.ErrorIs(t, err, social.ErrNotFound)

	first, err := l.GetPost(0)
	require.NoError(t, err)
	assert.Zero(t, first.CommentCount)
}

func TestEmptyContentIsRejected(t *testing.T) {
	l, rec := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))

	_, err := l.CreatePost(alice, "", t0)
	assert.ErrorIs(t, err, social.ErrEmptyInput)
	assert.Zero(t, l.PostCount())

	_, err = l.CreatePost(alice, "hello", t0)
	require.NoError(t, err)
	_, err = l.AddComment(alice, 0, "", t0)
	assert.ErrorIs(t, err, social.ErrEmptyInput)

	n, err := l.CommentCount(0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, rec.events, 2)
}

func TestEventFields(t *testing.T) {
	l, rec := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))
	_, err := l.CreatePost(alice, "hello", t0)
	require.NoError(t, err)
	require.NoError(t, l.LikePost(alice, 0))
	_, err = l.AddComment(alice, 0, "self-reply", t0.Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, rec.events, 4)
	assert.Equal(t, social.Event{Kind: social.EventUserRegistered, Caller: alice, Username: "alice"}, rec.events[0])
	assert.Equal(t, social.Event{Kind: social.EventPostCreated, Caller: alice, Content: "hello", Timestamp: t0}, rec.events[1])
	assert.Equal(t, social.Event{Kind: social.EventPostLiked, Caller: alice}, rec.events[2])
	assert.Equal(t, social.Event{
		Kind:      social.EventCommentAdded,
		Caller:    alice,
		Content:   "self-reply",
		Timestamp: t0.Add(time.Hour),
	}, rec.events[3])
}

func TestOwnerIsFixed(t *testing.T) {
	l := social.New(owner)
	assert.Equal(t, owner, l.Owner())
	assert.True(t, l.IsOwner(owner))
	assert.False(t, l.IsOwner(alice))

	// The owner has no implicit registration.
	_, err := l.CreatePost(owner, "hi", t0)
	assert.ErrorIs(t, err, social.ErrUnauthorized)
}

func TestListPostsWindow(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))
	for i := 0; i < 5; i++ {
		_, err := l.CreatePost(alice, "p", t0)
		require.NoError(t, err)
	}

	page := l.ListPosts(1, 2)
	require.Len(t, page, 2)
	assert.Equal(t, uint64(1), page[0].ID)
	assert.Equal(t, uint64(2), page[1].ID)

	assert.Len(t, l.ListPosts(3, 100), 2)
	assert.Empty(t, l.ListPosts(5, 10))
	assert.Empty(t, l.ListPosts(0, 0))

	_, err := l.ListComments(9, 0, 10)
	assert.ErrorIs(t, err, social.ErrNotFound)
}

func TestSnapshotsAreCopies(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Register(alice, "alice"))
	_, err := l.CreatePost(alice, "hello", t0)
	require.NoError(t, err)
	_, err = l.AddComment(alice, 0, "one", t0)
	require.NoError(t, err)

	cs, err := l.ListComments(0, 0, 10)
	require.NoError(t, err)
	cs[0].Content = "tampered"

	c, err := l.GetComment(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "one", c.Content)
}

func TestReason(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.CreatePost(eve, "x", t0)
	assert.Equal(t, "unauthorized", social.Reason(err))
	assert.True(t, social.IsRejection(err))
	assert.Equal(t, "internal", social.Reason(assert.AnError))
	assert.False(t, social.IsRejection(nil))
}
