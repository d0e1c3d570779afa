package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jmerrifield20/socialmedia/internal/handler"
	"github.com/jmerrifield20/socialmedia/internal/identity"
	"github.com/jmerrifield20/socialmedia/internal/node"
	"github.com/jmerrifield20/socialmedia/internal/notify"
	"github.com/jmerrifield20/socialmedia/internal/txlog"
	"github.com/jmerrifield20/socialmedia/pkg/client"
	"go.uber.org/zap"
)

// newNode starts a socialnode API over an in-memory journal.
func newNode(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	km := identity.NewKeyManager(t.TempDir())
	if err := km.LoadOrCreate(); err != nil {
		t.Fatal(err)
	}
	sessions := identity.NewSessionIssuer(km.Key(), "https://social.example.test", time.Hour)

	log := txlog.NewMemory()
	exec := node.NewExecutor("0x00000000000000000000000000000000000000F0", log, logger)
	hub := notify.New(logger)
	exec.SetNotifier(hub)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewSocialHandler(exec, sessions, logger).Register(v1)
	handler.NewSessionHandler(sessions, logger).Register(v1)
	handler.NewLedgerHandler(log, logger).Register(v1)
	handler.NewStreamHandler(hub, nil, logger).Register(v1)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv
}

func loggedIn(t *testing.T, srv *httptest.Server) *client.Client {
	t.Helper()
	key, err := client.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	c := client.MustNew(srv.URL)
	if err := c.Login(context.Background(), key); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return c
}

func TestClient_fullFlow(t *testing.T) {
	srv := newNode(t)
	ctx := context.Background()
	alice := loggedIn(t, srv)
	bob := loggedIn(t, srv)

	if tok, exp := alice.Token(); tok == "" || !exp.After(time.Now()) {
		t.Fatalf("Token() = %q, %v", tok, exp)
	}

	if _, err := alice.Register(ctx, "alice"); err != nil {
		t.Fatalf("Register alice: %v", err)
	}
	if _, err := bob.Register(ctx, "bob"); err != nil {
		t.Fatalf("Register bob: %v", err)
	}

	r, err := alice.CreatePost(ctx, "hello")
	if err != nil {
		t.Fatalf("CreatePost: %v", err)
	}
	if r.PostID != 0 || r.Method != "create_post" || r.TxHash == "" {
		t.Errorf("receipt = %+v", r)
	}
	if _, err := bob.LikePost(ctx, r.PostID); err != nil {
		t.Fatalf("LikePost: %v", err)
	}
	cr, err := bob.AddComment(ctx, r.PostID, "nice!")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	post, err := bob.GetPost(ctx, r.PostID)
	if err != nil {
		t.Fatalf("GetPost: %v", err)
	}
	if post.Content != "hello" || post.LikeCount != 1 || post.CommentCount != 1 {
		t.Errorf("post = %+v", post)
	}

	cm, err := alice.GetComment(ctx, r.PostID, cr.CommentID)
	if err != nil {
		t.Fatalf("GetComment: %v", err)
	}
	if cm.Content != "nice!" {
		t.Errorf("comment content = %q", cm.Content)
	}

	posts, total, err := alice.ListPosts(ctx, 0, 0)
	if err != nil || total != 1 || len(posts) != 1 {
		t.Errorf("ListPosts = %d posts, total %d, err %v", len(posts), total, err)
	}
	comments, total, err := alice.ListComments(ctx, r.PostID, 0, 10)
	if err != nil || total != 1 || len(comments) != 1 {
		t.Errorf("ListComments = %d comments, total %d, err %v", len(comments), total, err)
	}

	n, err := alice.PostCount(ctx)
	if err != nil || n != 1 {
		t.Errorf("PostCount = %d, %v", n, err)
	}
	stats, err := alice.Stats(ctx)
	if err != nil || stats.UserCount != 2 {
		t.Errorf("Stats = %+v, %v", stats, err)
	}

	overview, err := alice.Ledger(ctx)
	if err != nil {
		t.Fatalf("Ledger: %v", err)
	}
	if overview.Entries != 6 || overview.Root == "" {
		t.Errorf("ledger overview = %+v", overview)
	}
	v, err := alice.VerifyLedger(ctx)
	if err != nil || !v.Valid {
		t.Errorf("VerifyLedger = %+v, %v", v, err)
	}
}

func TestClient_errorsMatchSentinels(t *testing.T) {
	srv := newNode(t)
	ctx := context.Background()
	c := loggedIn(t, srv)

	if _, err := c.CreatePost(ctx, "before register"); !errors.Is(err, client.ErrUnauthorized) {
		t.Errorf("unregistered CreatePost: want ErrUnauthorized, got %v", err)
	}
	if _, err := c.Register(ctx, ""); !errors.Is(err, client.ErrEmptyInput) {
		t.Errorf("empty Register: want ErrEmptyInput, got %v", err)
	}
	if _, err := c.Register(ctx, "carol"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Register(ctx, "carol2"); !errors.Is(err, client.ErrAlreadyRegistered) {
		t.Errorf("second Register: want ErrAlreadyRegistered, got %v", err)
	}
	if _, err := c.LikePost(ctx, 42); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("LikePost missing: want ErrNotFound, got %v", err)
	}
	if _, err := c.GetPost(ctx, 42); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("GetPost missing: want ErrNotFound, got %v", err)
	}

	var apiErr *client.APIError
	_, err := c.GetPost(ctx, 42)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 404 {
		t.Errorf("want *APIError with 404, got %v", err)
	}
}

func TestClient_mutationWithoutSession(t *testing.T) {
	srv := newNode(t)
	c := client.MustNew(srv.URL)

	if _, err := c.CreatePost(context.Background(), "x"); !errors.Is(err, client.ErrUnauthenticated) {
		t.Errorf("want ErrUnauthenticated, got %v", err)
	}

	forged := client.MustNew(srv.URL, client.WithSessionToken("not-a-jwt"))
	if _, err := forged.CreatePost(context.Background(), "x"); !errors.Is(err, client.ErrUnauthenticated) {
		t.Errorf("forged token: want ErrUnauthenticated, got %v", err)
	}
}

func TestClient_watch(t *testing.T) {
	srv := newNode(t)
	c := loggedIn(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := c.Watch(ctx, "user.registered")
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if _, err := c.Register(ctx, "dave"); err != nil {
		t.Fatal(err)
	}

	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event channel closed early")
		}
		if ev.Kind != "user.registered" || ev.Username != "dave" {
			t.Errorf("event = %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("no event received")
	}

	cancel()
	for range events {
	}
}

func TestClient_watchEndsWhenServerCloses(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteJSON(client.Event{Kind: "post.liked", PostID: 3})
		conn.Close()
	}))
	defer srv.Close()

	baseline := runtime.NumGoroutine()
	events, err := client.MustNew(srv.URL).Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	var got []client.Event
	timeout := time.After(5 * time.Second)
loop:
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("event channel not closed after the server hung up")
		}
	}
	if len(got) != 1 || got[0].PostID != 3 {
		t.Errorf("events = %+v", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > baseline && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := runtime.NumGoroutine(); n > baseline {
		t.Errorf("goroutines: %d after close, %d before Watch", n, baseline)
	}
}

func TestClient_watchRejectsUnknownKind(t *testing.T) {
	srv := newNode(t)
	c := client.MustNew(srv.URL)

	_, err := c.Watch(context.Background(), "post.deleted")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Errorf("want 400 APIError, got %v", err)
	}
}

func TestNew_invalidURL(t *testing.T) {
	if _, err := client.New("not a url"); err == nil {
		t.Error("expected error for invalid node URL")
	}
}

func TestKeys_saveAndLoad(t *testing.T) {
	key, err := client.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	path := t.TempDir() + "/nested/key.hex"
	if err := client.SaveKey(path, key); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	loaded, err := client.LoadKey(path)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if client.Address(loaded) != client.Address(key) {
		t.Error("loaded key has a different address")
	}
}
