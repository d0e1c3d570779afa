package client

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/jmerrifield20/socialmedia/internal/identity"
)

// Client is the socialnode SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client

	// session state, guarded by mu
	mu          sync.Mutex
	token       string
	tokenExpiry time.Time // zero = token was set manually
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithSessionToken attaches a session token obtained earlier to every
// authenticated request.
func WithSessionToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// New creates a Client for the node at base, e.g. "http://localhost:8080".
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("node URL: %w", err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Token returns the current session token and its expiry.
func (c *Client) Token() (string, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.tokenExpiry
}

// Login signs the node's login challenge with key and stores the session
// token for later calls.
func (c *Client) Login(ctx context.Context, key *ecdsa.PrivateKey) error {
	addr := Address(key)

	var challenge struct {
		IssuedAt time.Time `json:"issued_at"`
		Message  string    `json:"message"`
	}
	q := url.Values{"address": {addr}}
	if err := c.call(ctx, http.MethodGet, "/session/challenge?"+q.Encode(), false, nil, &challenge); err != nil {
		return fmt.Errorf("login challenge: %w", err)
	}

	// The message is rebuilt locally so the key never signs text chosen by
	// the node beyond the issue time.
	msg := identity.LoginMessage(identity.AddressFromKey(key), challenge.IssuedAt)
	if msg != challenge.Message {
		return errors.New("login challenge: node returned an unexpected message")
	}
	sig, err := identity.SignLogin(key, msg)
	if err != nil {
		return err
	}

	var session struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	body := map[string]any{
		"address":   addr,
		"issued_at": challenge.IssuedAt,
		"signature": hexutil.Encode(sig),
	}
	if err := c.call(ctx, http.MethodPost, "/session", false, body, &session); err != nil {
		return fmt.Errorf("login: %w", err)
	}

	c.mu.Lock()
	c.token = session.Token
	c.tokenExpiry = session.ExpiresAt
	c.mu.Unlock()
	return nil
}

type mutation struct {
	Receipt Receipt `json:"receipt"`
}

// Register registers the signed-in account under username.
func (c *Client) Register(ctx context.Context, username string) (*Receipt, error) {
	var out mutation
	if err := c.call(ctx, http.MethodPost, "/users", true, map[string]string{"username": username}, &out); err != nil {
		return nil, err
	}
	return &out.Receipt, nil
}

// CreatePost publishes content; Receipt.PostID is the new post's id.
func (c *Client) CreatePost(ctx context.Context, content string) (*Receipt, error) {
	var out mutation
	if err := c.call(ctx, http.MethodPost, "/posts", true, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out.Receipt, nil
}

// LikePost adds one like to postID.
func (c *Client) LikePost(ctx context.Context, postID uint64) (*Receipt, error) {
	var out mutation
	if err := c.call(ctx, http.MethodPost, postPath(postID)+"/likes", true, nil, &out); err != nil {
		return nil, err
	}
	return &out.Receipt, nil
}

// AddComment comments on postID; Receipt.CommentID is the new comment's id.
func (c *Client) AddComment(ctx context.Context, postID uint64, content string) (*Receipt, error) {
	var out mutation
	if err := c.call(ctx, http.MethodPost, postPath(postID)+"/comments", true, map[string]string{"content": content}, &out); err != nil {
		return nil, err
	}
	return &out.Receipt, nil
}

// GetPost returns post postID.
func (c *Client) GetPost(ctx context.Context, postID uint64) (*Post, error) {
	var p Post
	if err := c.call(ctx, http.MethodGet, postPath(postID), false, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetComment returns comment commentID of postID.
func (c *Client) GetComment(ctx context.Context, postID, commentID uint64) (*Comment, error) {
	var cm Comment
	path := postPath(postID) + "/comments/" + strconv.FormatUint(commentID, 10)
	if err := c.call(ctx, http.MethodGet, path, false, nil, &cm); err != nil {
		return nil, err
	}
	return &cm, nil
}

// ListPosts returns up to limit posts from offset, and the total post count.
func (c *Client) ListPosts(ctx context.Context, offset, limit uint64) ([]Post, uint64, error) {
	var out struct {
		Posts []Post `json:"posts"`
		Total uint64 `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, "/posts?"+pageQuery(offset, limit), false, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Posts, out.Total, nil
}

// ListComments returns up to limit comments on postID from offset, and the
// post's comment count.
func (c *Client) ListComments(ctx context.Context, postID, offset, limit uint64) ([]Comment, uint64, error) {
	var out struct {
		Comments []Comment `json:"comments"`
		Total    uint64    `json:"total"`
	}
	if err := c.call(ctx, http.MethodGet, postPath(postID)+"/comments?"+pageQuery(offset, limit), false, nil, &out); err != nil {
		return nil, 0, err
	}
	return out.Comments, out.Total, nil
}

// Stats returns ledger-wide counters.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.call(ctx, http.MethodGet, "/stats", false, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PostCount returns the number of posts.
func (c *Client) PostCount(ctx context.Context) (uint64, error) {
	s, err := c.Stats(ctx)
	if err != nil {
		return 0, err
	}
	return s.PostCount, nil
}

// GetUser returns the account registered at address.
func (c *Client) GetUser(ctx context.Context, address string) (*User, error) {
	var u User
	if err := c.call(ctx, http.MethodGet, "/users/"+url.PathEscape(address), false, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Ledger returns the journal length and root hash.
func (c *Client) Ledger(ctx context.Context) (*LedgerOverview, error) {
	var o LedgerOverview
	if err := c.call(ctx, http.MethodGet, "/ledger", false, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// VerifyLedger asks the node to walk and check the whole journal.
func (c *Client) VerifyLedger(ctx context.Context) (*LedgerVerification, error) {
	var v LedgerVerification
	if err := c.call(ctx, http.MethodGet, "/ledger/verify", false, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func postPath(id uint64) string {
	return "/posts/" + strconv.FormatUint(id, 10)
}

func pageQuery(offset, limit uint64) string {
	q := url.Values{"offset": {strconv.FormatUint(offset, 10)}}
	if limit > 0 {
		q.Set("limit", strconv.FormatUint(limit, 10))
	}
	return q.Encode()
}

// call performs one API request under /api/v1. When auth is set the session
// token is attached, and a missing token fails before any request is sent.
func (c *Client) call(ctx context.Context, method, path string, auth bool, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api/v1"+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, _ := c.Token()
		if token == "" {
			return fmt.Errorf("%s %s: %w", method, path, ErrUnauthenticated)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if respBody != nil {
		if err := json.Unmarshal(data, respBody); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
