// cmd/seed populates a running socialnode with demo accounts, posts, likes
// and comments for development. Everything goes through the public API, so
// the seeded calls are journaled like any other.
//
// Account keys are derived from fixed seeds, so the same addresses are used
// on every run. Re-running skips registration but adds another round of
// posts.
//
// Usage:
//
//	go run ./cmd/seed
//	SOCIAL_NODE_URL=http://localhost:8080 go run ./cmd/seed
package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jmerrifield20/socialmedia/pkg/client"
)

const defaultNode = "http://localhost:8080"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	nodeURL := os.Getenv("SOCIAL_NODE_URL")
	if nodeURL == "" {
		nodeURL = defaultNode
	}
	ctx := context.Background()

	accounts := make(map[string]*client.Client, len(seedUsers))
	for _, u := range seedUsers {
		c, err := seedAccount(ctx, nodeURL, u)
		if err != nil {
			return fmt.Errorf("seed user %s: %w", u.Username, err)
		}
		accounts[u.Username] = c
	}

	if err := seedPosts(ctx, accounts); err != nil {
		return fmt.Errorf("seed posts: %w", err)
	}

	fmt.Println("\nseed complete")
	return nil
}

// ── Users ────────────────────────────────────────────────────────────────────

type seedUser struct {
	Username string
	KeySeed  string
}

var seedUsers = []seedUser{
	{Username: "alice", KeySeed: "socialmedia/seed/alice"},
	{Username: "bob", KeySeed: "socialmedia/seed/bob"},
	{Username: "carol", KeySeed: "socialmedia/seed/carol"},
}

func seedKey(seed string) (*ecdsa.PrivateKey, error) {
	return crypto.ToECDSA(crypto.Keccak256([]byte(seed)))
}

func seedAccount(ctx context.Context, nodeURL string, u seedUser) (*client.Client, error) {
	key, err := seedKey(u.KeySeed)
	if err != nil {
		return nil, err
	}
	c, err := client.New(nodeURL)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx, key); err != nil {
		return nil, err
	}

	_, err = c.Register(ctx, u.Username)
	switch {
	case err == nil:
		fmt.Printf("  register %-6s %s\n", u.Username, client.Address(key))
	case errors.Is(err, client.ErrAlreadyRegistered):
		fmt.Printf("  skip     %-6s %s (already registered)\n", u.Username, client.Address(key))
	default:
		return nil, err
	}
	return c, nil
}

// ── Posts ────────────────────────────────────────────────────────────────────

type seedPost struct {
	Author   string
	Content  string
	LikedBy  []string
	Comments []seedComment
}

type seedComment struct {
	By      string
	Content string
}

var seedPostsList = []seedPost{
	{
		Author:  "alice",
		Content: "Hello from the first post on this node!",
		LikedBy: []string{"bob", "carol"},
		Comments: []seedComment{
			{By: "bob", Content: "Welcome aboard."},
			{By: "carol", Content: "Great to see this running."},
		},
	},
	{
		Author:  "bob",
		Content: "Every call here is journaled and hash-chained. Try `social ledger verify`.",
		LikedBy: []string{"alice"},
		Comments: []seedComment{
			{By: "alice", Content: "Verified on my side."},
		},
	},
	{
		Author:  "carol",
		Content: "Likes are not deduplicated, so this one may get a lot of them.",
		LikedBy: []string{"alice", "alice", "bob"},
	},
}

func seedPosts(ctx context.Context, accounts map[string]*client.Client) error {
	for _, p := range seedPostsList {
		r, err := accounts[p.Author].CreatePost(ctx, p.Content)
		if err != nil {
			return fmt.Errorf("post by %s: %w", p.Author, err)
		}
		fmt.Printf("  post     #%d by %s\n", r.PostID, p.Author)

		for _, liker := range p.LikedBy {
			if _, err := accounts[liker].LikePost(ctx, r.PostID); err != nil {
				return fmt.Errorf("like #%d by %s: %w", r.PostID, liker, err)
			}
		}
		for _, cm := range p.Comments {
			if _, err := accounts[cm.By].AddComment(ctx, r.PostID, cm.Content); err != nil {
				return fmt.Errorf("comment on #%d by %s: %w", r.PostID, cm.By, err)
			}
		}
	}
	return nil
}
