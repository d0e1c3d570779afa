package client

import "time"

// User mirrors a registered account.
type User struct {
	Username   string `json:"username"`
	Owner      string `json:"owner_address"`
	Registered bool   `json:"is_registered"`
}

// Post mirrors a post snapshot.
type Post struct {
	ID           uint64    `json:"post_id"`
	Author       string    `json:"author"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	LikeCount    uint64    `json:"like_count"`
	CommentCount uint64    `json:"comment_count"`
}

// Comment mirrors a comment snapshot.
type Comment struct {
	PostID    uint64    `json:"post_id"`
	ID        uint64    `json:"comment_id"`
	Commenter string    `json:"commenter"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Receipt describes an applied call.
type Receipt struct {
	Method    string    `json:"method"`
	TxIndex   int       `json:"tx_index"`
	TxHash    string    `json:"tx_hash"`
	Timestamp time.Time `json:"timestamp"`
	PostID    uint64    `json:"post_id"`
	CommentID uint64    `json:"comment_id"`
}

// Stats holds ledger-wide counters.
type Stats struct {
	Owner     string `json:"owner"`
	PostCount uint64 `json:"post_count"`
	UserCount int    `json:"user_count"`
}

// Event is one ledger notification.
type Event struct {
	Kind      string    `json:"kind"`
	Caller    string    `json:"caller"`
	Username  string    `json:"username,omitempty"`
	PostID    uint64    `json:"post_id"`
	CommentID uint64    `json:"comment_id"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LedgerOverview is the journal length and root hash.
type LedgerOverview struct {
	Entries int    `json:"entries"`
	Root    string `json:"root"`
}

// LedgerVerification is the result of a full journal integrity walk.
type LedgerVerification struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}
