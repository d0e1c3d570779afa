package node

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmerrifield20/socialmedia/internal/social"
)

// Method names a mutating ledger entry point. It is the txlog Entry.Method.
type Method string

const (
	MethodRegister   Method = "register"
	MethodCreatePost Method = "create_post"
	MethodLikePost   Method = "like_post"
	MethodAddComment Method = "add_comment"
)

// Tx is one journaled call: everything needed to re-apply it to an empty
// ledger deterministically.
type Tx struct {
	Method    Method          `json:"method"`
	Caller    social.Identity `json:"caller"`
	Timestamp time.Time       `json:"timestamp"`
	Username  string          `json:"username,omitempty"`
	Content   string          `json:"content,omitempty"`
	PostID    uint64          `json:"post_id,omitempty"`
}

// decodeTx parses a journaled payload.
func decodeTx(payload []byte) (Tx, error) {
	var tx Tx
	if err := json.Unmarshal(payload, &tx); err != nil {
		return Tx{}, fmt.Errorf("decode tx: %w", err)
	}
	return tx, nil
}

// check validates tx against the current ledger state without applying it.
func check(l *social.Ledger, tx Tx) error {
	switch tx.Method {
	case MethodRegister:
		return l.CheckRegister(tx.Caller, tx.Username)
	case MethodCreatePost:
		return l.CheckCreatePost(tx.Caller, tx.Content)
	case MethodLikePost:
		return l.CheckLikePost(tx.Caller, tx.PostID)
	case MethodAddComment:
		return l.CheckAddComment(tx.Caller, tx.PostID, tx.Content)
	default:
		return fmt.Errorf("unknown method %q", tx.Method)
	}
}

// apply executes tx against the ledger and fills in the ids it produced.
func apply(l *social.Ledger, tx Tx, r *Receipt) error {
	var err error
	switch tx.Method {
	case MethodRegister:
		err = l.Register(tx.Caller, tx.Username)
	case MethodCreatePost:
		r.PostID, err = l.CreatePost(tx.Caller, tx.Content, tx.Timestamp)
	case MethodLikePost:
		r.PostID = tx.PostID
		err = l.LikePost(tx.Caller, tx.PostID)
	case MethodAddComment:
		r.PostID = tx.PostID
		r.CommentID, err = l.AddComment(tx.Caller, tx.PostID, tx.Content, tx.Timestamp)
	default:
		err = fmt.Errorf("unknown method %q", tx.Method)
	}
	return err
}

// Receipt describes a successfully applied call.
type Receipt struct {
	Method    Method    `json:"method"`
	TxIndex   int       `json:"tx_index"`
	TxHash    string    `json:"tx_hash"`
	Timestamp time.Time `json:"timestamp"`
	PostID    uint64    `json:"post_id"`
	CommentID uint64    `json:"comment_id"`

	// State the call left behind, read under the same lock as the call.
	// Exactly one is set: User for register, Comment for add_comment, Post
	// otherwise.
	User    *social.User    `json:"-"`
	Post    *social.Post    `json:"-"`
	Comment *social.Comment `json:"-"`
}

// snapshot fills in the record the call produced or changed.
func (r *Receipt) snapshot(l *social.Ledger, tx Tx) {
	switch tx.Method {
	case MethodRegister:
		if u, err := l.GetUser(tx.Caller); err == nil {
			r.User = &u
		}
	case MethodCreatePost, MethodLikePost:
		if p, err := l.GetPost(r.PostID); err == nil {
			r.Post = &p
		}
	case MethodAddComment:
		if c, err := l.GetComment(r.PostID, r.CommentID); err == nil {
			r.Comment = &c
		}
	}
}
