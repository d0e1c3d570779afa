package social

import "time"

// Identity is an opaque, comparable caller reference supplied by the host.
// The node always passes checksummed hex addresses, but nothing in this
// package depends on that format.
type Identity string

// String implements fmt.Stringer.
func (id Identity) String() string { return string(id) }

// User is a registered account. Once Registered is true it never reverts.
type User struct {
	Username   string   `json:"username"`
	Owner      Identity `json:"owner_address"`
	Registered bool     `json:"is_registered"`
}

// Post is a snapshot of a stored post. ID is its 0-based position in the
// post sequence and never changes.
type Post struct {
	ID           uint64    `json:"post_id"`
	Author       Identity  `json:"author"`
	Content      string    `json:"content"`
	CreatedAt    time.Time `json:"created_at"`
	LikeCount    uint64    `json:"like_count"`
	CommentCount uint64    `json:"comment_count"`
}

// Comment is a snapshot of a stored comment, addressed by (PostID, ID).
type Comment struct {
	PostID    uint64    `json:"post_id"`
	ID        uint64    `json:"comment_id"`
	Commenter Identity  `json:"commenter"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// post is the stored form. The comment count is not kept here; it is the
// length of comments.
type post struct {
	author    Identity
	content   string
	createdAt time.Time
	likes     uint64
	comments  []Comment
}

func (p *post) snapshot(id uint64) Post {
	return Post{
		ID:           id,
		Author:       p.author,
		Content:      p.content,
		CreatedAt:    p.createdAt,
		LikeCount:    p.likes,
		CommentCount: uint64(len(p.comments)),
	}
}
