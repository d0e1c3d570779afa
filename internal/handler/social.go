package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/socialmedia/internal/identity"
	"github.com/jmerrifield20/socialmedia/internal/node"
	"github.com/jmerrifield20/socialmedia/internal/social"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ledgerHost is the subset of node.Executor used by SocialHandler.
type ledgerHost interface {
	Register(ctx context.Context, caller social.Identity, username string) (*node.Receipt, error)
	CreatePost(ctx context.Context, caller social.Identity, content string) (*node.Receipt, error)
	LikePost(ctx context.Context, caller social.Identity, postID uint64) (*node.Receipt, error)
	AddComment(ctx context.Context, caller social.Identity, postID uint64, content string) (*node.Receipt, error)
	GetPost(postID uint64) (social.Post, error)
	GetComment(postID, commentID uint64) (social.Comment, error)
	GetUser(id social.Identity) (social.User, error)
	ListPosts(offset, limit uint64) ([]social.Post, uint64)
	ListComments(postID, offset, limit uint64) ([]social.Comment, uint64, error)
	Stats() node.Stats
}

// SocialHandler handles HTTP requests for users, posts, likes and comments.
// Mutation responses carry the record as the call left it, taken from the
// receipt rather than read back afterwards.
type SocialHandler struct {
	host     ledgerHost
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewSocialHandler creates a new SocialHandler.
func NewSocialHandler(host ledgerHost, sessions *identity.SessionIssuer, logger *zap.Logger) *SocialHandler {
	return &SocialHandler{host: host, sessions: sessions, logger: logger}
}

// Register mounts the social routes on the given router group.
func (h *SocialHandler) Register(rg *gin.RouterGroup) {
	auth := identity.RequireSession(h.sessions)

	rg.POST("/users", auth, h.RegisterUser)
	rg.GET("/users/:address", h.GetUser)

	posts := rg.Group("/posts")
	{
		posts.GET("", h.ListPosts)
		posts.POST("", auth, h.CreatePost)
		posts.GET("/:id", h.GetPost)
		posts.POST("/:id/likes", auth, h.LikePost)
		posts.GET("/:id/comments", h.ListComments)
		posts.POST("/:id/comments", auth, h.AddComment)
		posts.GET("/:id/comments/:cid", h.GetComment)
	}

	rg.GET("/stats", h.Stats)
}

type registerRequest struct {
	Username string `json:"username"`
}

type contentRequest struct {
	Content string `json:"content"`
}

// RegisterUser handles POST /users: registers the caller under a username.
func (h *SocialHandler) RegisterUser(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	caller := identity.CallerFromCtx(c)
	receipt, err := h.host.Register(c.Request.Context(), caller, req.Username)
	if err != nil {
		writeError(c, h.logger, "register", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"receipt": receipt, "user": receipt.User})
}

// GetUser handles GET /users/:address.
func (h *SocialHandler) GetUser(c *gin.Context) {
	addr, err := identity.ParseAddress(c.Param("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := h.host.GetUser(addr)
	if err != nil {
		writeError(c, h.logger, "get user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// CreatePost handles POST /posts.
func (h *SocialHandler) CreatePost(c *gin.Context) {
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.host.CreatePost(c.Request.Context(), identity.CallerFromCtx(c), req.Content)
	if err != nil {
		writeError(c, h.logger, "create post", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"receipt": receipt, "post": receipt.Post})
}

// GetPost handles GET /posts/:id.
func (h *SocialHandler) GetPost(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	post, err := h.host.GetPost(id)
	if err != nil {
		writeError(c, h.logger, "get post", err)
		return
	}
	c.JSON(http.StatusOK, post)
}

// ListPosts handles GET /posts?offset=&limit=.
func (h *SocialHandler) ListPosts(c *gin.Context) {
	offset, limit, ok := pageParams(c)
	if !ok {
		return
	}
	posts, total := h.host.ListPosts(offset, limit)
	if posts == nil {
		posts = []social.Post{}
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "total": total, "offset": offset, "limit": limit})
}

// LikePost handles POST /posts/:id/likes.
func (h *SocialHandler) LikePost(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	receipt, err := h.host.LikePost(c.Request.Context(), identity.CallerFromCtx(c), id)
	if err != nil {
		writeError(c, h.logger, "like post", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipt": receipt, "post": receipt.Post})
}

// AddComment handles POST /posts/:id/comments.
func (h *SocialHandler) AddComment(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req contentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	receipt, err := h.host.AddComment(c.Request.Context(), identity.CallerFromCtx(c), id, req.Content)
	if err != nil {
		writeError(c, h.logger, "add comment", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"receipt": receipt, "comment": receipt.Comment})
}

// GetComment handles GET /posts/:id/comments/:cid.
func (h *SocialHandler) GetComment(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	cid, ok := uintParam(c, "cid")
	if !ok {
		return
	}
	comment, err := h.host.GetComment(id, cid)
	if err != nil {
		writeError(c, h.logger, "get comment", err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

// ListComments handles GET /posts/:id/comments?offset=&limit=.
func (h *SocialHandler) ListComments(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	offset, limit, ok := pageParams(c)
	if !ok {
		return
	}
	comments, total, err := h.host.ListComments(id, offset, limit)
	if err != nil {
		writeError(c, h.logger, "list comments", err)
		return
	}
	if comments == nil {
		comments = []social.Comment{}
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments, "total": total, "offset": offset, "limit": limit})
}

// Stats handles GET /stats: post count, user count and the ledger owner.
func (h *SocialHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.host.Stats())
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
		return 0, false
	}
	return v, true
}

func pageParams(c *gin.Context) (offset, limit uint64, ok bool) {
	offset, limit = 0, defaultPageSize
	if s := c.Query("offset"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "offset must be a non-negative integer"})
			return 0, 0, false
		}
		offset = v
	}
	if s := c.Query("limit"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil || v == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return 0, 0, false
		}
		limit = min(v, maxPageSize)
	}
	return offset, limit, true
}
