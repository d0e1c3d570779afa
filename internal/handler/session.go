package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/socialmedia/internal/identity"
	"go.uber.org/zap"
)

// DefaultLoginWindow is how far a login message's issue time may be from
// the node clock.
const DefaultLoginWindow = 5 * time.Minute

// SessionHandler exchanges a signed login message for a session token.
type SessionHandler struct {
	sessions *identity.SessionIssuer
	window   time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *identity.SessionIssuer, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		window:   DefaultLoginWindow,
		now:      time.Now,
		logger:   logger,
	}
}

// SetLoginWindow overrides DefaultLoginWindow.
func (h *SessionHandler) SetLoginWindow(d time.Duration) {
	if d > 0 {
		h.window = d
	}
}

// Register mounts the session routes on the given router group.
func (h *SessionHandler) Register(rg *gin.RouterGroup) {
	s := rg.Group("/session")
	{
		s.GET("/challenge", h.Challenge)
		s.POST("", h.CreateSession)
	}
}

// Challenge handles GET /session/challenge?address=: returns the message
// the wallet must sign.
func (h *SessionHandler) Challenge(c *gin.Context) {
	addr, err := identity.ParseAddress(c.Query("address"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	issuedAt := h.now().UTC().Truncate(time.Second)
	c.JSON(http.StatusOK, gin.H{
		"address":   addr,
		"issued_at": issuedAt,
		"message":   identity.LoginMessage(addr, issuedAt),
	})
}

type createSessionRequest struct {
	Address   string    `json:"address"   binding:"required"`
	IssuedAt  time.Time `json:"issued_at" binding:"required"`
	Signature string    `json:"signature" binding:"required"`
}

// CreateSession handles POST /session: verifies the signed login message
// and issues a session token for the recovered address.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	addr, err := identity.ParseAddress(req.Address)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature must be 0x-prefixed hex"})
		return
	}

	if err := identity.CheckIssuedAt(req.IssuedAt, h.now(), h.window); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	if err := identity.VerifyLogin(addr, identity.LoginMessage(addr, req.IssuedAt), sig); err != nil {
		if !errors.Is(err, identity.ErrBadSignature) {
			h.logger.Error("verify login", zap.Error(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	token, exp, err := h.sessions.Issue(addr)
	if err != nil {
		h.logger.Error("issue session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue session"})
		return
	}

	h.logger.Info("session opened", zap.String("address", addr.String()))
	c.JSON(http.StatusCreated, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_at": exp,
		"address":    addr,
	})
}
