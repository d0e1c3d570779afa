package webhooks

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/socialmedia/internal/identity"
	"go.uber.org/zap"
)

// Handler handles HTTP requests for webhook subscriptions.
type Handler struct {
	svc      *Service
	sessions *identity.SessionIssuer
	logger   *zap.Logger
}

// NewHandler creates a new webhook Handler.
func NewHandler(svc *Service, sessions *identity.SessionIssuer, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, sessions: sessions, logger: logger}
}

// Register registers all webhook routes on the given router group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	wh := rg.Group("/webhooks")
	wh.Use(identity.RequireSession(h.sessions))
	{
		wh.POST("", h.CreateSubscription)
		wh.GET("", h.ListSubscriptions)
		wh.DELETE("/:id", h.DeleteSubscription)
	}
}

// CreateSubscription handles POST /webhooks: creates a new subscription.
func (h *Handler) CreateSubscription(c *gin.Context) {
	owner := identity.CallerFromCtx(c)

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, err := h.svc.Subscribe(c.Request.Context(), owner, &req)
	if errors.Is(err, ErrInvalidEvents) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("create webhook subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	// Return the secret once so the owner can store it.
	c.JSON(http.StatusCreated, gin.H{
		"subscription": sub,
		"secret":       sub.Secret,
		"note":         "Store the secret securely. It will not be shown again.",
	})
}

// ListSubscriptions handles GET /webhooks: lists the caller's subscriptions.
func (h *Handler) ListSubscriptions(c *gin.Context) {
	subs, err := h.svc.ListByOwner(c.Request.Context(), identity.CallerFromCtx(c))
	if err != nil {
		h.logger.Error("list webhook subscriptions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}

	c.JSON(http.StatusOK, gin.H{"subscriptions": subs, "count": len(subs)})
}

// DeleteSubscription handles DELETE /webhooks/:id: deletes a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	subID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription ID"})
		return
	}

	err = h.svc.Unsubscribe(c.Request.Context(), identity.CallerFromCtx(c), subID)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		h.logger.Error("delete webhook subscription", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
	}
}
