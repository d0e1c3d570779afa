package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/socialmedia/internal/txlog"
	"go.uber.org/zap"
)

// LedgerHandler exposes read-only HTTP endpoints for the call journal.
type LedgerHandler struct {
	log    txlog.Log
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(log txlog.Log, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{log: log, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /ledger: returns the journal length and current root hash.
func (h *LedgerHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.log.Len(ctx)
	if err != nil {
		h.logger.Error("journal Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger"})
		return
	}

	root, err := h.log.Root(ctx)
	if err != nil {
		h.logger.Error("journal Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query ledger root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /ledger/verify: walks the full chain and reports integrity.
func (h *LedgerHandler) Verify(c *gin.Context) {
	if err := h.log.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("journal integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// GetEntry handles GET /ledger/entries/:idx: returns a single journal entry.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	entry, err := h.log.Get(c.Request.Context(), idx)
	if errors.Is(err, txlog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	if err != nil {
		h.logger.Error("journal Get", zap.Int("idx", idx), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read entry"})
		return
	}

	c.JSON(http.StatusOK, entry)
}
