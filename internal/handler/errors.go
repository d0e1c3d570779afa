// Package handler exposes the social ledger over HTTP with gin.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/socialmedia/internal/social"
	"go.uber.org/zap"
)

// statusFor maps a ledger error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, social.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, social.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, social.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, social.ErrAlreadyRegistered):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as {"error": ..., "reason": ...}. Internal errors
// are logged and replaced by a generic message.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op, zap.Error(err))
		c.JSON(status, gin.H{"error": op + " failed", "reason": social.Reason(err)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "reason": social.Reason(err)})
}
