package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched by APIError.Is. They follow the node's rejection reasons.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("caller not authorized")
	ErrEmptyInput        = errors.New("empty input")
	ErrAlreadyRegistered = errors.New("already registered")
	ErrUnauthenticated   = errors.New("session required")
	ErrRateLimited       = errors.New("rate limited")
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string `json:"error"`
	Reason     string `json:"reason"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("socialnode: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("socialnode: HTTP %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is match an APIError against the sentinels above.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Reason == "not_found" || (e.Reason == "" && e.StatusCode == http.StatusNotFound)
	case ErrUnauthorized:
		return e.Reason == "unauthorized" || (e.Reason == "" && e.StatusCode == http.StatusForbidden)
	case ErrEmptyInput:
		return e.Reason == "empty_input"
	case ErrAlreadyRegistered:
		return e.Reason == "already_registered" || (e.Reason == "" && e.StatusCode == http.StatusConflict)
	case ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}
