package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jmerrifield20/socialmedia/internal/social"
	"go.uber.org/zap"
)

const (
	streamBuffer     = 64
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// eventSource is the subset of notify.Hub used by StreamHandler.
type eventSource interface {
	Watch(buffer int, kinds ...social.EventKind) (<-chan social.Event, func(), error)
}

// StreamHandler pushes ledger notifications to websocket clients.
type StreamHandler struct {
	events   eventSource
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a new StreamHandler. checkOrigin may be nil to
// accept any origin.
func NewStreamHandler(events eventSource, checkOrigin func(*http.Request) bool, logger *zap.Logger) *StreamHandler {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &StreamHandler{
		events: events,
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Register mounts the stream route on the given router group.
func (h *StreamHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/events/stream", h.Stream)
}

// Stream handles GET /events/stream?kinds=post.created,comment.added.
// Each notification is sent as one JSON text message. Without kinds every
// event is sent.
func (h *StreamHandler) Stream(c *gin.Context) {
	var kinds []social.EventKind
	if q := c.Query("kinds"); q != "" {
		for _, k := range strings.Split(q, ",") {
			kind := social.EventKind(strings.TrimSpace(k))
			if !kind.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "unknown event kind: " + string(kind)})
				return
			}
			kinds = append(kinds, kind)
		}
	}

	events, cancel, err := h.events.Watch(streamBuffer, kinds...)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The reader only services control frames; it ends on client close.
	done := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "node shutting down"),
					time.Now().Add(streamWriteWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
