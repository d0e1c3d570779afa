package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
)

// Watch opens the node's event stream and delivers events until ctx ends or
// the connection drops; the channel is closed then. With no kinds every
// event is delivered.
func (c *Client) Watch(ctx context.Context, kinds ...string) (<-chan Event, error) {
	u, err := url.Parse(c.base + "/api/v1/events/stream")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	if len(kinds) > 0 {
		u.RawQuery = url.Values{"kinds": {strings.Join(kinds, ",")}}.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: "event stream: " + err.Error()}
		}
		return nil, fmt.Errorf("dial event stream: %w", err)
	}

	out := make(chan Event)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
