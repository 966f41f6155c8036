package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/gradpush/extrapoints/internal/models"
)

// EventHandler receives change notifications
type EventHandler func(models.Event)

// SubscribeEvents streams application change events until ctx is done or
// the connection drops. It returns nil when ctx is cancelled.
func (c *Client) SubscribeEvents(ctx context.Context, handler EventHandler) error {
	wsURL := c.URL("/events")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	if token := c.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.timeout,
		Jar:              c.httpClient.Jar,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode >= 400 {
			return &RequestError{Kind: KindHTTP, Method: http.MethodGet, Endpoint: "/events", StatusCode: resp.StatusCode, Message: "event subscription rejected"}
		}
		return transportError(ctx, http.MethodGet, "/events", err)
	}
	defer conn.Close()

	c.logger.Info("event feed connected", "url", wsURL)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("event feed closed: %w", err)
			}
			return &RequestError{Kind: KindNetwork, Method: http.MethodGet, Endpoint: "/events", Message: "event feed interrupted", Cause: err}
		}
		handler(event)
	}
}
