package lnmws

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// connection wraps a single gorilla/websocket dial and funnels every frame
// (data, ping, pong, close) into one channel so the event loop can select
// over it alongside outbound requests and the heartbeat timer.
type connection struct {
	ws     *websocket.Conn
	frames chan inbound
}

func dial(ctx context.Context, url string) (*connection, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &connection{ws: conn, frames: make(chan inbound, 32)}

	conn.SetPingHandler(func(payload string) error {
		c.frames <- inbound{ping: []byte(payload)}
		return nil
	})
	conn.SetPongHandler(func(string) error {
		c.frames <- inbound{pong: true}
		return nil
	})
	conn.SetCloseHandler(func(code int, text string) error {
		c.frames <- inbound{closed: true}
		return nil
	})

	go c.readLoop()
	return c, nil
}

func (c *connection) readLoop() {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.frames <- inbound{closed: true}
			} else {
				c.frames <- inbound{err: err}
			}
			return
		}
		c.frames <- classifyFrame(raw)
	}
}

func (c *connection) sendJSONRPC(req Request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal json-rpc request: %w", err)
	}
	return c.ws.WriteMessage(websocket.TextMessage, raw)
}

func (c *connection) sendPing() error {
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

func (c *connection) sendPong(payload []byte) error {
	return c.ws.WriteMessage(websocket.PongMessage, payload)
}

func (c *connection) sendClose() error {
	return c.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *connection) close() {
	c.ws.Close()
}
