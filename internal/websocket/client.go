package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// Client is one browser tab or device listening for a user's events.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	userID int64
	send   chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
	}
}

// Run serves the connection until the peer goes away, ctx ends, or the hub
// drops the client. Clients never send application frames; CloseRead
// answers control frames and cancels the returned context on close.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)
	defer c.conn.CloseNow()

	ctx = c.conn.CloseRead(ctx)
	keepalive := time.NewTicker(pingInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				c.conn.Close(ws.StatusNormalClosure, "")
				return
			}
			if err := c.writeWithTimeout(ctx, func(ctx context.Context) error {
				return c.conn.Write(ctx, ws.MessageText, msg)
			}); err != nil {
				c.hub.logger.Debug("write failed", "user_id", c.userID, "error", err)
				return
			}
		case <-keepalive.C:
			if err := c.writeWithTimeout(ctx, c.conn.Ping); err != nil {
				c.hub.logger.Debug("ping failed", "user_id", c.userID, "error", err)
				return
			}
		}
	}
}

func (c *Client) writeWithTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		c.conn.Close(ws.StatusGoingAway, "")
		return err
	}
	return nil
}
