package ws

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/herocrab/HeroCrabPlugin-sub000/internal/transport"
)

type DialConfig struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int
}

// Client is the dialing side of a websocket connection. It reports
// EventConnect first, then id and packet events from the server.
type Client struct {
	events eventQueue
	peer   *Peer
}

// Dial connects to a crabserver websocket endpoint such as
// ws://127.0.0.1:7777/connect.
func Dial(ctx context.Context, url string, cfg DialConfig) (*Client, error) {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("ws: dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("ws: dial %s: %w", url, err)
	}

	c := &Client{peer: newPeer(conn, url, cfg.WriteTimeout, cfg.SendBuffer)}
	c.events.push(transport.Event{Kind: transport.EventConnect, Peer: c.peer})
	go c.peer.writePump()
	go c.peer.readPump(&c.events, true)
	return c, nil
}

// Peer returns the server end of the connection.
func (c *Client) Peer() *Peer {
	return c.peer
}

// Poll implements transport.Host.
func (c *Client) Poll() (transport.Event, bool) {
	return c.events.pop()
}

// Pending reports the number of undrained events.
func (c *Client) Pending() int {
	return c.events.len()
}

// Close disconnects from the server. EventDisconnect is still reported.
func (c *Client) Close() error {
	c.peer.Disconnect()
	return nil
}
