/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package bingo

import "sync"

// Client is the gateway's view of one connection: a buffered queue of
// outbound events. The transport drains Events and writes them to the wire.
type Client struct {
	id   string
	send chan Event

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, buffer int) *Client {
	return &Client{
		id:   id,
		send: make(chan Event, buffer),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Events is closed once the client is closed.
func (c *Client) Events() <-chan Event {
	return c.send
}

// deliver queues ev without blocking. It reports false if the client is
// closed or its buffer is full.
func (c *Client) deliver(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

// Close is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.send)
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
