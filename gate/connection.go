package gate

import (
	"sort"
	"sync"
	"time"
)

// Transport is the write side of one client connection. The websocket
// binding in gate/gateserver implements it; tests use an in-memory
// fake. Ping sends a transport-level liveness probe that a compliant
// client answers without application code; the acknowledgment comes
// back through Gate.OnPong.
type Transport interface {
	Send(data []byte) error
	Ping() error
	Close() error
}

// Connection is one live subscriber. It is owned exclusively by the
// Gate: subscriptions and liveness are only mutated through Gate
// methods, never by the transport side.
type Connection struct {
	id        string
	transport Transport

	mu            sync.Mutex
	subscriptions map[Channel]struct{}
	lastLiveness  time.Time
	connectedAt   time.Time
	closed        bool
}

func newConnection(id string, transport Transport) *Connection {
	now := time.Now()
	return &Connection{
		id:            id,
		transport:     transport,
		subscriptions: make(map[Channel]struct{}),
		lastLiveness:  now,
		connectedAt:   now,
	}
}

// ID returns the connection id
func (c *Connection) ID() string {
	return c.id
}

// send writes an encoded event to the transport. Returns an error on
// a closed connection or transport failure; the caller treats any
// error as proof the connection is dead.
func (c *Connection) send(data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	c.mu.Unlock()
	return c.transport.Send(data)
}

// ping sends a liveness probe over the transport
func (c *Connection) ping() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errConnClosed
	}
	c.mu.Unlock()
	return c.transport.Ping()
}

// close tears down the transport. Idempotent.
func (c *Connection) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.transport.Close()
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastLiveness = time.Now()
	c.mu.Unlock()
}

func (c *Connection) lastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastLiveness
}

// setSubscriptions applies requested channels, returning the subset
// that was valid and actually applied
func (c *Connection) setSubscriptions(channels []string, subscribe bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	applied := make([]string, 0, len(channels))
	for _, raw := range channels {
		ch := Channel(raw)
		if !ValidChannel(ch) {
			continue
		}
		if subscribe {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
		applied = append(applied, raw)
	}
	return applied
}

// subscribedTo reports whether the connection should receive a
// broadcast on the given channel. An empty channel targets every
// connection, and the wildcard subscription matches everything.
func (c *Connection) subscribedTo(channel Channel) bool {
	if channel == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscriptions[ChannelAll]; ok {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

// subscriptionList returns the current subscriptions as strings
func (c *Connection) subscriptionList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		out = append(out, string(ch))
	}
	sort.Strings(out)
	return out
}
