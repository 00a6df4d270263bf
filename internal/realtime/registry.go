// Package realtime owns live websocket transports. The registry maps session
// ids to connections; nothing outside this package writes to or closes a conn.
package realtime

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrSessionNotFound = errors.New("session_not_found")

// Client wraps one websocket connection. Gorilla conns support a single
// concurrent writer, so every write goes through the client's mutex.
type Client struct {
	SessionID string

	mu   sync.Mutex
	conn *websocket.Conn
}

// Send JSON-encodes v onto the connection.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrSessionNotFound
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// Registry is the connection registry: session id -> live client.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Register mints a fresh session id for the connection and tracks it. The
// returned client is the only handle allowed to write to the conn.
func (r *Registry) Register(conn *websocket.Conn) *Client {
	client := &Client{
		SessionID: uuid.NewString(),
		conn:      conn,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.SessionID] = client
	return client
}

// Unregister drops the session and closes its connection. Unknown ids are a
// no-op: disconnect handling races with broadcast-failure reaping, and both
// may get here.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	client, ok := r.clients[sessionID]
	delete(r.clients, sessionID)
	r.mu.Unlock()

	if ok {
		client.close()
	}
}

// Get returns the live client for a session id.
func (r *Registry) Get(sessionID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[sessionID]
	return client, ok
}

// Send delivers v to the session's connection, or ErrSessionNotFound if it is
// no longer registered.
func (r *Registry) Send(sessionID string, v any) error {
	client, ok := r.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return client.Send(v)
}
