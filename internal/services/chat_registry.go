package services

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrConnectionClosed = errors.New("connection released")
	ErrRegistryClosed   = errors.New("chat registry is shut down")
)

// ChatConn is what the registry needs from a live socket.
// *websocket.Conn satisfies it.
type ChatConn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// ChatClient is one admitted connection. Writes are serialized per client;
// once released, no further write reaches the socket.
type ChatClient struct {
	ID      string
	GroupID string
	UserID  string // authenticated user, empty for anonymous sockets

	conn    ChatConn
	limiter *rate.Limiter

	mu     sync.Mutex
	closed bool
}

// NewChatClient wraps conn. A nil limiter disables per-connection rate
// limiting.
func NewChatClient(groupID, userID string, conn ChatConn, limiter *rate.Limiter) *ChatClient {
	return &ChatClient{
		ID:      uuid.NewString(),
		GroupID: groupID,
		UserID:  userID,
		conn:    conn,
		limiter: limiter,
	}
}

// Allow consumes one token from the client's inbound rate limiter.
func (c *ChatClient) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

func (c *ChatClient) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnectionClosed
	}
	return c.conn.WriteJSON(v)
}

// markClosed waits for any in-flight write and reports whether this call
// did the transition.
func (c *ChatClient) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	return true
}

// ConnectionRegistry tracks live chat connections per group.
type ConnectionRegistry struct {
	mu       sync.RWMutex
	groups   map[string]map[*ChatClient]struct{}
	shutdown bool
	log      *zap.Logger
}

func NewConnectionRegistry(log *zap.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		groups: make(map[string]map[*ChatClient]struct{}),
		log:    log,
	}
}

// Admit adds c to its group. Admitting the same client twice is harmless.
func (r *ConnectionRegistry) Admit(c *ChatClient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return ErrRegistryClosed
	}
	set, ok := r.groups[c.GroupID]
	if !ok {
		set = make(map[*ChatClient]struct{})
		r.groups[c.GroupID] = set
	}
	set[c] = struct{}{}
	r.log.Debug("chat connection admitted",
		zap.String("group_id", c.GroupID), zap.String("conn_id", c.ID), zap.Int("group_size", len(set)))
	return nil
}

// Release removes c from its group and blocks until any write to c that is
// already in progress has finished. It is idempotent and does not close the
// socket; the owner of the socket does that.
func (r *ConnectionRegistry) Release(c *ChatClient) {
	r.mu.Lock()
	if set, ok := r.groups[c.GroupID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(r.groups, c.GroupID)
		}
	}
	r.mu.Unlock()

	if c.markClosed() {
		r.log.Debug("chat connection released", zap.String("group_id", c.GroupID), zap.String("conn_id", c.ID))
	}
}

// Broadcast sends payload to every connection admitted to groupID and
// returns how many received it. A failing connection is logged and skipped;
// it is released by its own read loop.
func (r *ConnectionRegistry) Broadcast(groupID string, payload interface{}) int {
	targets := r.snapshot(groupID)

	delivered := 0
	for _, c := range targets {
		if err := c.send(payload); err != nil {
			if !errors.Is(err, ErrConnectionClosed) {
				r.log.Debug("chat broadcast write failed",
					zap.String("group_id", groupID), zap.String("conn_id", c.ID), zap.Error(err))
			}
			continue
		}
		delivered++
	}
	return delivered
}

// Unicast sends payload to c alone. Errors are logged, never returned.
func (r *ConnectionRegistry) Unicast(c *ChatClient, payload interface{}) bool {
	if err := c.send(payload); err != nil {
		if !errors.Is(err, ErrConnectionClosed) {
			r.log.Debug("chat unicast write failed", zap.String("conn_id", c.ID), zap.Error(err))
		}
		return false
	}
	return true
}

// Count returns the number of live connections in groupID.
func (r *ConnectionRegistry) Count(groupID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[groupID])
}

// Groups returns the number of groups with at least one connection.
func (r *ConnectionRegistry) Groups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Shutdown stops admitting connections and closes every live socket, which
// ends their read loops.
func (r *ConnectionRegistry) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	var all []*ChatClient
	for _, set := range r.groups {
		for c := range set {
			all = append(all, c)
		}
	}
	r.groups = make(map[string]map[*ChatClient]struct{})
	r.mu.Unlock()

	for _, c := range all {
		c.markClosed()
		_ = c.conn.Close()
	}
	r.log.Info("chat registry shut down", zap.Int("closed_connections", len(all)))
}

func (r *ConnectionRegistry) snapshot(groupID string) []*ChatClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.groups[groupID]
	out := make([]*ChatClient, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
