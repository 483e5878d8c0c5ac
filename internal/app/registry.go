package app

import (
	"sync"

	"github.com/dkeye/voicestream/internal/core"
	"github.com/dkeye/voicestream/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connection is one attached client. The transport handle and session never change;
// role, stream and media are guarded by mu.
type Connection struct {
	id      domain.ConnectionID
	signal  core.SignalConnection
	session *core.Session

	// task serializes everything that runs on behalf of this connection.
	task sync.Mutex

	mu       sync.RWMutex
	role     domain.Role
	streamID domain.StreamID
	media    core.MediaConnection
}

func (c *Connection) ID() domain.ConnectionID       { return c.id }
func (c *Connection) Signal() core.SignalConnection { return c.signal }
func (c *Connection) Session() *core.Session        { return c.session }

// Do runs fn as this connection's single logical task.
func (c *Connection) Do(fn func()) {
	c.task.Lock()
	defer c.task.Unlock()
	fn()
}

func (c *Connection) Role() domain.Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

// AssignRole sets the role once. Asking again for the same role succeeds.
func (c *Connection) AssignRole(role domain.Role) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == domain.RoleUnassigned {
		c.role = role
		return true
	}
	return c.role == role
}

func (c *Connection) StreamID() domain.StreamID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.streamID
}

func (c *Connection) BindStream(id domain.StreamID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamID = id
}

func (c *Connection) Media() core.MediaConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.media
}

// SetMedia replaces the media handle and returns the previous one.
func (c *Connection) SetMedia(mc core.MediaConnection) core.MediaConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.media
	c.media = mc
	return prev
}

// ConnSnapshot is the last known state of a detached connection.
type ConnSnapshot struct {
	ID       domain.ConnectionID
	Role     domain.Role
	StreamID domain.StreamID
	Media    core.MediaConnection
}

func (c *Connection) snapshot() ConnSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnSnapshot{ID: c.id, Role: c.role, StreamID: c.streamID, Media: c.media}
}

// Registry owns the live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnectionID]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnectionID]*Connection),
	}
}

// Attach registers a new Unassigned/Idle connection that talks through sig.
func (r *Registry) Attach(sig core.SignalConnection) domain.ConnectionID {
	c := &Connection{
		id:      domain.NewConnectionID(),
		signal:  sig,
		session: core.NewSession(),
	}
	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("cid", string(c.id)).Msg("attached connection")
	return c.id
}

// Get returns the connection or false. Callers treat false as a no-op: disconnects race with messages.
func (r *Registry) Get(id domain.ConnectionID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

// Detach removes the connection and returns its last state. Detaching twice is a no-op.
func (r *Registry) Detach(id domain.ConnectionID) (ConnSnapshot, bool) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	r.mu.Unlock()
	if !ok {
		return ConnSnapshot{}, false
	}
	snap := c.snapshot()
	log.Info().Str("module", "app.registry").Str("cid", string(id)).Str("role", snap.Role.String()).Msg("detached connection")
	return snap, true
}

// AllIDs returns a copy of the attached ids.
func (r *Registry) AllIDs() []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConnectionID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
