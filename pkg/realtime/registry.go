// Package realtime implements best-effort fan-out of notifications to live
// client connections, together with the registry that owns those
// connections and the inbound frame protocol.
package realtime

import (
	"context"
	"sync"

	"github.com/kart-io/notifyrelay/pkg/utils/idgen"
)

// Conn is an open, writable client endpoint.
type Conn interface {
	// Ready reports whether the endpoint currently accepts writes.
	Ready() bool
	// Write sends one complete frame.
	Write(ctx context.Context, data []byte) error
	// Close releases the endpoint. Calling Close more than once is allowed.
	Close() error
}

// Registry maps client ids to their live connections. It is safe for
// concurrent use.
type Registry struct {
	conns map[string]Conn
	ids   idgen.Generator
	mutex sync.RWMutex
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIDGenerator replaces the client id generator.
func WithIDGenerator(g idgen.Generator) RegistryOption {
	return func(r *Registry) {
		if g != nil {
			r.ids = g
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		conns: make(map[string]Conn),
		ids:   idgen.NewSimpleGenerator(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register stores conn under a fresh client id and returns the id.
func (r *Registry) Register(conn Conn) string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	id := r.ids.Generate()
	for _, taken := r.conns[id]; taken; _, taken = r.conns[id] {
		id = r.ids.Generate()
	}
	r.conns[id] = conn
	return id
}

// Unregister removes clientID. Unknown ids are ignored.
func (r *Registry) Unregister(clientID string) {
	r.Remove(clientID)
}

// Remove deletes clientID and returns the connection it held, if any.
func (r *Registry) Remove(clientID string) (Conn, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	conn, ok := r.conns[clientID]
	if ok {
		delete(r.conns, clientID)
	}
	return conn, ok
}

// Get returns the connection registered under clientID.
func (r *Registry) Get(clientID string) (Conn, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	conn, ok := r.conns[clientID]
	return conn, ok
}

type entry struct {
	id   string
	conn Conn
}

func (r *Registry) snapshot() []entry {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	entries := make([]entry, 0, len(r.conns))
	for id, conn := range r.conns {
		entries = append(entries, entry{id: id, conn: conn})
	}
	return entries
}

// ForEach calls fn for every connection registered when ForEach was called.
// fn runs without the registry lock held, so it may call back into the
// registry. Connections added during the walk are not visited.
func (r *Registry) ForEach(fn func(clientID string, conn Conn)) {
	for _, e := range r.snapshot() {
		fn(e.id, e.conn)
	}
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.conns)
}
