package session

import (
	"context"
	"log"
	"sync"

	"github.com/ezrec/goosea/node"
	"github.com/google/uuid"
)

type sessionKey struct{}

// Registry tracks the open sessions, and resolves the session a call is
// bound to. It is the node.Accessor of trees shared between sessions.
type Registry struct {
	Verbose bool // If set, logs session open and close.

	mu       sync.RWMutex
	sessions map[uuid.UUID]*ExecutionContext
}

var _ node.Accessor = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() (reg *Registry) {
	reg = &Registry{
		sessions: make(map[uuid.UUID]*ExecutionContext),
	}

	return
}

// Open registers a new session for model.
func (reg *Registry) Open(model node.Model) (ec *ExecutionContext) {
	ec = NewExecutionContext(model)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	if reg.sessions == nil {
		reg.sessions = make(map[uuid.UUID]*ExecutionContext)
	}
	reg.sessions[ec.id] = ec

	if reg.Verbose {
		log.Printf("session: open %v", ec.id)
	}

	return
}

// Close ends the session. Calls still bound to it fail from then on.
func (reg *Registry) Close(ec *ExecutionContext) (err error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.sessions[ec.id]; !ok {
		err = ErrSessionUnknown
		return
	}
	delete(reg.sessions, ec.id)

	if reg.Verbose {
		log.Printf("session: close %v", ec.id)
	}

	return
}

// Len returns the number of open sessions.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.sessions)
}

// Get returns the open session with id.
func (reg *Registry) Get(id uuid.UUID) (ec *ExecutionContext, ok bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	ec, ok = reg.sessions[id]
	return
}

// Bind returns a copy of ctx bound to the session ec.
func (reg *Registry) Bind(ctx context.Context, ec *ExecutionContext) context.Context {
	return context.WithValue(ctx, sessionKey{}, ec.id)
}

// Bound returns the id of the session ctx is bound to.
func Bound(ctx context.Context) (id uuid.UUID, ok bool) {
	id, ok = ctx.Value(sessionKey{}).(uuid.UUID)
	return
}

// Lookup resolves the session ctx is bound to. It fails with
// ErrSessionNotBound when ctx is not bound, or its session is closed.
func (reg *Registry) Lookup(ctx context.Context) (ec node.Context, err error) {
	id, ok := Bound(ctx)
	if !ok {
		err = ErrSessionNotBound
		return
	}

	found, ok := reg.Get(id)
	if !ok {
		err = ErrSessionNotBound
		return
	}

	ec = found
	return
}
