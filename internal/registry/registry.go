// Package registry implements the rendezvous table spec §3/§4.2 describes:
// a map from AgentId to a one-shot handoff slot that a waiting agent
// connection claims and a matching client connection fills exactly once.
package registry

import (
	"errors"
	"net"
	"sync"

	"github.com/liamsto/alaric/internal/ids"
)

// ErrAgentIdInUse is returned by Insert when an agent with the same id is
// already registered and waiting. Per spec §4.2 the first registration wins;
// the later one is rejected outright rather than displacing the first.
var ErrAgentIdInUse = errors.New("registry: agent id already registered")

// ErrAgentUnavailable is returned by Reserve when no agent is currently
// waiting under the requested id.
var ErrAgentUnavailable = errors.New("registry: agent unavailable")

// entry is one waiting agent's handoff slot. handoff carries exactly one
// net.Conn, sent by the client-side claimant and received by the
// agent-side waiter; it is never read from or written to more than once.
type entry struct {
	handoff chan net.Conn
}

// Registry tracks agents currently waiting for a client to be paired with.
// All mutation goes through a single mutex; the mutex is never held while
// blocking on I/O or on the handoff channel itself — only while touching the
// map.
type Registry struct {
	mu      sync.RWMutex
	waiting map[ids.AgentId]*entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{waiting: make(map[ids.AgentId]*entry)}
}

// Insert registers agentId as waiting and returns a handoff channel the
// caller should block on to receive the client connection it will be paired
// with. It fails with ErrAgentIdInUse if another agent is already waiting
// under the same id.
func (r *Registry) Insert(agentId ids.AgentId) (<-chan net.Conn, error) {
	r.mu.Lock()
	if _, exists := r.waiting[agentId]; exists {
		r.mu.Unlock()
		return nil, ErrAgentIdInUse
	}
	e := &entry{handoff: make(chan net.Conn, 1)}
	r.waiting[agentId] = e
	r.mu.Unlock()
	return e.handoff, nil
}

// Remove deregisters agentId if it is still waiting, e.g. because the agent
// connection dropped before any client claimed it. It is a no-op if the
// entry is already gone (claimed or never present).
func (r *Registry) Remove(agentId ids.AgentId) {
	r.mu.Lock()
	delete(r.waiting, agentId)
	r.mu.Unlock()
}

// Reservation is a claimed-but-not-yet-committed handoff slot. The server
// holds one between looking an agent up and finishing its own handshake
// with the claiming client, so that a client-side failure after the lookup
// (e.g. the accept response fails to send) can put the agent back rather
// than silently stranding it.
type Reservation struct {
	agentId ids.AgentId
	entry   *entry
}

// Reserve atomically removes the waiting entry for agentId so no other
// client can claim it concurrently, without yet handing off a connection.
// It returns ErrAgentUnavailable if no agent is currently waiting under
// that id.
func (r *Registry) Reserve(agentId ids.AgentId) (*Reservation, error) {
	r.mu.Lock()
	e, exists := r.waiting[agentId]
	if !exists {
		r.mu.Unlock()
		return nil, ErrAgentUnavailable
	}
	delete(r.waiting, agentId)
	r.mu.Unlock()
	return &Reservation{agentId: agentId, entry: e}, nil
}

// Commit hands conn to the waiting agent, completing the reservation.
func (res *Reservation) Commit(conn net.Conn) {
	res.entry.handoff <- conn
}

// Rollback puts the reservation's agent back into the registry as waiting,
// for use when the client side of the pairing fails before Commit — e.g.
// the accept response could not be sent to the client. If a new agent has
// since registered under the same id (possible because Reserve frees the id
// before Rollback is decided), that new registration is left alone rather
// than clobbered: the rolled-back agent's entry is not restored, so its
// connection receives no client until it ends and the agent registers again
// with a fresh Insert.
func (r *Registry) Rollback(res *Reservation) {
	r.mu.Lock()
	if _, exists := r.waiting[res.agentId]; !exists {
		r.waiting[res.agentId] = res.entry
	}
	r.mu.Unlock()
}

// Len reports the number of agents currently waiting. Intended for metrics
// and tests, not for control flow (it is stale the instant it is read).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.waiting)
}
