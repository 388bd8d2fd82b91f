package keeper

import "sync"

// SessionRegistry tracks the set of currently active stream ids. Membership is
// the only state: the keeper never looks inside a session. Transitions between
// empty and non-empty are what drive the execution guarantee and the
// keep-alive scheduler, so the registry reports them through callbacks.
type SessionRegistry struct {
	mu  sync.Mutex
	ids map[string]struct{}

	// OnBecameActive fires once when the set goes empty -> non-empty, with
	// the count after the addition.
	OnBecameActive func(count int)
	// OnBecameIdle fires once when the set goes non-empty -> empty.
	OnBecameIdle func()
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{ids: map[string]struct{}{}}
}

// Add unions ids into the active set. Duplicates are a no-op, so repeated
// start commands with overlapping ids cannot trigger a second activation.
func (r *SessionRegistry) Add(ids []string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	wasEmpty := len(r.ids) == 0
	for _, id := range ids {
		if id == "" {
			continue
		}
		r.ids[id] = struct{}{}
	}
	count := len(r.ids)
	becameActive := wasEmpty && count > 0
	cb := r.OnBecameActive
	r.mu.Unlock()

	if becameActive && cb != nil {
		cb(count)
	}
	return count
}

// Remove deletes ids from the active set. Unknown ids are silently ignored.
func (r *SessionRegistry) Remove(ids []string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	wasEmpty := len(r.ids) == 0
	for _, id := range ids {
		delete(r.ids, id)
	}
	count := len(r.ids)
	becameIdle := !wasEmpty && count == 0
	cb := r.OnBecameIdle
	r.mu.Unlock()

	if becameIdle && cb != nil {
		cb()
	}
	return count
}

func (r *SessionRegistry) Count() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

func (r *SessionRegistry) Contains(id string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}
