package engine

import (
	"fmt"
	"slices"
	"sync"
)

// Registry owns the live sessions by id. It is the only structure shared
// across sessions; each session carries its own lock for state changes.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[int64]*session{}}
}

func (r *Registry) insert(s *session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.id]; ok {
		return fmt.Errorf("session %d already registered", s.id)
	}
	r.sessions[s.id] = s
	return nil
}

func (r *Registry) get(id int64) (*session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// all returns the sessions ordered by id.
func (r *Registry) all() []*session {
	r.mu.RLock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *session) int {
		switch {
		case a.id < b.id:
			return -1
		case a.id > b.id:
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

