package chatclient

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-go-golems/streamchat/pkg/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Registry caches the backend's session list. Sessions are handed out as
// pointers into the cache; a list refresh replaces the slice wholesale.
type Registry struct {
	transport Transport

	mu        sync.RWMutex
	sessions  []*Session
	onRemoved func(id string)
}

func NewRegistry(t Transport) *Registry {
	return &Registry{transport: t}
}

// List refreshes the cache from the backend. Duplicate ids keep their first entry.
func (r *Registry) List(ctx context.Context) ([]*Session, error) {
	var fetched []*Session
	if err := r.transport.Request(ctx, http.MethodGet, pathSessions, nil, nil, &fetched); err != nil {
		return nil, errors.Wrap(err, "list sessions")
	}

	seen := make(map[string]struct{}, len(fetched))
	sessions := make([]*Session, 0, len(fetched))
	for _, s := range fetched {
		if s == nil || s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			log.Warn().Str("component", "registry").Str("session_id", s.ID).Msg("duplicate session id in list, ignoring")
			continue
		}
		seen[s.ID] = struct{}{}
		sessions = append(sessions, s)
	}

	r.mu.Lock()
	r.sessions = sessions
	r.mu.Unlock()

	log.Debug().Str("component", "registry").Int("count", len(sessions)).Msg("sessions refreshed")
	return r.Sessions(), nil
}

// Remove deletes a session on the backend and drops it from the cache. A 404 is
// an already-deleted session and counts as success. On failure the cache is untouched.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("remove session: empty id")
	}
	err := r.transport.Request(ctx, http.MethodDelete, sessionPath(id), nil, nil, nil)
	if err != nil && !transport.IsNotFound(err) {
		return errors.Wrapf(err, "delete session %s", id)
	}

	r.mu.Lock()
	kept := r.sessions[:0:0]
	for _, s := range r.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	r.sessions = kept
	hook := r.onRemoved
	r.mu.Unlock()

	if hook != nil {
		hook(id)
	}
	return nil
}

// FindByID is a cache lookup; it never hits the network.
func (r *Registry) FindByID(id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Sessions returns the cached order. The slice is a copy, the sessions are not.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Session(nil), r.sessions...)
}

// OnRemoved registers a hook that runs after a successful Remove.
func (r *Registry) OnRemoved(fn func(id string)) {
	r.mu.Lock()
	r.onRemoved = fn
	r.mu.Unlock()
}
