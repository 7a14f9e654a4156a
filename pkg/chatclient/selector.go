package chatclient

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Selector tracks which session the message log belongs to.
type Selector struct {
	transport Transport
	log       *MessageLog

	mu     sync.RWMutex
	active *Session
}

func NewSelector(t Transport, l *MessageLog) *Selector {
	return &Selector{transport: t, log: l, active: &Session{}}
}

// CreateFresh activates a new pending session and resets the log to the welcome message.
func (s *Selector) CreateFresh() error {
	if err := s.log.Reset(); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = &Session{}
	s.mu.Unlock()
	return nil
}

// Select activates session and loads its messages. The selection sticks even
// when loading fails; the log then keeps its previous content.
func (s *Selector) Select(ctx context.Context, session *Session) error {
	if session.IsPending() {
		return errors.New("select: session has no id")
	}
	s.mu.Lock()
	s.active = session
	s.mu.Unlock()

	var messages []Message
	if err := s.transport.Request(ctx, http.MethodGet, sessionMessagesPath(session.ID), nil, nil, &messages); err != nil {
		log.Warn().Err(err).Str("component", "selector").Str("session_id", session.ID).Msg("failed to load session messages")
		return errors.Wrapf(err, "load messages for session %s", session.ID)
	}

	s.mu.RLock()
	stillActive := s.active == session
	s.mu.RUnlock()
	if !stillActive {
		// a newer selection won; its own load owns the log
		return nil
	}
	return s.log.Replace(messages)
}

func (s *Selector) Active() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// adopt replaces expected with found if expected is still the active session.
func (s *Selector) adopt(expected, found *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != expected {
		return false
	}
	s.active = found
	return true
}
