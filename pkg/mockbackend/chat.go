package mockbackend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type chatResponse struct {
	Message   chatclient.Message `json:"message"`
	SessionID string             `json:"session_id"`
}

var errSessionNotFound = errors.New("session not found")

// openExchange appends the user message, creating the session when the request
// carries no id.
func (s *Server) openExchange(u *user, req ChatRequest) (*session, error) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := s.newMessageLocked(chatclient.RoleUser, req.Message, now)
	if req.SessionID == nil || *req.SessionID == "" {
		model := req.Model
		if model == "" {
			model = chatclient.DefaultModel
		}
		sess := &session{
			Session: chatclient.Session{
				ID:        uuid.NewString(),
				Title:     chatclient.TitleFor(req.Message),
				Model:     model,
				CreatedAt: chatclient.NewTimestamp(now),
				UpdatedAt: chatclient.NewTimestamp(now),
			},
			userID:   u.id,
			messages: []chatclient.Message{msg},
			touched:  s.messageID,
		}
		s.sessions[sess.ID] = sess
		return sess, nil
	}

	sess, ok := s.sessions[*req.SessionID]
	if !ok || sess.userID != u.id {
		return nil, errSessionNotFound
	}
	sess.messages = append(sess.messages, msg)
	return sess, nil
}

func (s *Server) closeExchange(sess *session, reply string) chatclient.Message {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.newMessageLocked(chatclient.RoleAssistant, reply, now)
	sess.messages = append(sess.messages, msg)
	sess.UpdatedAt = chatclient.NewTimestamp(now)
	sess.touched = s.messageID
	return msg
}

func (s *Server) newMessageLocked(role chatclient.Role, content string, at time.Time) chatclient.Message {
	s.messageID++
	return chatclient.Message{
		ID:        fmt.Sprintf("msg-%d", s.messageID),
		Role:      role,
		Content:   content,
		Timestamp: chatclient.NewTimestamp(at),
	}
}

func decodeChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid body")
		return req, false
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return req, false
	}
	return req, true
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeChatRequest(w, r)
	if !ok {
		return
	}
	sess, err := s.openExchange(currentUser(r), req)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	reply, err := s.responder(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if reply == "" {
		reply = noResponse
	}
	msg := s.closeExchange(sess, reply)
	writeJSON(w, http.StatusOK, chatResponse{Message: msg, SessionID: sess.ID})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	u := currentUser(r)
	s.mu.Lock()
	owned := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if sess.userID == u.id {
			owned = append(owned, sess)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		a, b := owned[i], owned[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt.Time) {
			return a.UpdatedAt.After(b.UpdatedAt.Time)
		}
		return a.touched > b.touched
	})
	if s.listLimit > 0 && len(owned) > s.listLimit {
		owned = owned[:s.listLimit]
	}
	out := make([]chatclient.Session, 0, len(owned))
	for _, sess := range owned {
		item := sess.Session
		item.MessageCount = len(sess.messages)
		out = append(out, item)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookup(r *http.Request) (*session, bool) {
	id := chi.URLParam(r, "sessionID")
	u := currentUser(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.userID != u.id {
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSessionMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound.Error())
		return
	}
	s.mu.Lock()
	msgs := append([]chatclient.Message{}, sess.messages...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(r)
	if !ok {
		writeError(w, http.StatusNotFound, errSessionNotFound.Error())
		return
	}
	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	log.Debug().Str("component", "mockbackend").Str("session_id", sess.ID).Msg("session deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "session deleted"})
}

// SessionCount reports how many sessions exist across all users.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Str("component", "mockbackend").Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
