// Package mockbackend is an in-memory implementation of the chat backend's REST
// and streaming surface, used by tests and by `streamchat serve-mock`.
package mockbackend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

const (
	defaultSessionListLimit = 5
	defaultTokenTTL         = 24 * time.Hour
	noResponse              = "(no response)"
)

// ChatRequest is the body of both send endpoints.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
	Model     string  `json:"model"`
	Mode      string  `json:"mode"`
}

// Responder produces the assistant reply for a request.
type Responder func(ctx context.Context, req ChatRequest) (string, error)

// EchoResponder answers with the user's own message.
func EchoResponder(_ context.Context, req ChatRequest) (string, error) {
	return fmt.Sprintf("You said: %s", req.Message), nil
}

type user struct {
	id           string
	username     string
	passwordHash []byte
	createdAt    time.Time
}

type session struct {
	chatclient.Session
	userID   string
	messages []chatclient.Message
	// touched orders sessions updated within the same clock tick
	touched int
}

type Server struct {
	router chi.Router

	secret      []byte
	tokenTTL    time.Duration
	responder   Responder
	wireFormat  string
	chunkDelay  time.Duration
	listLimit   int
	now         func() time.Time
	accessLevel zerolog.Level

	mu        sync.Mutex
	users     map[string]*user
	sessions  map[string]*session
	messageID int
}

type Option func(*Server)

func WithResponder(r Responder) Option {
	return func(s *Server) { s.responder = r }
}

// WithWireFormat selects the stream payload shape: envelope (default) or legacy.
func WithWireFormat(format string) Option {
	return func(s *Server) { s.wireFormat = format }
}

// WithChunkDelay pauses between streamed chunks.
func WithChunkDelay(d time.Duration) Option {
	return func(s *Server) { s.chunkDelay = d }
}

func WithSecret(secret string) Option {
	return func(s *Server) { s.secret = []byte(secret) }
}

func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

func WithSessionListLimit(n int) Option {
	return func(s *Server) { s.listLimit = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func New(opts ...Option) *Server {
	s := &Server{
		secret:      []byte("streamchat-mock-secret"),
		tokenTTL:    defaultTokenTTL,
		responder:   EchoResponder,
		wireFormat:  chatclient.WireFormatEnvelope,
		listLimit:   defaultSessionListLimit,
		now:         time.Now,
		accessLevel: zerolog.DebugLevel,
		users:       map[string]*user{},
		sessions:    map[string]*session{},
	}
	for _, o := range opts {
		o(s)
	}
	s.wireFormat = strings.ToLower(s.wireFormat)
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).WithLevel(s.accessLevel).
			Str("component", "mockbackend").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	}))
	r.Use(chiMiddleware.Heartbeat("/health"))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.With(s.requireUser).Get("/me", s.handleMe)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/send", s.handleSend)
		r.Post("/sendstream", s.handleSendStream)
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{sessionID}/messages", s.handleSessionMessages)
		r.Delete("/sessions/{sessionID}", s.handleDeleteSession)
	})
	return r
}
