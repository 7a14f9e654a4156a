// Package auth talks to the backend's /auth endpoints and keeps the resulting
// bearer token in a credentials store.
package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-go-golems/streamchat/pkg/credentials"
	"github.com/go-go-golems/streamchat/pkg/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	pathLogin    = "/auth/login"
	pathRegister = "/auth/register"
	pathMe       = "/auth/me"
)

// Requester is the part of transport.Client the auth calls need.
type Requester interface {
	Request(ctx context.Context, method, path string, body any, query url.Values, out any, opts ...transport.RequestOption) error
}

var _ Requester = (*transport.Client)(nil)

type UserInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at,omitempty"`
}

type tokenResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	User        UserInfo `json:"user"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Service struct {
	requester Requester
	store     credentials.Store
}

func NewService(r Requester, store credentials.Store) *Service {
	return &Service{requester: r, store: store}
}

// Login exchanges username and password for a token and stores it.
func (s *Service) Login(ctx context.Context, username, password string) (*UserInfo, error) {
	return s.obtain(ctx, pathLogin, username, password)
}

// Register creates the account and stores the token the backend issues for it.
func (s *Service) Register(ctx context.Context, username, password string) (*UserInfo, error) {
	return s.obtain(ctx, pathRegister, username, password)
}

func (s *Service) obtain(ctx context.Context, path, username, password string) (*UserInfo, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}
	var resp tokenResponse
	err := s.requester.Request(ctx, http.MethodPost, path, credentialsRequest{Username: username, Password: password}, nil, &resp)
	if err != nil {
		if transport.IsAuthExpired(err) {
			return nil, errors.Wrap(ErrInvalidCredentials, username)
		}
		return nil, errors.Wrapf(err, "auth %s", path)
	}
	if resp.AccessToken == "" {
		return nil, errors.Errorf("auth %s: empty access token", path)
	}
	if resp.TokenType != "" && !strings.EqualFold(resp.TokenType, "bearer") {
		return nil, errors.Errorf("auth %s: unsupported token type %q", path, resp.TokenType)
	}
	if err := s.store.Set(resp.AccessToken, &credentials.User{ID: resp.User.ID, Username: resp.User.Username}); err != nil {
		return nil, errors.Wrap(err, "store credentials")
	}
	log.Info().Str("component", "auth").Str("username", resp.User.Username).Msg("logged in")
	return &resp.User, nil
}

// Me returns the user the stored token belongs to.
func (s *Service) Me(ctx context.Context) (*UserInfo, error) {
	if s.store.Token() == "" {
		return nil, ErrNotLoggedIn
	}
	var u UserInfo
	if err := s.requester.Request(ctx, http.MethodGet, pathMe, nil, nil, &u); err != nil {
		return nil, errors.Wrap(err, "auth me")
	}
	return &u, nil
}

// Logout forgets the stored token. The backend keeps no session to end.
func (s *Service) Logout() error {
	if err := s.store.Clear(); err != nil {
		return errors.Wrap(err, "clear credentials")
	}
	return nil
}

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrNotLoggedIn        = errors.New("not logged in")
)
