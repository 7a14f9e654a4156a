package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubCreds struct {
	mu      sync.Mutex
	token   string
	cleared int
}

func (s *stubCreds) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *stubCreds) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.cleared++
	return nil
}

func TestClientRequest_SendsBearerAndDecodes(t *testing.T) {
	var gotAuth, gotKey, gotQuery string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotKey = r.Header.Get("Idempotency-Key")
		gotQuery = r.URL.Query().Get("limit")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"path":"` + r.URL.Path + `"}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL+"/", WithCredentials(&stubCreds{token: "tok-1"}))
	require.NoError(t, err)

	var out struct {
		OK   bool   `json:"ok"`
		Path string `json:"path"`
	}
	err = c.Request(context.Background(), http.MethodPost, "/chat/send",
		map[string]string{"message": "hi"}, url.Values{"limit": {"5"}}, &out, WithIdempotencyKey("k-1"))
	require.NoError(t, err)
	require.True(t, out.OK)
	require.Equal(t, "/chat/send", out.Path)
	require.Equal(t, "Bearer tok-1", gotAuth)
	require.Equal(t, "k-1", gotKey)
	require.Equal(t, "5", gotQuery)
	require.Equal(t, "hi", gotBody["message"])
}

func TestClientRequest_UnauthorizedClearsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	creds := &stubCreds{token: "tok-1"}
	fired := 0
	c, err := NewClient(srv.URL, WithCredentials(creds), WithAuthExpiredHandler(func() { fired++ }))
	require.NoError(t, err)

	err = c.Request(context.Background(), http.MethodGet, "/chat/sessions", nil, nil, nil)
	require.Error(t, err)
	require.True(t, IsAuthExpired(err))
	require.Equal(t, 1, creds.cleared)
	require.Equal(t, "", creds.Token())
	require.Equal(t, 1, fired)
}

func TestClientRequest_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)

	err = c.Request(context.Background(), http.MethodGet, "/chat/sessions", nil, nil, nil)
	require.Error(t, err)
	var te *Error
	require.ErrorAs(t, err, &te)
	require.Equal(t, http.StatusInternalServerError, te.StatusCode)
	require.Equal(t, "boom", te.Body)
	require.False(t, IsNotFound(err))
	require.True(t, IsTransportError(err))
}

func TestClientRequest_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c, err := NewClient(addr)
	require.NoError(t, err)
	err = c.Request(context.Background(), http.MethodGet, "/chat/sessions", nil, nil, nil)
	require.Error(t, err)
	var te *Error
	require.ErrorAs(t, err, &te)
	require.Zero(t, te.StatusCode)
	require.Error(t, te.Err)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	_, err = NewClient("ftp://example.com")
	require.Error(t, err)
}

func TestOpenStream_ParsesFrames(t *testing.T) {
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fl := w.(http.Flusher)
		_, _ = io.WriteString(w, "retry: 5000\n\n")
		_, _ = io.WriteString(w, ": keepalive\n\n")
		_, _ = io.WriteString(w, "event: chunk\nid: 7\ndata: {\"a\":1}\n\n")
		_, _ = io.WriteString(w, "data: line1\r\ndata: line2\r\n\r\n")
		_, _ = io.WriteString(w, "data:nospace\n\n")
		fl.Flush()
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	s, err := c.OpenStream(context.Background(), "/chat/sendstream", map[string]string{"message": "hi"})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.Equal(t, "text/event-stream", gotAccept)

	f, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, "chunk", f.Event)
	require.Equal(t, "7", f.ID)
	require.Equal(t, `{"a":1}`, string(f.Data))

	f, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, "line1\nline2", string(f.Data))

	f, err = s.Next()
	require.NoError(t, err)
	require.Equal(t, "nospace", string(f.Data))

	_, err = s.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestOpenStream_StatusErrorBeforeHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such session", http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	_, err = c.OpenStream(context.Background(), "/chat/sendstream", nil)
	require.Error(t, err)
	require.True(t, IsNotFound(err))
}

func TestOpenStream_CloseUnblocksNext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := NewClient(srv.URL)
	require.NoError(t, err)
	s, err := c.OpenStream(context.Background(), "/chat/sendstream", nil)
	require.NoError(t, err)

	f, err := s.Next()
	require.NoError(t, err)
	require.Equal(t, "first", string(f.Data))

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Next()
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrStreamClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}
}
