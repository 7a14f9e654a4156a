package chatclient

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-go-golems/streamchat/pkg/transport"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ListReplacesAndDedupes(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "a", Title: "first"}, {ID: "b"}, {ID: "a", Title: "dup"}, {ID: ""}}
	r := NewRegistry(ft)

	got, err := r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Title)

	ft.sessions = []*Session{{ID: "c"}}
	got, err = r.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	_, ok := r.FindByID("a")
	require.False(t, ok)
}

func TestRegistry_ListErrorKeepsCache(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "a"}}
	r := NewRegistry(ft)
	_, err := r.List(context.Background())
	require.NoError(t, err)

	ft.listErr = &transport.Error{Op: "request", Method: http.MethodGet, Path: pathSessions, StatusCode: 500}
	_, err = r.List(context.Background())
	require.True(t, transport.IsTransportError(err))
	require.Len(t, r.Sessions(), 1)
}

func TestRegistry_FindByIDIsLocal(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "a"}}
	r := NewRegistry(ft)
	_, err := r.List(context.Background())
	require.NoError(t, err)

	before := len(ft.requests)
	s, ok := r.FindByID("a")
	require.True(t, ok)
	require.Equal(t, "a", s.ID)
	_, ok = r.FindByID("")
	require.False(t, ok)
	require.Len(t, ft.requests, before)
}

func TestRegistry_Remove(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "a"}, {ID: "b"}}
	r := NewRegistry(ft)
	_, err := r.List(context.Background())
	require.NoError(t, err)

	var removed []string
	r.OnRemoved(func(id string) { removed = append(removed, id) })

	ft.delErr = &transport.Error{Op: "request", Method: http.MethodDelete, Path: sessionPath("a"), StatusCode: 500}
	require.Error(t, r.Remove(context.Background(), "a"))
	require.Len(t, r.Sessions(), 2)
	require.Empty(t, removed)

	// already deleted on the backend
	ft.delErr = &transport.Error{Op: "request", Method: http.MethodDelete, Path: sessionPath("a"), StatusCode: 404}
	require.NoError(t, r.Remove(context.Background(), "a"))
	require.Len(t, r.Sessions(), 1)

	ft.delErr = nil
	require.NoError(t, r.Remove(context.Background(), "b"))
	require.Empty(t, r.Sessions())
	require.Equal(t, []string{"a", "b"}, removed)
	require.Equal(t, http.MethodDelete, ft.lastRequest().Method)
	require.Equal(t, "/chat/sessions/b", ft.lastRequest().Path)
}
