package chatclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-go-golems/streamchat/pkg/transport"
	"github.com/stretchr/testify/require"
)

func TestSelect_FailedLoadKeepsPreviousMessages(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "abc123"}, {ID: "x"}}
	ft.messages["abc123"] = []Message{
		{ID: "1", Role: RoleUser, Content: "q"},
		{ID: "2", Role: RoleAssistant, Content: "a"},
	}

	c := New(ft)
	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.SelectSession(context.Background(), "abc123"))
	require.Equal(t, 2, c.Log.Len())

	ft.msgErr = &transport.Error{Op: "request", Method: http.MethodGet, Path: sessionMessagesPath("x"), StatusCode: 500}
	err := c.SelectSession(context.Background(), "x")
	require.True(t, transport.IsTransportError(err))
	require.Equal(t, "x", c.Selector.Active().ID)

	msgs := c.Log.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "q", msgs[0].Content)
	require.Equal(t, "a", msgs[1].Content)
}

func TestSelect_StaleLoadDoesNotReplaceNewerSelection(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "slow"}, {ID: "fast"}}
	ft.messages["slow"] = []Message{{ID: "1", Role: RoleUser, Content: "from slow"}}
	ft.messages["fast"] = []Message{{ID: "2", Role: RoleUser, Content: "from fast"}}

	c := New(ft)
	require.NoError(t, c.Init(context.Background()))

	loading := make(chan struct{})
	release := make(chan struct{})
	ft.onMessages = func(path string) {
		if path == sessionMessagesPath("slow") {
			close(loading)
			<-release
		}
	}

	slowDone := make(chan error, 1)
	go func() { slowDone <- c.SelectSession(context.Background(), "slow") }()
	select {
	case <-loading:
	case <-time.After(2 * time.Second):
		t.Fatal("slow load never started")
	}

	require.NoError(t, c.SelectSession(context.Background(), "fast"))
	require.Equal(t, "from fast", c.Log.Last().Content)

	close(release)
	select {
	case err := <-slowDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("slow select never returned")
	}
	require.Equal(t, "fast", c.Selector.Active().ID)
	msgs := c.Log.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "from fast", msgs[0].Content)
}

func TestSelect_UnknownSession(t *testing.T) {
	c := New(newFakeTransport())
	require.Error(t, c.SelectSession(context.Background(), "nope"))
	require.True(t, c.Selector.Active().IsPending())
}

func TestSelect_CancelsInFlightExchange(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "other"}}
	ft.messages["other"] = []Message{{ID: "9", Role: RoleUser, Content: "old"}}
	s := newFakeStream()
	ft.stream = s

	c := New(ft)
	require.NoError(t, c.Init(context.Background()))
	done := sendAsync(c, context.Background(), "hello")
	s.push(`{"type":"delta","text":"Hi"}`)
	require.Eventually(t, func() bool { return c.Log.Last().Content == "Hi" }, time.Second, time.Millisecond)

	require.NoError(t, c.SelectSession(context.Background(), "other"))
	out := waitOutcome(t, done)
	require.Equal(t, StateCancelled, out.res.State)
	require.Equal(t, "old", c.Log.Last().Content)
}

func TestDeleteActiveSessionResetsToPending(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "abc123"}, {ID: "keep"}}
	ft.messages["abc123"] = []Message{{ID: "1", Role: RoleUser, Content: "q"}, {ID: "2", Role: RoleAssistant, Content: "a"}}

	c := New(ft)
	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.SelectSession(context.Background(), "abc123"))

	require.NoError(t, c.DeleteSession(context.Background(), "keep"))
	require.Equal(t, "abc123", c.Selector.Active().ID)
	require.Equal(t, 2, c.Log.Len())

	require.NoError(t, c.DeleteSession(context.Background(), "abc123"))
	require.True(t, c.Selector.Active().IsPending())
	msgs := c.Log.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, welcomeMessageID, msgs[0].ID)
}

func TestDeleteActiveSessionDuringStream(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "abc123"}}
	ft.messages["abc123"] = []Message{{ID: "1", Role: RoleUser, Content: "q"}}
	s := newFakeStream()
	ft.stream = s

	c := New(ft)
	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.SelectSession(context.Background(), "abc123"))
	done := sendAsync(c, context.Background(), "more")
	require.Eventually(t, func() bool { return c.Coordinator.State() == StateStreaming }, time.Second, time.Millisecond)

	require.NoError(t, c.DeleteSession(context.Background(), "abc123"))
	out := waitOutcome(t, done)
	require.Equal(t, StateCancelled, out.res.State)
	require.Equal(t, 1, c.Log.Len())
	require.True(t, c.Selector.Active().IsPending())
}

func TestLogout(t *testing.T) {
	ft := newFakeTransport()
	ft.sessions = []*Session{{ID: "abc123"}}
	called := false
	c := New(ft, WithLogout(func() error { called = true; return nil }))
	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.SelectSession(context.Background(), "abc123"))

	require.NoError(t, c.Logout())
	require.True(t, called)
	require.True(t, c.Selector.Active().IsPending())
	require.Equal(t, 1, c.Log.Len())
}

func TestClientDefaultsApplyToSend(t *testing.T) {
	ft := newFakeTransport()
	s := newFakeStream()
	ft.stream = s
	s.push(`{"type":"done"}`)

	c := New(ft, WithDefaults("gpt-x", "Agent"), WithWelcomeMessage("hey"))
	require.Equal(t, "hey", c.Log.Last().Content)
	_, err := c.Send(context.Background(), "hello", SendOptions{})
	require.NoError(t, err)
	body := streamBody(t, ft)
	require.Equal(t, "gpt-x", body.Model)
	require.Equal(t, "Agent", body.Mode)
}
