package mockbackend_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/go-go-golems/streamchat/pkg/credentials"
	"github.com/go-go-golems/streamchat/pkg/mockbackend"
	"github.com/go-go-golems/streamchat/pkg/transport"
	"github.com/stretchr/testify/require"
)

type harness struct {
	backend *mockbackend.Server
	creds   *credentials.MemoryStore
	client  *chatclient.Client
}

func newHarness(t *testing.T, serverOpts []mockbackend.Option, clientOpts ...chatclient.Option) *harness {
	t.Helper()
	backend := mockbackend.New(serverOpts...)
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	token, err := backend.CreateUser("ada", "secret")
	require.NoError(t, err)
	creds := credentials.NewMemoryStore(token)

	tc, err := transport.NewClient(srv.URL, transport.WithCredentials(creds), transport.WithTimeout(5*time.Second))
	require.NoError(t, err)

	c := chatclient.New(tc, clientOpts...)
	require.NoError(t, c.Init(context.Background()))
	return &harness{backend: backend, creds: creds, client: c}
}

func TestEndToEnd_FirstMessageAdoptsBackendSession(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.client.Selector.Active().IsPending())

	res, err := h.client.Send(context.Background(), "hello backend", chatclient.SendOptions{})
	require.NoError(t, err)
	require.Equal(t, chatclient.StateCompleted, res.State)
	require.True(t, res.Reconciled)
	require.NotEmpty(t, res.SessionID)
	require.Equal(t, "You said: hello backend", res.Reply.Content)

	active := h.client.Selector.Active()
	require.Equal(t, res.SessionID, active.ID)
	require.Equal(t, "hello backend", active.Title)

	msgs := h.client.Log.Messages()
	require.GreaterOrEqual(t, len(msgs), 2)
	require.Equal(t, "hello backend", msgs[len(msgs)-2].Content)
	require.Equal(t, chatclient.RoleAssistant, msgs[len(msgs)-1].Role)

	// the follow-up goes to the adopted session, not a new one
	res, err = h.client.Send(context.Background(), "again", chatclient.SendOptions{})
	require.NoError(t, err)
	require.Equal(t, active.ID, res.SessionID)
	require.Equal(t, 1, h.backend.SessionCount())

	// reloading the session from the backend yields both exchanges
	require.NoError(t, h.client.SelectSession(context.Background(), active.ID))
	require.Equal(t, 4, h.client.Log.Len())
}

func TestEndToEnd_LegacyWireFormat(t *testing.T) {
	h := newHarness(t,
		[]mockbackend.Option{mockbackend.WithWireFormat(chatclient.WireFormatLegacy)},
		chatclient.WithCodec(chatclient.NewLegacyCodec()),
	)

	res, err := h.client.Send(context.Background(), "legacy please", chatclient.SendOptions{})
	require.NoError(t, err)
	require.Equal(t, chatclient.StateCompleted, res.State)
	require.Equal(t, "You said: legacy please", res.Reply.Content)
	require.Equal(t, res.SessionID, h.client.Selector.Active().ID)
}

func TestEndToEnd_SendSync(t *testing.T) {
	h := newHarness(t, nil)

	res, err := h.client.SendSync(context.Background(), "no stream", chatclient.SendOptions{})
	require.NoError(t, err)
	require.Equal(t, chatclient.StateCompleted, res.State)
	require.Equal(t, "You said: no stream", res.Reply.Content)
	require.Equal(t, 1, h.backend.SessionCount())
}

func TestEndToEnd_DeleteActiveSessionStartsFresh(t *testing.T) {
	h := newHarness(t, nil)
	res, err := h.client.Send(context.Background(), "doomed", chatclient.SendOptions{})
	require.NoError(t, err)
	require.Equal(t, res.SessionID, h.client.Selector.Active().ID)

	require.NoError(t, h.client.DeleteSession(context.Background(), res.SessionID))
	require.True(t, h.client.Selector.Active().IsPending())
	_, ok := h.client.Registry.FindByID(res.SessionID)
	require.False(t, ok)
	require.Zero(t, h.backend.SessionCount())

	// deleting again is a no-op
	require.NoError(t, h.client.DeleteSession(context.Background(), res.SessionID))
}

func TestEndToEnd_CancelMidStream(t *testing.T) {
	h := newHarness(t,
		[]mockbackend.Option{
			mockbackend.WithChunkDelay(20 * time.Millisecond),
			mockbackend.WithResponder(func(context.Context, mockbackend.ChatRequest) (string, error) {
				return "a rather long answer that takes a while to arrive in full", nil
			}),
		},
	)

	type outcome struct {
		res *chatclient.SendResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := h.client.Send(context.Background(), "talk slowly", chatclient.SendOptions{})
		done <- outcome{res, err}
	}()

	require.Eventually(t, func() bool {
		return h.client.Coordinator.State() == chatclient.StateStreaming && h.client.Log.Last().Content != ""
	}, 2*time.Second, 5*time.Millisecond)
	h.client.Cancel()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		require.Equal(t, chatclient.StateCancelled, out.res.State)
		require.NotEqual(t, "a rather long answer that takes a while to arrive in full", out.res.Reply.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("send did not return after cancel")
	}
	require.True(t, h.client.Selector.Active().IsPending())
	require.Equal(t, chatclient.StateCancelled, h.client.Coordinator.State())
}

func TestEndToEnd_ExpiredTokenClearsCredentials(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.creds.Set("not-a-token", nil))

	res, err := h.client.Send(context.Background(), "hi", chatclient.SendOptions{})
	require.Error(t, err)
	require.True(t, transport.IsAuthExpired(err))
	require.Equal(t, chatclient.StateCancelled, res.State)
	require.Empty(t, h.creds.Token())
}
