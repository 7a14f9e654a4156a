package chatclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageLog_StartsWithWelcome(t *testing.T) {
	l := NewMessageLog("")
	msgs := l.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, welcomeMessageID, msgs[0].ID)
	require.Equal(t, RoleAssistant, msgs[0].Role)
	require.Equal(t, DefaultWelcomeMessage, msgs[0].Content)
}

func TestMessageLog_ClockStampsWelcomeAndEntries(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	l := NewMessageLog("", WithLogClock(func() time.Time { return at }))
	require.True(t, l.Messages()[0].Timestamp.Equal(at))

	u, err := l.AppendUser("q")
	require.NoError(t, err)
	require.True(t, u.Timestamp.Equal(at))
}

func TestClient_WithClockStampsWelcome(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	c := New(newFakeTransport(), WithClock(func() time.Time { return at }))
	require.True(t, c.Log.Messages()[0].Timestamp.Equal(at))
}

func TestMessageLog_PlaceholderLifecycle(t *testing.T) {
	l := NewMessageLog("hi")

	u, err := l.AppendUser("question")
	require.NoError(t, err)
	require.True(t, u.Provisional)

	p, err := l.AppendAssistantPlaceholder()
	require.NoError(t, err)
	require.NotEqual(t, u.ID, p.ID)
	require.True(t, l.Building())

	require.NoError(t, l.MutateLast("ans"))
	require.NoError(t, l.MutateLast("wer"))
	require.Equal(t, "answer", l.Last().Content)

	_, err = l.AppendUser("interleaved")
	require.ErrorIs(t, err, ErrInvariantViolation)
	require.ErrorIs(t, l.Replace(nil), ErrInvariantViolation)
	require.ErrorIs(t, l.Reset(), ErrInvariantViolation)
	require.Equal(t, 3, l.Len())

	l.Seal()
	require.False(t, l.Building())
	require.ErrorIs(t, l.MutateLast("x"), ErrInvariantViolation)
	require.Equal(t, "answer", l.Last().Content)
}

func TestMessageLog_MutateLastWithoutPlaceholder(t *testing.T) {
	l := NewMessageLog("hi")
	require.ErrorIs(t, l.MutateLast("x"), ErrInvariantViolation)
	_, err := l.AppendUser("q")
	require.NoError(t, err)
	require.ErrorIs(t, l.MutateLast("x"), ErrInvariantViolation)
}

func TestMessageLog_ReplaceAndReset(t *testing.T) {
	l := NewMessageLog("hi")
	in := []Message{{ID: "1", Role: RoleUser, Content: "a"}, {ID: "2", Role: RoleAssistant, Content: "b"}}
	require.NoError(t, l.Replace(in))
	in[0].Content = "mutated"
	require.Equal(t, "a", l.Messages()[0].Content)
	require.Equal(t, 2, l.Len())

	require.NoError(t, l.Replace(nil))
	require.Equal(t, 1, l.Len())
	require.Equal(t, welcomeMessageID, l.Last().ID)

	_, err := l.AppendUser("q")
	require.NoError(t, err)
	require.NoError(t, l.Reset())
	require.Equal(t, 1, l.Len())
}
