package listing

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/go-go-golems/streamchat/pkg/persistence/journal"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type rowRecorder struct {
	rows []types.Row
}

func (r *rowRecorder) AddRow(_ context.Context, row types.Row) error {
	r.rows = append(r.rows, row)
	return nil
}

func (r *rowRecorder) Close(context.Context) error { return nil }

func (r *rowRecorder) column(t *testing.T, key string) []any {
	t.Helper()
	out := make([]any, 0, len(r.rows))
	for _, row := range r.rows {
		v, ok := row.Get(key)
		require.True(t, ok, "row without %q", key)
		out = append(out, v)
	}
	return out
}

type fakeSource struct {
	sessions      []*chatclient.Session
	records       []chatclient.ExchangeRecord
	notifications []chatclient.Notification
	err           error

	lastQuery journal.Query
}

func (f *fakeSource) Sessions(context.Context) ([]*chatclient.Session, error) {
	return f.sessions, f.err
}

func (f *fakeSource) History(_ context.Context, q journal.Query) ([]chatclient.ExchangeRecord, error) {
	f.lastQuery = q
	return f.records, f.err
}

func (f *fakeSource) Follow(ctx context.Context, fn func(chatclient.Notification) error) error {
	if f.err != nil {
		return f.err
	}
	for _, n := range f.notifications {
		if err := fn(n); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func TestSessionsList_OneRowPerSession(t *testing.T) {
	src := &fakeSource{sessions: []*chatclient.Session{
		{ID: "s-2", Title: "newer", MessageCount: 4, CreatedAt: chatclient.NewTimestamp(t0), UpdatedAt: chatclient.NewTimestamp(t0.Add(time.Hour))},
		{ID: "s-1", Title: "older", CreatedAt: chatclient.NewTimestamp(t0)},
	}}
	cmd, err := NewSessionsListCommand(src)
	require.NoError(t, err)

	gp := &rowRecorder{}
	require.NoError(t, cmd.RunIntoGlazeProcessor(context.Background(), nil, gp))
	require.Equal(t, []any{"s-2", "s-1"}, gp.column(t, "id"))
	require.Equal(t, []any{"newer", "older"}, gp.column(t, "title"))
	require.Equal(t, []any{4, 0}, gp.column(t, "message_count"))
	require.Equal(t, []any{"2024-05-01T13:00:00Z", ""}, gp.column(t, "updated_at"))
}

func TestSessionsList_SourceError(t *testing.T) {
	cmd, err := NewSessionsListCommand(&fakeSource{err: errors.New("unauthorized")})
	require.NoError(t, err)
	gp := &rowRecorder{}
	require.EqualError(t, cmd.RunIntoGlazeProcessor(context.Background(), nil, gp), "unauthorized")
	require.Empty(t, gp.rows)
}

func TestHistory_RowsAndQuery(t *testing.T) {
	src := &fakeSource{records: []chatclient.ExchangeRecord{
		{ExchangeID: "ex-2", SessionID: "s-1", State: chatclient.StateFailed, Prompt: "second\nquestion", Error: "backend unavailable", StartedAt: t0.Add(time.Minute), FinishedAt: t0.Add(time.Minute + 250*time.Millisecond)},
		{ExchangeID: "ex-1", SessionID: "s-1", State: chatclient.StateCompleted, Prompt: "first", Reply: "answer", Model: "m1", StartedAt: t0, FinishedAt: t0.Add(time.Second)},
	}}
	cmd, err := NewHistoryCommand(src)
	require.NoError(t, err)

	gp := &rowRecorder{}
	require.NoError(t, cmd.run(context.Background(), &HistorySettings{SessionID: "s-1", State: "failed", Limit: 5}, gp))
	require.Equal(t, journal.Query{SessionID: "s-1", State: "failed", Limit: 5}, src.lastQuery)
	require.Equal(t, []any{"ex-2", "ex-1"}, gp.column(t, "exchange_id"))
	require.Equal(t, []any{"failed", "completed"}, gp.column(t, "state"))
	require.Equal(t, []any{int64(250), int64(1000)}, gp.column(t, "elapsed_ms"))
	require.Equal(t, []any{"second question", "first"}, gp.column(t, "prompt"))
	require.Equal(t, []any{"backend unavailable", ""}, gp.column(t, "error"))
}

func TestHistory_RejectsUnknownState(t *testing.T) {
	src := &fakeSource{}
	cmd, err := NewHistoryCommand(src)
	require.NoError(t, err)

	err = cmd.run(context.Background(), &HistorySettings{State: "streaming-ish"}, &rowRecorder{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "--state")
	require.Equal(t, journal.Query{}, src.lastQuery)
}

func TestHistory_BrowseSkipsRows(t *testing.T) {
	src := &fakeSource{records: []chatclient.ExchangeRecord{{ExchangeID: "ex-1", State: chatclient.StateCompleted}}}
	cmd, err := NewHistoryCommand(src)
	require.NoError(t, err)
	var browsed []chatclient.ExchangeRecord
	cmd.browse = func(_ context.Context, recs []chatclient.ExchangeRecord) error {
		browsed = recs
		return nil
	}

	gp := &rowRecorder{}
	require.NoError(t, cmd.run(context.Background(), &HistorySettings{Browse: true}, gp))
	require.Len(t, browsed, 1)
	require.Empty(t, gp.rows)
}

func TestWatch_StopsAfterCount(t *testing.T) {
	src := &fakeSource{notifications: []chatclient.Notification{
		{Kind: chatclient.NotifyState, ExchangeID: "ex-1", State: chatclient.StateStreaming, At: t0},
		{Kind: chatclient.NotifyDelta, ExchangeID: "ex-1", State: chatclient.StateStreaming, Text: "hel", At: t0},
		{Kind: chatclient.NotifyDelta, ExchangeID: "ex-1", State: chatclient.StateStreaming, Text: "lo", At: t0},
	}}
	cmd, err := NewWatchCommand(src)
	require.NoError(t, err)

	gp := &rowRecorder{}
	require.NoError(t, cmd.run(context.Background(), &WatchSettings{Count: 2}, gp))
	require.Equal(t, []any{"state", "delta"}, gp.column(t, "kind"))
	require.Equal(t, []any{"", "hel"}, gp.column(t, "text"))
}

func TestWatch_KindFilter(t *testing.T) {
	src := &fakeSource{notifications: []chatclient.Notification{
		{Kind: chatclient.NotifyState, ExchangeID: "ex-1", State: chatclient.StateFailed, At: t0},
		{Kind: chatclient.NotifyError, ExchangeID: "ex-1", State: chatclient.StateFailed, Error: "boom", At: t0},
	}}
	cmd, err := NewWatchCommand(src)
	require.NoError(t, err)

	gp := &rowRecorder{}
	require.NoError(t, cmd.run(context.Background(), &WatchSettings{Kind: "error", Count: 1}, gp))
	require.Equal(t, []any{"boom"}, gp.column(t, "error"))
}

func TestWatch_InterruptEndsCleanly(t *testing.T) {
	src := &fakeSource{notifications: []chatclient.Notification{
		{Kind: chatclient.NotifySession, ExchangeID: "ex-1", SessionID: "s-9", At: t0},
	}}
	cmd, err := NewWatchCommand(src)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	gp := &rowRecorder{}
	require.NoError(t, cmd.run(ctx, &WatchSettings{}, gp))
	require.Equal(t, []any{"s-9"}, gp.column(t, "session_id"))
}

func TestWatch_SourceError(t *testing.T) {
	cmd, err := NewWatchCommand(&fakeSource{err: errors.New("watch needs the Redis transport")})
	require.NoError(t, err)
	require.EqualError(t, cmd.run(context.Background(), &WatchSettings{}, &rowRecorder{}), "watch needs the Redis transport")
}

func TestOneLine(t *testing.T) {
	require.Equal(t, "a b c", OneLine("a\n b\t c"))
	require.Equal(t, strings.Repeat("x", 100)+"...", OneLine(strings.Repeat("x", 150)))
}
