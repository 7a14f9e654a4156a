// Package listing holds the streamchat commands that print rows: sessions,
// journal entries and bus notifications. Output goes through glazed, so every
// command accepts --output, --fields and the rest of the glazed flags.
package listing

import (
	"context"
	"strings"
	"time"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/go-go-golems/streamchat/pkg/persistence/journal"
	"github.com/spf13/cobra"
)

// Source is what the listing commands read from. Methods are called when the
// command runs, after the root command has resolved its settings.
type Source interface {
	Sessions(ctx context.Context) ([]*chatclient.Session, error)
	History(ctx context.Context, q journal.Query) ([]chatclient.ExchangeRecord, error)
	// Follow calls fn for every notification until ctx is done or fn fails.
	Follow(ctx context.Context, fn func(chatclient.Notification) error) error
}

// AddToRootCommand mounts `list` under sessions and `history` and `watch`
// under root.
func AddToRootCommand(root *cobra.Command, sessions *cobra.Command, src Source) {
	listCmd, err := NewSessionsListCommand(src)
	cobra.CheckErr(err)
	historyCmd, err := NewHistoryCommand(src)
	cobra.CheckErr(err)
	watchCmd, err := NewWatchCommand(src)
	cobra.CheckErr(err)

	cobraListCmd, err := cli.BuildCobraCommand(listCmd)
	cobra.CheckErr(err)
	cobraHistoryCmd, err := cli.BuildCobraCommand(historyCmd)
	cobra.CheckErr(err)
	cobraWatchCmd, err := cli.BuildCobraCommand(watchCmd)
	cobra.CheckErr(err)

	sessions.AddCommand(cobraListCmd)
	root.AddCommand(cobraHistoryCmd)
	root.AddCommand(cobraWatchCmd)
}

func sessionRow(s *chatclient.Session) types.Row {
	return types.NewRow(
		types.MRP("id", s.ID),
		types.MRP("title", s.Title),
		types.MRP("model", s.Model),
		types.MRP("message_count", s.MessageCount),
		types.MRP("created_at", formatTime(s.CreatedAt.Time)),
		types.MRP("updated_at", formatTime(s.UpdatedAt.Time)),
	)
}

func recordRow(r chatclient.ExchangeRecord) types.Row {
	var elapsed int64
	if !r.StartedAt.IsZero() && !r.FinishedAt.IsZero() {
		elapsed = r.FinishedAt.Sub(r.StartedAt).Milliseconds()
	}
	return types.NewRow(
		types.MRP("exchange_id", r.ExchangeID),
		types.MRP("session_id", r.SessionID),
		types.MRP("state", r.State.String()),
		types.MRP("started_at", formatTime(r.StartedAt)),
		types.MRP("elapsed_ms", elapsed),
		types.MRP("model", r.Model),
		types.MRP("mode", r.Mode),
		types.MRP("prompt", OneLine(r.Prompt)),
		types.MRP("reply", OneLine(r.Reply)),
		types.MRP("error", r.Error),
	)
}

func notificationRow(n chatclient.Notification) types.Row {
	return types.NewRow(
		types.MRP("at", formatTime(n.At)),
		types.MRP("exchange_id", n.ExchangeID),
		types.MRP("kind", string(n.Kind)),
		types.MRP("state", n.State.String()),
		types.MRP("session_id", n.SessionID),
		types.MRP("text", n.Text),
		types.MRP("error", n.Error),
	)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// OneLine collapses whitespace and cuts s to 100 runes.
func OneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 100 {
		return string(r[:100]) + "..."
	}
	return s
}
