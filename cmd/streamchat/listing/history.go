package listing

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/go-go-golems/streamchat/pkg/persistence/journal"
	"github.com/go-go-golems/streamchat/pkg/ui"
	"github.com/pkg/errors"
)

type HistoryCommand struct {
	*cmds.CommandDescription
	src Source
	// browse replaces row output when --browse is set.
	browse func(ctx context.Context, recs []chatclient.ExchangeRecord) error
}

type HistorySettings struct {
	SessionID string `glazed:"session"`
	State     string `glazed:"state"`
	Limit     int    `glazed:"limit"`
	Browse    bool   `glazed:"browse"`
}

func NewHistoryCommand(src Source) (*HistoryCommand, error) {
	glazedLayer, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsLayer, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"history",
		cmds.WithShort("List exchanges recorded in the local journal"),
		cmds.WithLong("List finished exchanges from the local journal, newest first. With --browse the entries open in a full-screen browser instead."),
		cmds.WithFlags(
			fields.New(
				"session",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Only exchanges of this session"),
			),
			fields.New(
				"state",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Only exchanges that ended in this state (completed, cancelled, failed)"),
			),
			fields.New(
				"limit",
				fields.TypeInteger,
				fields.WithDefault(20),
				fields.WithHelp("Maximum number of entries"),
			),
			fields.New(
				"browse",
				fields.TypeBool,
				fields.WithDefault(false),
				fields.WithHelp("Open the entries in a full-screen browser"),
			),
		),
		cmds.WithSections(glazedLayer, commandSettingsLayer),
	)

	return &HistoryCommand{CommandDescription: desc, src: src, browse: runBrowser}, nil
}

func (c *HistoryCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &HistorySettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	return c.run(ctx, s, gp)
}

func (c *HistoryCommand) run(ctx context.Context, s *HistorySettings, gp middlewares.Processor) error {
	if s.State != "" {
		var st chatclient.StreamState
		if err := st.UnmarshalText([]byte(s.State)); err != nil {
			return errors.Wrap(err, "--state")
		}
	}
	recs, err := c.src.History(ctx, journal.Query{SessionID: s.SessionID, State: s.State, Limit: s.Limit})
	if err != nil {
		return err
	}
	if s.Browse {
		return c.browse(ctx, recs)
	}
	for _, r := range recs {
		if err := gp.AddRow(ctx, recordRow(r)); err != nil {
			return err
		}
	}
	return nil
}

func runBrowser(ctx context.Context, recs []chatclient.ExchangeRecord) error {
	_, err := tea.NewProgram(ui.NewBrowser(recs), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

var _ cmds.GlazeCommand = &HistoryCommand{}
