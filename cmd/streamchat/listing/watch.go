package listing

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/pkg/errors"
)

// errEnough stops Follow once --count rows were emitted.
var errEnough = errors.New("enough notifications")

type WatchCommand struct {
	*cmds.CommandDescription
	src Source
}

type WatchSettings struct {
	Count int    `glazed:"count"`
	Kind  string `glazed:"kind"`
}

func NewWatchCommand(src Source) (*WatchCommand, error) {
	glazedLayer, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsLayer, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"watch",
		cmds.WithShort("Follow notifications other streamchat processes publish on Redis"),
		cmds.WithLong("Follow the notification bus and emit one row per notification. Stops on interrupt or after --count rows; table output is written when the watch ends, use --output json for one object per row."),
		cmds.WithFlags(
			fields.New(
				"count",
				fields.TypeInteger,
				fields.WithDefault(0),
				fields.WithHelp("Stop after this many notifications (0 = until interrupted)"),
			),
			fields.New(
				"kind",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Only notifications of this kind (delta, state, session, error)"),
			),
		),
		cmds.WithSections(glazedLayer, commandSettingsLayer),
	)

	return &WatchCommand{CommandDescription: desc, src: src}, nil
}

func (c *WatchCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &WatchSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return c.run(ctx, s, gp)
}

func (c *WatchCommand) run(ctx context.Context, s *WatchSettings, gp middlewares.Processor) error {
	emitted := 0
	err := c.src.Follow(ctx, func(n chatclient.Notification) error {
		if s.Kind != "" && string(n.Kind) != s.Kind {
			return nil
		}
		if err := gp.AddRow(ctx, notificationRow(n)); err != nil {
			return err
		}
		emitted++
		if s.Count > 0 && emitted >= s.Count {
			return errEnough
		}
		return nil
	})
	if errors.Is(err, errEnough) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

var _ cmds.GlazeCommand = &WatchCommand{}
