package listing

import (
	"context"

	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
)

type SessionsListCommand struct {
	*cmds.CommandDescription
	src Source
}

func NewSessionsListCommand(src Source) (*SessionsListCommand, error) {
	glazedLayer, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	commandSettingsLayer, err := cli.NewCommandSettingsSection()
	if err != nil {
		return nil, err
	}

	desc := cmds.NewCommandDescription(
		"list",
		cmds.WithShort("List the most recent sessions"),
		cmds.WithLong("List the sessions the backend returns for the logged-in user, newest first."),
		cmds.WithSections(glazedLayer, commandSettingsLayer),
	)

	return &SessionsListCommand{CommandDescription: desc, src: src}, nil
}

func (c *SessionsListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	_ *values.Values,
	gp middlewares.Processor,
) error {
	sessions, err := c.src.Sessions(ctx)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if err := gp.AddRow(ctx, sessionRow(s)); err != nil {
			return err
		}
	}
	return nil
}

var _ cmds.GlazeCommand = &SessionsListCommand{}
