package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/go-go-golems/streamchat/pkg/ui"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newTUICommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Full-screen chat with streaming replies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// the program is assigned before Run; no exchange starts before that
			var p *tea.Program
			forward := chatclient.EventSinkFunc(func(n chatclient.Notification) {
				if p != nil {
					_ = ui.ForwardFunc(p)(n)
				}
			})

			a, err := newApp(settings, forward)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}

			// the alternate screen owns the terminal until Run returns
			restore := log.Logger
			log.Logger = zerolog.Nop()
			defer func() { log.Logger = restore }()

			model := ui.NewModel(a.chat, ui.NewBackend(ctx, a.chat))
			p = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = p.Run()
			return err
		},
	}
}
