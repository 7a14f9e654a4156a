package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and delete sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete sessions on the backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := a.requireLogin(); err != nil {
				return err
			}
			for _, id := range args {
				if err := a.chat.DeleteSession(cmd.Context(), id); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(os.Stdout, "deleted %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

func newMessagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "messages <session-id>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(settings)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			if err := a.chat.SelectSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			for _, m := range a.chat.Log.Messages() {
				printMessage(os.Stdout, m)
			}
			return nil
		},
	}
}
