package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const chatHelp = `/new               start a new session
/sessions          list sessions
/select <id>       switch to a session
/delete <id>       delete a session
/history           print the active session
/quit              leave`

func newChatCommand() *cobra.Command {
	var flags sendFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat; Ctrl-C cancels a reply, /quit leaves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printer := &deltaPrinter{w: os.Stdout}
			a, err := newApp(settings, printer)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if err := a.init(cmd.Context()); err != nil {
				return err
			}
			return chatLoop(cmd.Context(), a, printer, os.Stdin, flags)
		},
	}
	flags.register(cmd)
	return cmd
}

func chatLoop(ctx context.Context, a *app, printer *deltaPrinter, in io.Reader, flags sendFlags) error {
	_, _ = fmt.Fprintln(os.Stdout, dimStyle.Render("type /help for commands"))
	printLog(a.chat.Log.Messages())

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		_, _ = fmt.Fprint(os.Stdout, userStyle.Render("> "))
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runChatCommand(ctx, a, line)
			if err != nil {
				_, _ = fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if _, err := runExchange(ctx, a, printer, line, flags); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		}
		if err := a.chat.Coordinator.Reset(); err != nil {
			log.Warn().Err(err).Msg("could not reset coordinator")
		}
	}
}

func runChatCommand(ctx context.Context, a *app, line string) (bool, error) {
	fields := strings.Fields(line)
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		_, _ = fmt.Fprintln(os.Stdout, chatHelp)
	case "/new":
		if err := a.chat.NewSession(); err != nil {
			return false, err
		}
		_, _ = fmt.Fprintln(os.Stdout, dimStyle.Render("new session"))
	case "/sessions":
		sessions, err := a.chat.Registry.List(ctx)
		if err != nil {
			return false, err
		}
		for _, s := range sessions {
			_, _ = fmt.Fprintf(os.Stdout, "%s  %s\n", dimStyle.Render(s.ID), s.Title)
		}
	case "/select":
		if arg == "" {
			return false, errors.New("usage: /select <id>")
		}
		if err := a.chat.SelectSession(ctx, arg); err != nil {
			return false, err
		}
		printLog(a.chat.Log.Messages())
	case "/delete":
		if arg == "" {
			return false, errors.New("usage: /delete <id>")
		}
		if err := a.chat.DeleteSession(ctx, arg); err != nil {
			return false, err
		}
		_, _ = fmt.Fprintln(os.Stdout, dimStyle.Render("deleted "+arg))
	case "/history":
		printLog(a.chat.Log.Messages())
	default:
		return false, errors.Errorf("unknown command %s, try /help", fields[0])
	}
	return false, nil
}

func printLog(msgs []chatclient.Message) {
	for _, m := range msgs {
		printMessage(os.Stdout, m)
	}
}
