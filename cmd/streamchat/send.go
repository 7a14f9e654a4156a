package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type sendFlags struct {
	session string
	sync    bool
	render  bool
	copy    bool
	stats   bool
}

func (f *sendFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.sync, "sync", false, "Use the single-shot endpoint instead of streaming")
	cmd.Flags().BoolVar(&f.render, "render", false, "Render the finished reply as markdown (terminal only)")
	cmd.Flags().BoolVar(&f.copy, "copy", false, "Copy the finished reply to the clipboard")
	cmd.Flags().BoolVar(&f.stats, "stats", false, "Print token, line and byte counts of the reply")
}

func newSendCommand() *cobra.Command {
	var flags sendFlags
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message and print the reply as it streams",
		Long:  "Send one message. Without arguments the message is read from stdin. Ctrl-C cancels the reply.",
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			if content == "" {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return errors.Wrap(err, "read stdin")
				}
				content = string(b)
			}

			printer := &deltaPrinter{w: os.Stdout}
			a, err := newApp(settings, printer)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			if err := a.init(ctx); err != nil {
				return err
			}
			if flags.session != "" {
				if err := a.chat.SelectSession(ctx, flags.session); err != nil {
					return err
				}
			}
			_, err = runExchange(ctx, a, printer, content, flags)
			return err
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&flags.session, "session", "", "Continue an existing session instead of starting a new one")
	return cmd
}

// runExchange sends content and prints the outcome. SIGINT cancels the exchange
// instead of killing the process.
func runExchange(ctx context.Context, a *app, printer *deltaPrinter, content string, flags sendFlags) (*chatclient.SendResult, error) {
	render := flags.render && isTerminal(os.Stdout)
	printer.reset(!render)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	var res *chatclient.SendResult
	done := make(chan struct{})
	eg := errgroup.Group{}
	eg.Go(func() error {
		defer close(done)
		var err error
		if flags.sync {
			res, err = a.chat.SendSync(ctx, content, chatclient.SendOptions{})
		} else {
			res, err = a.chat.Send(ctx, content, chatclient.SendOptions{})
		}
		return err
	})
	eg.Go(func() error {
		select {
		case <-done:
		case <-sigCtx.Done():
			if ctx.Err() == nil {
				log.Info().Str("component", "streamchat").Msg("interrupted, cancelling reply")
				a.chat.Cancel()
			}
		}
		return nil
	})
	err := eg.Wait()
	if res == nil {
		return nil, err
	}

	if render || !printer.printedAny() {
		reply := res.Reply.Content
		if render {
			reply = renderMarkdown(reply)
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s\n%s\n", roleLabel(chatclient.RoleAssistant), reply)
	}
	printOutcome(os.Stderr, res)
	if err != nil {
		return res, err
	}

	if flags.stats {
		if serr := printStats(os.Stderr, res.Reply.Content); serr != nil {
			log.Warn().Err(serr).Msg("could not compute stats")
		}
	}
	if flags.copy && res.State == chatclient.StateCompleted {
		if cerr := copyToClipboard(res.Reply.Content); cerr != nil {
			return res, cerr
		}
	}
	return res, nil
}

func printOutcome(w io.Writer, res *chatclient.SendResult) {
	switch res.State {
	case chatclient.StateCompleted:
		_, _ = fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("session %s", res.SessionID)))
	case chatclient.StateCancelled:
		_, _ = fmt.Fprintln(w, dimStyle.Render("cancelled"))
	case chatclient.StateFailed:
		_, _ = fmt.Fprintln(w, errorStyle.Render("failed"))
	case chatclient.StateIdle, chatclient.StateAwaiting, chatclient.StateStreaming:
	}
}
