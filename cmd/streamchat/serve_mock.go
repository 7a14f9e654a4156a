package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/go-go-golems/streamchat/pkg/mockbackend"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeMockCommand() *cobra.Command {
	var (
		addr       string
		chunkDelay time.Duration
		secret     string
		users      []string
	)
	cmd := &cobra.Command{
		Use:   "serve-mock",
		Short: "Run an in-memory backend that echoes messages back, for trying the client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []mockbackend.Option{
				mockbackend.WithWireFormat(settings.WireFormat),
				mockbackend.WithChunkDelay(chunkDelay),
			}
			if secret != "" {
				opts = append(opts, mockbackend.WithSecret(secret))
			}
			backend := mockbackend.New(opts...)
			for _, u := range users {
				name, password, ok := cutCredentials(u)
				if !ok {
					return errors.Errorf("--user wants name:password, got %q", u)
				}
				if _, err := backend.CreateUser(name, password); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			srv := &http.Server{Addr: addr, Handler: backend, ReadHeaderTimeout: 10 * time.Second}
			eg, ctx := errgroup.WithContext(ctx)
			eg.Go(func() error {
				log.Info().Str("component", "streamchat").Str("addr", addr).Str("wire_format", settings.WireFormat).Msg("mock backend listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			eg.Go(func() error {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			return eg.Wait()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	cmd.Flags().DurationVar(&chunkDelay, "chunk-delay", 50*time.Millisecond, "Pause between streamed words")
	cmd.Flags().StringVar(&secret, "secret", "", "Token signing secret (a fixed development secret when empty)")
	cmd.Flags().StringSliceVar(&users, "user", nil, "Pre-created user as name:password (repeatable)")
	return cmd
}

func cutCredentials(s string) (string, string, bool) {
	name, password, ok := strings.Cut(s, ":")
	return name, password, ok && name != "" && password != ""
}
