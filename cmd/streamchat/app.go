package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-go-golems/streamchat/pkg/auth"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/go-go-golems/streamchat/pkg/config"
	"github.com/go-go-golems/streamchat/pkg/credentials"
	"github.com/go-go-golems/streamchat/pkg/events"
	"github.com/go-go-golems/streamchat/pkg/persistence/journal"
	"github.com/go-go-golems/streamchat/pkg/transport"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// app holds everything a command needs, built from the resolved settings.
type app struct {
	settings  *config.Settings
	creds     *credentials.FileStore
	transport *transport.Client
	auth      *auth.Service
	journal   journal.Store
	pubsub    *events.PubSub
	sink      *events.Sink
	chat      *chatclient.Client
}

// newApp builds the client. Extra sinks see every notification after the bus does.
func newApp(s *config.Settings, sinks ...chatclient.EventSink) (*app, error) {
	if s == nil {
		return nil, errors.New("settings not loaded")
	}
	creds, err := credentials.NewFileStore(s.CredentialsFile)
	if err != nil {
		return nil, err
	}
	tc, err := transport.NewClient(s.BaseURL,
		transport.WithCredentials(creds),
		transport.WithTimeout(s.Timeout),
		transport.WithAuthExpiredHandler(func() {
			log.Warn().Str("component", "streamchat").Msg("credentials rejected, run `streamchat login` again")
		}),
	)
	if err != nil {
		return nil, err
	}
	codec, err := chatclient.CodecFor(s.WireFormat)
	if err != nil {
		return nil, err
	}

	a := &app{settings: s, creds: creds, transport: tc, auth: auth.NewService(tc, creds)}
	if a.journal, err = openJournal(s.JournalPath); err != nil {
		return nil, err
	}
	if a.pubsub, err = events.BuildPubSub(s.Redis); err != nil {
		_ = a.journal.Close()
		return nil, err
	}
	a.sink = events.NewSink(a.pubsub.Publisher, s.EventsTopic)

	a.chat = chatclient.New(tc,
		chatclient.WithCodec(codec),
		chatclient.WithEventSink(append(events.MultiSink{a.sink}, sinks...)),
		chatclient.WithRecorder(a.journal),
		chatclient.WithTrustBeginSessionID(s.TrustBeginSessionID),
		chatclient.WithDefaults(s.Model, s.Mode),
		chatclient.WithLogout(a.auth.Logout),
	)
	return a, nil
}

func openJournal(path string) (journal.Store, error) {
	if path == "" {
		return journal.NewInMemoryStore(), nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "create journal dir")
	}
	dsn, err := journal.DSNForFile(path)
	if err != nil {
		return nil, err
	}
	return journal.NewSQLiteStore(dsn)
}

// requireLogin fails early with a readable message instead of a 401 round trip.
func (a *app) requireLogin() error {
	if a.creds.Token() == "" {
		return errors.Errorf("not logged in (credentials file %s), run `streamchat login`", a.creds.Path())
	}
	return nil
}

// init loads the session list and starts on a pending session.
func (a *app) init(ctx context.Context) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	return a.chat.Init(ctx)
}

func (a *app) Close() error {
	a.chat.Cancel()
	var first error
	if err := a.pubsub.Close(); err != nil {
		first = err
	}
	if err := a.journal.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
