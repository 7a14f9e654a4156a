package main

import (
	"context"

	"github.com/go-go-golems/streamchat/cmd/streamchat/listing"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/go-go-golems/streamchat/pkg/events"
	"github.com/go-go-golems/streamchat/pkg/persistence/journal"
	"github.com/go-go-golems/streamchat/pkg/redisstream"
	"github.com/pkg/errors"
)

// appSource feeds the listing commands from the settings resolved by the root
// command.
type appSource struct{}

var _ listing.Source = appSource{}

func (appSource) Sessions(ctx context.Context) ([]*chatclient.Session, error) {
	a, err := newApp(settings)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()
	if err := a.init(ctx); err != nil {
		return nil, err
	}
	return a.chat.Registry.Sessions(), nil
}

func (appSource) History(ctx context.Context, q journal.Query) ([]chatclient.ExchangeRecord, error) {
	a, err := newApp(settings)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()
	return a.journal.List(ctx, q)
}

func (appSource) Follow(ctx context.Context, fn func(chatclient.Notification) error) error {
	if settings == nil {
		return errors.New("settings not loaded")
	}
	if !settings.Redis.Enabled {
		return errors.New("watch needs the Redis transport, pass --redis-enabled")
	}
	if err := redisstream.EnsureGroupAtTail(ctx, settings.Redis.Addr, settings.EventsTopic, settings.Redis.Group); err != nil {
		return err
	}
	ps, err := events.BuildPubSub(settings.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = ps.Close() }()
	return events.Follow(ctx, ps.Subscriber, settings.EventsTopic, fn)
}
