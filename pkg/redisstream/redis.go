// Package redisstream builds Watermill publishers and subscribers on Redis Streams.
package redisstream

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func newClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func BuildPublisher(s Settings, logger watermill.LoggerAdapter) (message.Publisher, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return rstream.NewPublisher(rstream.PublisherConfig{
		Client:     newClient(s.Addr),
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, logger)
}

// BuildSubscriber returns a subscriber bound to the configured consumer group/name.
func BuildSubscriber(s Settings, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        newClient(s.Addr),
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
// This prevents full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := newClient(addr)
	defer func() { _ = client.Close() }()

	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if isBusyGroup(err) {
			return nil
		}
		return errors.Wrapf(err, "create consumer group %s on %s", group, stream)
	}
	log.Info().Str("component", "redisstream").Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}

// isBusyGroup matches the error redis returns when the group already exists.
func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}
