package events

import (
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/streamchat/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// PubSub bundles the publisher and subscriber the CLI wires notifications through.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	closers    []func() error
}

func (p *PubSub) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BuildPubSub returns a Redis Streams pub/sub when s.Enabled and an in-process
// go channel otherwise.
func BuildPubSub(s redisstream.Settings) (*PubSub, error) {
	logger := NewWatermillLogger(log.Logger)
	if !s.Enabled {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
		return &PubSub{Publisher: ch, Subscriber: ch, closers: []func() error{ch.Close}}, nil
	}

	pub, err := redisstream.BuildPublisher(s, logger)
	if err != nil {
		return nil, errors.Wrap(err, "redis publisher")
	}
	sub, err := redisstream.BuildSubscriber(s, logger)
	if err != nil {
		_ = pub.Close()
		return nil, errors.Wrap(err, "redis subscriber")
	}
	return &PubSub{Publisher: pub, Subscriber: sub, closers: []func() error{pub.Close, sub.Close}}, nil
}
