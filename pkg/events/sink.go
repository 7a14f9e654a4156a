// Package events publishes coordinator notifications on a watermill topic so
// other processes (or goroutines) can follow an exchange as it streams.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultTopic = "streamchat.notifications"

const (
	metadataKind       = "kind"
	metadataExchangeID = "exchange_id"
)

// Sink implements chatclient.EventSink over a watermill publisher.
type Sink struct {
	publisher message.Publisher
	topic     string
}

var _ chatclient.EventSink = (*Sink)(nil)

func NewSink(p message.Publisher, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{publisher: p, topic: topic}
}

func (s *Sink) Topic() string { return s.topic }

// Publish never fails the exchange; publish errors are logged.
func (s *Sink) Publish(n chatclient.Notification) {
	msg, err := EncodeNotification(n)
	if err != nil {
		log.Warn().Err(err).Str("component", "events").Msg("failed to encode notification")
		return
	}
	if err := s.publisher.Publish(s.topic, msg); err != nil {
		log.Warn().Err(err).Str("component", "events").Str("topic", s.topic).Msg("failed to publish notification")
	}
}

func EncodeNotification(n chatclient.Notification) (*message.Message, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, errors.Wrap(err, "encode notification")
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set(metadataKind, string(n.Kind))
	if n.ExchangeID != "" {
		msg.Metadata.Set(metadataExchangeID, n.ExchangeID)
	}
	return msg, nil
}

func DecodeNotification(msg *message.Message) (chatclient.Notification, error) {
	var n chatclient.Notification
	if err := json.Unmarshal(msg.Payload, &n); err != nil {
		return chatclient.Notification{}, errors.Wrapf(err, "decode notification %s", msg.UUID)
	}
	return n, nil
}

// MultiSink fans a notification out to several sinks in order.
type MultiSink []chatclient.EventSink

func (m MultiSink) Publish(n chatclient.Notification) {
	for _, s := range m {
		if s != nil {
			s.Publish(n)
		}
	}
}

// Follow subscribes to topic and calls fn for every decoded notification until
// ctx is done or fn returns an error. Every message is acked, undecodable ones
// are skipped.
func Follow(ctx context.Context, sub message.Subscriber, topic string, fn func(chatclient.Notification) error) error {
	if topic == "" {
		topic = DefaultTopic
	}
	ch, err := sub.Subscribe(ctx, topic)
	if err != nil {
		return errors.Wrapf(err, "subscribe %s", topic)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			n, err := DecodeNotification(msg)
			if err != nil {
				log.Warn().Err(err).Str("component", "events").Msg("skipping notification")
				msg.Ack()
				continue
			}
			err = fn(n)
			msg.Ack()
			if err != nil {
				return err
			}
		}
	}
}
