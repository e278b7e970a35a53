// Package eventbus carries canonical engine events from engines to the
// per-chat stream coordinators over watermill topics.
package eventbus

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/odosui/agora/pkg/engines"
	"github.com/odosui/agora/pkg/redisstream"
	"github.com/pkg/errors"
)

// Topic returns the bus topic for a chat.
func Topic(chatID string) string {
	return "chat:" + chatID
}

// Bus is a publisher/subscriber pair plus the hooks its backend needs.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	prepare    func(ctx context.Context, topic string) error
	close      func() error
}

// New builds a Redis Streams bus when s.Enabled, an in-process bus otherwise.
func New(s redisstream.Settings, logger watermill.LoggerAdapter) (*Bus, error) {
	if !s.Enabled {
		return NewInMemory(logger), nil
	}
	ps, err := redisstream.Build(s, logger)
	if err != nil {
		return nil, err
	}
	return &Bus{
		publisher:  ps.Publisher,
		subscriber: ps.Subscriber,
		prepare:    ps.Prepare,
		close:      ps.Close,
	}, nil
}

// NewInMemory returns a gochannel bus. Publish blocks until every subscriber
// acked, which keeps per-topic delivery in publish order.
func NewInMemory(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	gc := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		BlockPublishUntilSubscriberAck: true,
	}, logger)
	return &Bus{publisher: gc, subscriber: gc, close: gc.Close}
}

// Publish encodes ev onto the chat's topic.
func (b *Bus) Publish(chatID string, ev engines.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("chat_id", chatID)
	if err := b.publisher.Publish(Topic(chatID), msg); err != nil {
		return errors.Wrapf(err, "eventbus: publish %s", Topic(chatID))
	}
	return nil
}

// Subscribe starts consuming the chat's topic. The subscription is registered
// before Subscribe returns; it ends when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context, chatID string) (<-chan *message.Message, error) {
	topic := Topic(chatID)
	if b.prepare != nil {
		if err := b.prepare(ctx, topic); err != nil {
			return nil, err
		}
	}
	ch, err := b.subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, errors.Wrapf(err, "eventbus: subscribe %s", topic)
	}
	return ch, nil
}

func (b *Bus) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}
