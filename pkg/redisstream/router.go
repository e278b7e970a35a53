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

// PubSub is a Redis Streams publisher/subscriber pair sharing one client.
type PubSub struct {
	Client     redis.UniversalClient
	Publisher  message.Publisher
	Subscriber message.Subscriber
	settings   Settings
}

// Build connects to Redis and constructs the publisher and a consumer-group
// subscriber.
func Build(s Settings, logger watermill.LoggerAdapter) (*PubSub, error) {
	if !s.Enabled {
		return nil, errors.New("redisstream: not enabled")
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redisstream: publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		_ = client.Close()
		return nil, errors.Wrap(err, "redisstream: subscriber")
	}

	return &PubSub{Client: client, Publisher: pub, Subscriber: sub, settings: s}, nil
}

// Prepare creates the consumer group for topic at the stream tail so a fresh
// subscriber does not replay history.
func (p *PubSub) Prepare(ctx context.Context, topic string) error {
	return EnsureGroupAtTail(ctx, p.Client, topic, p.settings.Group)
}

func (p *PubSub) Close() error {
	var firstErr error
	for _, c := range []func() error{p.Subscriber.Close, p.Publisher.Close, p.Client.Close} {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// EnsureGroupAtTail creates the consumer group for a given stream at the tail ($) if it doesn't exist.
func EnsureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// group already exists
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "redisstream: create group %s on %s", group, stream)
	}
	log.Info().Str("component", "redisstream").Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
