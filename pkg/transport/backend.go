package transport

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Settings holds command-channel transport configuration.
type Settings struct {
	// Enabled switches the channel from in-process (gochannel) to Redis Streams.
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Group    string `yaml:"group"`
	Consumer string `yaml:"consumer"`
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:  false,
		Addr:     "localhost:6379",
		Group:    "sessionstream",
		Consumer: "keeper-1",
	}
}

// Backend wraps transport setup concerns (in-memory or redis) and exposes the
// publisher/subscriber pair the command channel runs over. The two sides of
// the channel share no memory; messages are the only coupling.
type Backend interface {
	Publisher() message.Publisher
	Subscriber() message.Subscriber
	Close() error
}

func NewBackend(ctx context.Context, s Settings) (Backend, error) {
	if !s.Enabled {
		return newGoChannelBackend(), nil
	}
	return newRedisBackend(ctx, s)
}

type goChannelBackend struct {
	pubsub *gochannel.GoChannel
}

func newGoChannelBackend() *goChannelBackend {
	return &goChannelBackend{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			NewWatermillLogger(log.Logger),
		),
	}
}

func (b *goChannelBackend) Publisher() message.Publisher   { return b.pubsub }
func (b *goChannelBackend) Subscriber() message.Subscriber { return b.pubsub }
func (b *goChannelBackend) Close() error                   { return b.pubsub.Close() }

type redisBackend struct {
	client *redis.Client
	pub    message.Publisher
	sub    message.Subscriber
}

func newRedisBackend(ctx context.Context, s Settings) (*redisBackend, error) {
	if ctx == nil {
		return nil, errors.New("ctx is nil")
	}
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	marshaler := rstream.DefaultMarshallerUnmarshaller{}
	logger := NewWatermillLogger(log.Logger)

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "build redis publisher")
	}

	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "build redis subscriber")
	}

	return &redisBackend{client: client, pub: pub, sub: sub}, nil
}

func (b *redisBackend) Publisher() message.Publisher   { return b.pub }
func (b *redisBackend) Subscriber() message.Subscriber { return b.sub }

func (b *redisBackend) Close() error {
	if err := b.sub.Close(); err != nil {
		log.Warn().Err(err).Str("component", "transport").Msg("redis subscriber close failed")
	}
	if err := b.pub.Close(); err != nil {
		log.Warn().Err(err).Str("component", "transport").Msg("redis publisher close failed")
	}
	return b.client.Close()
}

// EnsureGroupAtTail creates the consumer group for a stream at the tail ($)
// if it doesn't exist, preventing full historical replay on first subscribe.
func EnsureGroupAtTail(ctx context.Context, addr, stream, group string) error {
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer func() { _ = client.Close() }()
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		// Ignore BUSYGROUP errors (group already exists)
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return err
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at $ (tail)")
	return nil
}
