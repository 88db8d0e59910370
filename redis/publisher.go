package redis

import (
	"context"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vtex/go-oneshot/event"
)

// NewClient builds the go-redis client used for pub/sub.
func NewClient(opts Options) goredis.UniversalClient {
	return goredis.NewClient(&goredis.Options{
		Addr:        opts.Endpoint,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
}

// Publisher sends events to the channels of other processes, through a
// Source subscribed to the same namespace.
type Publisher struct {
	client       goredis.UniversalClient
	keyNamespace string
}

func NewPublisher(client goredis.UniversalClient, keyNamespace string) *Publisher {
	return &Publisher{client: client, keyNamespace: keyNamespace}
}

func (p *Publisher) Publish(ctx context.Context, channelID string, ev event.Event) error {
	data, err := event.Encode(channelID, ev)
	if err != nil {
		return err
	}

	if err := p.client.Publish(ctx, TopicFor(p.keyNamespace, channelID), data).Err(); err != nil {
		return errors.Wrapf(err, "Failed to publish event to channel %s", channelID)
	}
	return nil
}
