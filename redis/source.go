package redis

import (
	"context"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vtex/go-oneshot/event"
	"github.com/vtex/go-oneshot/worker"
)

// Sink receives events decoded from Redis. *event.Pool is the usual one.
type Sink interface {
	Emit(id string, ev event.Event) error
}

// Source forwards events published on Redis to a Sink. When a loop is given
// every emit is posted to it, keeping channel handlers on a single goroutine
// instead of the Redis receiving one.
type Source struct {
	client       goredis.UniversalClient
	keyNamespace string
	sink         Sink
	loop         *worker.Loop
}

func NewSource(client goredis.UniversalClient, keyNamespace string, sink Sink, loop *worker.Loop) *Source {
	return &Source{
		client:       client,
		keyNamespace: keyNamespace,
		sink:         sink,
		loop:         loop,
	}
}

// Run subscribes to the topics of the channels matching patterns (all of
// them when empty) and forwards messages until ctx is done. Connection drops
// are handled by go-redis, which resubscribes on reconnection.
func (s *Source) Run(ctx context.Context, patterns []string) error {
	topics := topicPatterns(s.keyNamespace, patterns)
	pubsub := s.client.PSubscribe(ctx, topics...)
	defer pubsub.Close()

	// Wait for confirmation so that subscription errors surface right away.
	if _, err := pubsub.Receive(ctx); err != nil {
		return errors.Wrapf(err, "Failed to subscribe to event topics %v", topics)
	}
	logrus.WithFields(logrus.Fields{
		"code":     "pubsub_subscribed",
		"category": "redis_events",
		"topics":   topics,
	}).Info("Listening for remote events")

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			s.handle(msg.Channel, []byte(msg.Payload))
		}
	}
}

func (s *Source) handle(topic string, payload []byte) {
	env, ev, err := event.Decode(payload)
	if err != nil {
		logError(err, "pubsub_decode_error", s.keyNamespace, topic, "Dropping undecodable event message")
		return
	}
	if expected := TopicFor(s.keyNamespace, env.Channel); expected != topic {
		logError(errors.Errorf("expected topic %s", expected), "pubsub_topic_mismatch", s.keyNamespace, topic,
			"Dropping event published on another channel's topic")
		return
	}

	emit := func() {
		if err := s.sink.Emit(env.Channel, ev); err != nil {
			logError(err, "pubsub_emit_error", s.keyNamespace, topic, "Failed to emit remote event")
		}
	}
	if s.loop == nil {
		emit()
		return
	}
	if !s.loop.Post(emit) {
		logError(errors.New("worker loop stopped"), "pubsub_loop_stopped", s.keyNamespace, topic, "Dropping remote event")
	}
}
