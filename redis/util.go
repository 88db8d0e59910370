package redis

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func logError(err error, code, namespace, key, msg string) {
	logger := logrus.WithError(err).
		WithFields(logrus.Fields{
			"code":         code,
			"category":     "redis_events",
			"keyNamespace": namespace,
		})
	if key != "" {
		logger = logger.WithField("key", key)
	}
	logger.Error(msg)
}

func remoteKey(ns, key string) (string, error) {
	if key == "" {
		return "", errors.Errorf("Redis key must not be empty (namespace: %s)", ns)
	}
	if ns == "" {
		return key, nil
	}
	return ns + ":" + key, nil
}

// TopicFor is the pub/sub topic events for channelID are published on.
func TopicFor(ns, channelID string) string {
	key, _ := remoteKey(ns, "events:"+channelID)
	return key
}

func topicPatterns(ns string, patterns []string) []string {
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	topics := make([]string, len(patterns))
	for i, p := range patterns {
		topics[i] = TopicFor(ns, p)
	}
	return topics
}
