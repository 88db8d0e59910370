// Package prefs models preferences as an injected key-value store instead of
// process-wide state. Values are JSON-serializable; a ttl <= 0 means the
// value never expires.
package prefs

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Store interface {
	Get(key string, result interface{}) (hit bool, err error)
	Set(key string, value interface{}, ttl time.Duration) error
	Del(key string) error
}

// ensureValidKey centralizes checking of keys that is repeated in many functions.
func ensureValidKey(key string) error {
	if key == "" {
		return errors.Errorf("Preference key must not be empty")
	}
	return nil
}

func logger(category, code, key string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"category": category,
		"key":      key,
		"code":     code,
	})
}
