package prefs

import (
	"encoding/json"
	"time"

	"github.com/die-net/lrucache"
	"github.com/gregjones/httpcache"
	"github.com/pkg/errors"
)

const lruLogCategory = "lru_prefs"

// NewLRU returns a size-bounded store evicting least recently used entries
// once maxBytes is exceeded. Entries older than maxAge are dropped regardless
// of their own ttl; maxAge <= 0 disables that limit.
func NewLRU(maxBytes int64, maxAge time.Duration) Store {
	return FromHTTPCache(lrucache.New(maxBytes, int64(maxAge/time.Second)))
}

// FromHTTPCache adapts any byte cache following the httpcache interface
// (memcache, disk, leveldb backends...) into a Store.
func FromHTTPCache(c httpcache.Cache) Store {
	return &byteStore{cache: c}
}

type byteStore struct {
	cache httpcache.Cache
}

func (s *byteStore) Get(key string, result interface{}) (bool, error) {
	if err := ensureValidKey(key); err != nil {
		return false, err
	}

	bytes, found := s.cache.Get(key)
	if !found {
		return false, nil
	}

	var stored storedValue
	if err := json.Unmarshal(bytes, &stored); err != nil {
		logger(lruLogCategory, "corrupt_entry", key).WithError(err).Warn("Dropping corrupt preference entry")
		s.cache.Delete(key)
		return false, errors.Wrapf(err, "Corrupt preference entry %s", key)
	}

	if !stored.Fresh() {
		s.cache.Delete(key)
		return false, nil
	}
	if err := json.Unmarshal(stored.Value, result); err != nil {
		return false, errors.Wrapf(err, "Unable to save preference %s in result variable", key)
	}
	return true, nil
}

func (s *byteStore) Set(key string, value interface{}, ttl time.Duration) error {
	if err := ensureValidKey(key); err != nil {
		return err
	}

	stored, err := newStoredValue(value, ttl)
	if err != nil {
		return errors.Wrapf(err, "Failed to marshal preference %s", key)
	}
	bytes, err := json.Marshal(stored)
	if err != nil {
		return errors.Wrapf(err, "Failed to marshal preference %s", key)
	}

	s.cache.Set(key, bytes)
	return nil
}

func (s *byteStore) Del(key string) error {
	if err := ensureValidKey(key); err != nil {
		return err
	}
	s.cache.Delete(key)
	return nil
}
