package prefs

import (
	"time"

	gocache "github.com/pmylund/go-cache"

	"github.com/vtex/go-oneshot/reflext"
)

const memoryCleanupInterval = 10 * time.Minute

// NewMemory returns a process-local store. Values are kept as they are, so
// Get requires result to point to a type the stored value is assignable to.
func NewMemory() Store {
	return &memStore{gocache.New(gocache.NoExpiration, memoryCleanupInterval)}
}

type memStore struct {
	cache *gocache.Cache
}

func (s *memStore) Get(key string, result interface{}) (bool, error) {
	if err := ensureValidKey(key); err != nil {
		return false, err
	}

	value, found := s.cache.Get(key)
	if !found {
		return false, nil
	}
	return true, reflext.SetPointer(result, value)
}

func (s *memStore) Set(key string, value interface{}, ttl time.Duration) error {
	if err := ensureValidKey(key); err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *memStore) Del(key string) error {
	if err := ensureValidKey(key); err != nil {
		return err
	}
	s.cache.Delete(key)
	return nil
}
