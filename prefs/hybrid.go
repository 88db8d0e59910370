package prefs

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const (
	hybridLogCategory = "hybrid_prefs"
)

// Hybrid reads through a local store in front of a remote one. The remote
// copy carries the expiration so that local copies pulled from it expire at
// the same time on every instance. Concurrent misses for the same key share
// a single remote fetch.
func Hybrid(local, remote Store) Store {
	return &hybridStore{local: local, remote: remote}
}

type hybridStore struct {
	local  Store
	remote Store

	fetches singleflight.Group
}

type remoteFetch struct {
	found bool
	data  storedValue
}

func (s *hybridStore) Get(key string, result interface{}) (bool, error) {
	if err := ensureValidKey(key); err != nil {
		return false, err
	}

	var jsonValue json.RawMessage
	found, localErr := s.local.Get(key, &jsonValue)
	if localErr != nil {
		// Log, but fall back to remote store to try to avoid disrupting the caller.
		logGetLocalDataError(key, false, localErr)
	} else if found {
		localErr = json.Unmarshal(jsonValue, result)
		if localErr == nil {
			return true, nil
		}
		logGetLocalDataError(key, true, localErr)
	}

	fetched, err, _ := s.fetches.Do(key, func() (interface{}, error) {
		var f remoteFetch
		var err error
		f.found, err = s.remote.Get(key, &f.data)
		return f, err
	})
	if err != nil {
		return false, errors.Wrapf(err, "Unable to fetch preference from remote store")
	}
	remoteData := fetched.(remoteFetch).data
	if !fetched.(remoteFetch).found || !remoteData.Fresh() {
		return false, localErr
	}

	if err := json.Unmarshal(remoteData.Value, result); err != nil {
		return false, errors.Wrapf(err, "Unable to save retrieved preference in result variable")
	}

	// This accounts for possible clock differences, ensuring we never write to
	// the local store with a negative ttl.
	var localSetErr error
	if !remoteData.Expires() {
		localSetErr = s.local.Set(key, remoteData.Value, 0)
	} else if ttl := remoteData.TTL(); ttl > 0 {
		localSetErr = s.local.Set(key, remoteData.Value, ttl)
	}
	if localSetErr != nil {
		logSetLocalDataError(key, localSetErr)
	}
	return true, nil
}

func (s *hybridStore) Set(key string, value interface{}, ttl time.Duration) error {
	if err := ensureValidKey(key); err != nil {
		return err
	}

	remoteData, err := newStoredValue(value, ttl)
	if err != nil {
		return errors.Wrapf(err, "Failed to save preference")
	}

	if err := s.local.Set(key, remoteData.Value, ttl); err != nil {
		return errors.Wrapf(err, "Failed to save preference into local store")
	}
	if err := s.remote.Set(key, remoteData, ttl); err != nil {
		return errors.Wrapf(err, "Failed to save preference into remote store")
	}
	return nil
}

func (s *hybridStore) Del(key string) error {
	if err := ensureValidKey(key); err != nil {
		return err
	}

	localErr := s.local.Del(key)
	if err := s.remote.Del(key); err != nil {
		return errors.Wrapf(err, "Failed to delete preference from remote store")
	}
	return errors.Wrapf(localErr, "Failed to delete preference from local store")
}

func logGetLocalDataError(key string, found bool, err error) {
	logger(hybridLogCategory, "get_local_error", key).
		WithField("isHit", found).
		WithError(err).
		Error("Failed to get preference from local store")
}

func logSetLocalDataError(key string, err error) {
	logger(hybridLogCategory, "set_local_error", key).
		WithError(err).
		Error("Failed to copy remote preference into local store")
}
