package redis

import (
	"encoding/json"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/pkg/errors"

	"github.com/vtex/go-oneshot/prefs"
)

// Store is a prefs.Store saving JSON values in Redis, under keys prefixed
// by the configured namespace.
type Store interface {
	prefs.Store
	Ping() error
	Close() error
}

func NewStore(opts Options) Store {
	pool := newRedisPool(opts, poolOptions{
		MaxIdle:        30,
		MaxActive:      70,
		SetReadTimeout: true,
	})
	return &redisStore{pool: pool, keyNamespace: opts.Namespace}
}

type redisStore struct {
	pool         *redis.Pool
	keyNamespace string
}

func (r *redisStore) Get(key string, result interface{}) (bool, error) {
	key, err := remoteKey(r.keyNamespace, key)
	if err != nil {
		return false, err
	}

	reply, err := redis.Bytes(r.doCmd("GET", key))
	if err == redis.ErrNil {
		return false, nil
	} else if err != nil {
		return false, errors.WithStack(err)
	}

	if bytesRes, isBytesPtr := result.(*[]byte); isBytesPtr {
		*bytesRes = reply
		return true, nil
	} else if err := json.Unmarshal(reply, result); err != nil {
		return false, errors.Wrap(err, "Failed to umarshal Redis response")
	}
	return true, nil
}

func (r *redisStore) Set(key string, value interface{}, ttl time.Duration) error {
	key, err := remoteKey(r.keyNamespace, key)
	if err != nil {
		return err
	}

	bytes, isBytes := value.([]byte)
	if !isBytes {
		bytes, err = json.Marshal(value)
		if err != nil {
			return errors.Wrap(err, "Failed to marshal value for saving to Redis")
		}
	}

	if _, err := r.doCmd("SET", setArgs(key, bytes, ttl)...); err != nil {
		return errors.Wrap(err, "Failed SET command on Redis")
	}
	return nil
}

func (r *redisStore) Del(key string) error {
	key, err := remoteKey(r.keyNamespace, key)
	if err != nil {
		return err
	}

	if _, err := r.doCmd("DEL", key); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (r *redisStore) Ping() error {
	if _, err := r.doCmd("PING"); err != nil {
		return errors.Wrap(err, "Redis store is unreachable")
	}
	return nil
}

func (r *redisStore) Close() error {
	return r.pool.Close()
}

func (r *redisStore) doCmd(cmd string, args ...interface{}) (interface{}, error) {
	conn := r.pool.Get()
	defer conn.Close()
	return conn.Do(cmd, args...)
}

// Redis rejects EX 0 and sub-second expirations are rounded up so that a
// short ttl doesn't turn into "never expires".
func setArgs(key string, value []byte, ttl time.Duration) []interface{} {
	args := []interface{}{key, value}
	if ttl <= 0 {
		return args
	}
	if ttl%time.Second != 0 {
		return append(args, "PX", int64((ttl+time.Millisecond-1)/time.Millisecond))
	}
	return append(args, "EX", int64(ttl/time.Second))
}
