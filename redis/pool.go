package redis

import (
	"time"

	"github.com/gomodule/redigo/redis"
)

const (
	defaultDialTimeout = 1 * time.Second
	writeTimeout       = 200 * time.Millisecond
	readTimeout        = 200 * time.Millisecond
	idlePingThreshold  = 30 * time.Second
	idleConnTimeout    = 3 * time.Minute
)

// Options to reach a Redis server, shared by stores, publishers and sources.
type Options struct {
	Endpoint    string
	Password    string
	DB          int
	Namespace   string
	DialTimeout time.Duration
}

type poolOptions struct {
	MaxIdle, MaxActive int
	SetReadTimeout     bool
}

func newRedisPool(opts Options, poolOpts poolOptions) *redis.Pool {
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}

	dialOpts := []redis.DialOption{
		redis.DialConnectTimeout(dialTimeout),
		redis.DialWriteTimeout(writeTimeout),
		redis.DialDatabase(opts.DB),
	}
	if opts.Password != "" {
		dialOpts = append(dialOpts, redis.DialPassword(opts.Password))
	}
	if poolOpts.SetReadTimeout {
		dialOpts = append(dialOpts, redis.DialReadTimeout(readTimeout))
	}

	return &redis.Pool{
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", opts.Endpoint, dialOpts...)
		},
		TestOnBorrow: func(conn redis.Conn, idleSince time.Time) error {
			if time.Since(idleSince) < idlePingThreshold {
				return nil
			}
			_, err := conn.Do("PING")
			return err
		},
		MaxIdle:     poolOpts.MaxIdle,
		MaxActive:   poolOpts.MaxActive,
		Wait:        true,
		IdleTimeout: idleConnTimeout,
	}
}
