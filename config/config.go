package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/vtex/go-oneshot/redis"
)

const envPrefix = "ONESHOT"

type Config struct {
	Admin AdminConfig `mapstructure:"admin"`
	Redis RedisConfig `mapstructure:"redis"`
	Loop  LoopConfig  `mapstructure:"loop"`
	Log   LogConfig   `mapstructure:"log"`
}

type AdminConfig struct {
	Listen string `mapstructure:"listen"`
}

// RedisConfig is optional: with no endpoint the daemon runs without a
// pub/sub source and keeps once-gates in memory only.
type RedisConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	Namespace   string        `mapstructure:"namespace"`
	Patterns    []string      `mapstructure:"patterns"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type LoopConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from path, if given, and from the environment.
// Env var overrides use prefix ONESHOT_, e.g. ONESHOT_REDIS_ENDPOINT.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("admin.listen", ":8080")
	v.SetDefault("redis.endpoint", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.namespace", "oneshot")
	v.SetDefault("redis.patterns", []string{"*"})
	v.SetDefault("redis.dial_timeout", time.Second)
	v.SetDefault("loop.capacity", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "Failed to read config file %s", path)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "Failed to decode config")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Admin.Listen == "" {
		return errors.New("admin.listen must not be empty")
	}
	if c.Loop.Capacity <= 0 {
		return errors.Errorf("loop.capacity must be positive, got %d", c.Loop.Capacity)
	}
	if c.Redis.DB < 0 {
		return errors.Errorf("redis.db must not be negative, got %d", c.Redis.DB)
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "Invalid log.level")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return errors.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

func (c RedisConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c RedisConfig) Options() redis.Options {
	return redis.Options{
		Endpoint:    c.Endpoint,
		Password:    c.Password,
		DB:          c.DB,
		Namespace:   c.Namespace,
		DialTimeout: c.DialTimeout,
	}
}

// ConfigureLogging applies c to the standard logrus logger. c must be valid.
func ConfigureLogging(c LogConfig) {
	if level, err := logrus.ParseLevel(c.Level); err == nil {
		logrus.SetLevel(level)
	}
	if c.Format == "text" {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
