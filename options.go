package docdex

import (
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/db/redis"
)

const defaultKeyPrefix = "docdex:"

type clientConfig struct {
	driver           string
	redisCfg         redis.Config
	keyPrefix        string
	discriminatorKey string
	injectFields     bool
	readinessTimeout time.Duration
	log              *zap.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

// WithRedis connects the client to a Redis instance with RedisJSON support.
func WithRedis(addrs []string, username, password string, dbIdx int) Option {
	return func(c *clientConfig) {
		c.driver = "redis"
		c.redisCfg = redis.Config{Addrs: addrs, Username: username, Password: password, DB: dbIdx}
	}
}

// WithValkey connects the client to a Valkey instance. Valkey speaks the
// same protocol and JSON command set as Redis, only the name differs.
func WithValkey(addrs []string, username, password string, dbIdx int) Option {
	return func(c *clientConfig) {
		c.driver = "valkey"
		c.redisCfg = redis.Config{Addrs: addrs, Username: username, Password: password, DB: dbIdx}
	}
}

// WithMemory backs the client with the in-process store. This is the
// default when no driver option is given.
func WithMemory() Option {
	return func(c *clientConfig) { c.driver = "memory" }
}

// WithKeyPrefix overrides the prefix prepended to every document key.
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) { c.keyPrefix = prefix }
}

// WithDiscriminatorKey overrides the document key that carries the variant
// tag in union collections.
func WithDiscriminatorKey(key string) Option {
	return func(c *clientConfig) { c.discriminatorKey = key }
}

// WithFieldInjection enables field references on every collection bound
// through this client. Individual collections can also opt in via
// WithInjectedFields.
func WithFieldInjection() Option {
	return func(c *clientConfig) { c.injectFields = true }
}

// WithReadinessTimeout bounds the startup wait for the store to answer pings.
func WithReadinessTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.readinessTimeout = d }
}

// WithLogger replaces the default nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *clientConfig) { c.log = log }
}
