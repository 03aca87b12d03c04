package docdex

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/codec"
	"github.com/kailas-cloud/docdex/internal/db"
	"github.com/kailas-cloud/docdex/internal/db/memory"
	"github.com/kailas-cloud/docdex/internal/db/redis"
	"github.com/kailas-cloud/docdex/internal/logger"
	docrepo "github.com/kailas-cloud/docdex/internal/repository/document"
	"github.com/kailas-cloud/docdex/internal/schema"
	"github.com/kailas-cloud/docdex/internal/version"
)

// DefaultDiscriminatorKey is the document key carrying the variant tag in
// union collections unless overridden.
const DefaultDiscriminatorKey = "_kind"

// Client owns the store connection and the schema registry shared by all
// collections bound through it.
type Client struct {
	store db.Store
	docs  *docrepo.Repo
	reg   *schema.Registry
	codec *codec.Codec
	log   *zap.Logger

	discriminatorKey string
	injectFields     bool
}

// New builds a client. Without a driver option it runs on the in-process
// store, which is enough for tests and single-binary tools.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := clientConfig{
		driver:           "memory",
		keyPrefix:        defaultKeyPrefix,
		discriminatorKey: DefaultDiscriminatorKey,
		readinessTimeout: 10 * time.Second,
		log:              zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(ctx, cfg.readinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("wait for store: %w", err)
	}

	reg := schema.NewRegistry()
	c := &Client{
		store:            store,
		docs:             docrepo.New(store, cfg.keyPrefix),
		reg:              reg,
		codec:            codec.New(reg),
		log:              cfg.log.Named("docdex"),
		discriminatorKey: cfg.discriminatorKey,
		injectFields:     cfg.injectFields,
	}
	c.log.Info("client ready",
		zap.String("driver", cfg.driver),
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("built", version.Date))
	return c, nil
}

// ContextWithLogger returns a context carrying the given logger. Collection
// operations invoked with it log through that logger instead of the
// client-wide one, which is how callers attach per-request loggers.
func ContextWithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return logger.ContextWithLogger(ctx, log)
}

func newStore(cfg clientConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return memory.NewStore(), nil
	case "redis", "valkey":
		s, err := redis.NewStore(cfg.redisCfg)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown driver %q", cfg.driver)
	}
}

// Ping checks store liveness.
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Close releases the store connection.
func (c *Client) Close() {
	c.store.Close()
}
