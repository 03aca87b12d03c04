package docdex

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/docdex/internal/config"
	"github.com/kailas-cloud/docdex/internal/logger"
)

// NewFromConfigFile builds a client from a YAML config file. Values of the
// form ${VAR} are expanded from the environment before parsing.
func NewFromConfigFile(ctx context.Context, path string, opts ...Option) (*Client, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newFromConfig(ctx, cfg, opts...)
}

// newFromConfig wires a parsed config into client options. Explicit options
// take precedence over config values.
func newFromConfig(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	base := []Option{
		WithKeyPrefix(cfg.Storage.KeyPrefix),
		WithDiscriminatorKey(cfg.Binding.DiscriminatorKey),
		WithLogger(log),
	}
	switch cfg.Database.Driver {
	case "memory":
		base = append(base, WithMemory())
	case "redis":
		base = append(base, WithRedis(cfg.Database.Addrs, cfg.Database.Username, cfg.Database.Password, cfg.Database.DB))
	case "valkey":
		base = append(base, WithValkey(cfg.Database.Addrs, cfg.Database.Username, cfg.Database.Password, cfg.Database.DB))
	}
	if cfg.Binding.InjectFields {
		base = append(base, WithFieldInjection())
	}
	if cfg.Database.ReadinessTimeout > 0 {
		base = append(base, WithReadinessTimeout(time.Duration(cfg.Database.ReadinessTimeout)*time.Second))
	}

	return New(ctx, append(base, opts...)...)
}
