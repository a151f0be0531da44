package cache

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/rastersource/pkg/config"
	"github.com/jaennil/guide_helper/backend/rastersource/pkg/logger"
)

// New builds the layered cache for the configured durable backend.
func New(cfg config.Cache, redisCfg config.Redis, l logger.Logger) (*LayeredCache, error) {
	switch cfg.Type {
	case "memory", "disabled":
		l.Info("using memory cache", "capacity", cfg.Capacity)
		return NewLayeredCache(cfg.Capacity, NewNoopCache(), cfg.Type, l), nil
	case "sqlite":
		l.Info("using sqlite cache", "path", cfg.SQLitePath, "capacity", cfg.Capacity)
		store, err := NewSQLiteCache(cfg.SQLitePath, l)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite cache: %w", err)
		}
		return NewLayeredCache(cfg.Capacity, store, cfg.Type, l), nil
	case "redis":
		l.Info("using redis cache", "addr", redisCfg.Addr, "capacity", cfg.Capacity)
		store, err := NewRedisCache(RedisConfig{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			TTL:      redisCfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		return NewLayeredCache(cfg.Capacity, store, cfg.Type, l), nil
	case "filesystem":
		l.Info("using filesystem cache", "dir", cfg.Dir, "capacity", cfg.Capacity)
		store, err := NewFilesystemCache(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return NewLayeredCache(cfg.Capacity, store, cfg.Type, l), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: memory, sqlite, redis, filesystem, disabled)", cfg.Type)
	}
}
