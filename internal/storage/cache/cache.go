package cache

import (
	"context"
	"fmt"
	"time"

	"educhain/pkg/config"
)

// NewCache 根据配置创建缓存，统一入口
func NewCache(ctx context.Context, cfg config.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.Addr, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TTL 缓存条目存活时间，默认 30s
func TTL(cfg config.CacheConfig) time.Duration {
	if cfg.TTL == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(cfg.TTL)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
