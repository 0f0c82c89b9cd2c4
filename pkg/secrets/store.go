// Copyright 2026 educhain-devs
// Secret management abstraction

package secrets

import (
	"context"
)

// Store Secret 存储接口（账本签名凭证、pinning 服务密钥等）
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)

	// Set 设置 secret 值
	Set(ctx context.Context, key string, value string) error

	// Delete 删除 secret
	Delete(ctx context.Context, key string) error

	// List 列出所有 secret keys
	List(ctx context.Context, prefix string) ([]string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider string      `yaml:"provider"` // vault | env | memory
	Vault    VaultConfig `yaml:"vault"`
}

// NewStore 创建 Secret Store；未知 provider 回退 env（部署最常见形态）
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "memory":
		return NewMemoryStore(), nil
	case "vault":
		return NewVaultStore(config.Vault)
	case "", "env":
		return NewEnvStore(), nil
	default:
		return NewEnvStore(), nil
	}
}
