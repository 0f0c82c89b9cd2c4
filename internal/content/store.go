// Package content 证书内容的内容寻址存储。
// 证书 JSON 固定到 pinning 服务后得到内容哈希，作为链上与链下记录的共同锚点。
package content

import (
	"context"
	"fmt"

	"educhain/pkg/config"
	"educhain/pkg/secrets"
)

// Store 内容寻址存储
type Store interface {
	// PinJSON 固定 JSON 内容并返回内容哈希
	PinJSON(ctx context.Context, name string, payload interface{}) (string, error)
	// GatewayURL 内容哈希的公共读取地址；无公共网关时返回空串
	GatewayURL(hash string) string
}

// NewStore 根据配置创建内容存储。
// type 为空表示未配置 pinning 服务：用派生 mock 哈希保持流程可用。
func NewStore(ctx context.Context, cfg config.ContentConfig, sec secrets.Store) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(cfg.Gateway), nil
	case "pinata":
		apiKey, secretKey := "", ""
		if sec != nil {
			if cfg.APIKeyRef != "" {
				if v, err := sec.Get(ctx, cfg.APIKeyRef); err == nil {
					apiKey = v
				}
			}
			if cfg.SecretRef != "" {
				if v, err := sec.Get(ctx, cfg.SecretRef); err == nil {
					secretKey = v
				}
			}
		}
		return NewPinataStore(cfg.Endpoint, cfg.Gateway, apiKey, secretKey), nil
	default:
		return nil, fmt.Errorf("unsupported content store type: %s", cfg.Type)
	}
}
