package ledger

import (
	"context"
	"fmt"
	"time"

	"educhain/pkg/config"
	"educhain/pkg/errors"
	"educhain/pkg/secrets"
)

// NewClient 根据配置创建账本客户端。
// type 为空表示未配置账本：返回 (nil, nil)，上层按降级模式运行。
func NewClient(ctx context.Context, cfg config.LedgerConfig, sec secrets.Store) (Client, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "fake":
		return NewFakeClient(cfg.ContractAddress), nil
	case "gateway":
		signerKey := ""
		if cfg.SignerSecretKey != "" && sec != nil {
			v, err := sec.Get(ctx, cfg.SignerSecretKey)
			if err != nil && !errors.IsNotFound(err) {
				return nil, fmt.Errorf("ledger: load signer credential: %w", err)
			}
			signerKey = v
		}
		timeout := parseDuration(cfg.CallTimeout, 30*time.Second)
		return NewGatewayClient(cfg.Endpoint, cfg.ContractAddress, signerKey, timeout)
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", cfg.Type)
	}
}

// SettleInterval 批量同步的落块等待间隔，默认 2s
func SettleInterval(cfg config.LedgerConfig) time.Duration {
	return parseDuration(cfg.SettleInterval, 2*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
