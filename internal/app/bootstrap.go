// Copyright 2026 educhain-devs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"fmt"
	"time"

	"educhain/internal/content"
	"educhain/internal/ledger"
	"educhain/internal/storage/cache"
	"educhain/internal/storage/record"
	"educhain/pkg/config"
	"educhain/pkg/log"
	"educhain/pkg/secrets"
)

// Bootstrap 统一初始化：装配日志、存储、缓存、账本与内容存储，供 api 复用
type Bootstrap struct {
	Config         *config.Config
	Logger         *log.Logger
	Stores         *record.Stores
	Cache          cache.Store
	CacheTTL       time.Duration
	Secrets        secrets.Store
	Ledger         ledger.Client
	SettleInterval time.Duration
	Content        content.Store
}

// NewBootstrap 根据配置创建 Bootstrap；账本连接失败不阻塞启动（降级运行）
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	logCfg := &log.Config{}
	if cfg != nil {
		logCfg.Level = cfg.Log.Level
		logCfg.Format = cfg.Log.Format
		logCfg.File = cfg.Log.File
	}
	logger, err := log.NewLogger(logCfg)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if cfg == nil {
		cfg = &config.Config{}
	}

	stores, err := record.NewStores(ctx, cfg.Storage.Record)
	if err != nil {
		return nil, fmt.Errorf("初始化记录存储失败: %w", err)
	}

	cacheStore, err := cache.NewCache(ctx, cfg.Storage.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化缓存失败: %w", err)
	}

	secretStore, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 secret 存储失败: %w", err)
	}

	client, err := ledger.NewClient(ctx, cfg.Ledger, secretStore)
	if err != nil {
		return nil, fmt.Errorf("初始化账本客户端失败: %w", err)
	}
	if client != nil {
		// 连接失败不致命：引擎会按降级路径处理，之后可通过补同步收敛
		if cerr := client.Connect(ctx); cerr != nil {
			logger.Warn("账本连接失败，服务以降级模式启动", "error", cerr)
		} else {
			logger.Info("账本已连接", "contract", client.ContractAddress())
		}
	}

	contentStore, err := content.NewStore(ctx, cfg.Content, secretStore)
	if err != nil {
		return nil, fmt.Errorf("初始化内容存储失败: %w", err)
	}

	return &Bootstrap{
		Config:         cfg,
		Logger:         logger,
		Stores:         stores,
		Cache:          cacheStore,
		CacheTTL:       cache.TTL(cfg.Storage.Cache),
		Secrets:        secretStore,
		Ledger:         client,
		SettleInterval: ledger.SettleInterval(cfg.Ledger),
		Content:        contentStore,
	}, nil
}

// Close 释放 Bootstrap 持有的连接
func (b *Bootstrap) Close() error {
	var first error
	if b.Ledger != nil {
		if err := b.Ledger.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.Cache != nil {
		if err := b.Cache.Close(); err != nil && first == nil {
			first = err
		}
	}
	if b.Stores != nil {
		b.Stores.Close()
	}
	return first
}
