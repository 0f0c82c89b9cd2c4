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

// Package verify 证书验证解析。
// 按记录 ID、链上 token 或内容哈希三条路径解析证书，链上链下对照给出结论。
// 账本不可用时验证降级为只看链下，不中断。
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"educhain/internal/ledger"
	"educhain/internal/storage/cache"
	"educhain/internal/storage/record"
	"educhain/pkg/errors"
	"educhain/pkg/log"
	"educhain/pkg/metrics"
)

// Verification 一次验证的结论
type Verification struct {
	// Valid 综合结论：链下有效，且链上核对过的必须链上也有效
	Valid bool `json:"valid"`
	// Certificate 链下记录；只有链上记录时为 nil
	Certificate *record.Certificate `json:"certificate,omitempty"`
	// Ledger 链上记录；未核对或链上不存在时为 nil
	Ledger *ledger.CertificateRecord `json:"ledger,omitempty"`
	// LedgerChecked 本次验证是否核对了链上
	LedgerChecked bool `json:"ledgerChecked"`
	// LedgerError 链上核对没完成的原因；核对成功时为空
	LedgerError string `json:"ledgerError,omitempty"`
	// Method 验证途径：database_only | database_and_blockchain |
	// token_id_and_blockchain | ipfs_hash_and_blockchain
	Method string `json:"verificationMethod"`
	// VerifiedAt 验证时间
	VerifiedAt time.Time `json:"verifiedAt"`
}

// Resolver 验证解析器
type Resolver struct {
	certs  record.CertificateStore
	client ledger.Client
	cache  cache.Store
	ttl    time.Duration
	logger *log.Logger
}

// NewResolver 创建验证解析器；client 与 cacheStore 都可为 nil
func NewResolver(stores *record.Stores, client ledger.Client, cacheStore cache.Store, ttl time.Duration, logger *log.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Resolver{
		certs:  stores.Certificates,
		client: client,
		cache:  cacheStore,
		ttl:    ttl,
		logger: logger,
	}
}

func (r *Resolver) ledgerReady() bool {
	return r.client != nil && r.client.Available()
}

// VerifyByID 按链下记录 ID 验证
func (r *Resolver) VerifyByID(ctx context.Context, id string) (*Verification, error) {
	return r.cached(ctx, "id", "verify:id:"+id, func(ctx context.Context) (*Verification, error) {
		cert, err := r.certs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return r.resolve(ctx, cert, "id"), nil
	})
}

// VerifyByTokenID 按链上 token 验证。
// 链下没有对应记录时返回只含链上记录的结论。
func (r *Resolver) VerifyByTokenID(ctx context.Context, tokenID int64) (*Verification, error) {
	key := fmt.Sprintf("verify:token:%d", tokenID)
	return r.cached(ctx, "token", key, func(ctx context.Context) (*Verification, error) {
		cert, err := r.certs.GetByTokenID(ctx, tokenID)
		if err == nil {
			return r.resolve(ctx, cert, "token"), nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}

		// 链下不认识这个 token：问链上
		if !r.ledgerReady() {
			return nil, errors.Wrapf(errors.ErrNotFound, "token %d unknown and ledger unavailable", tokenID)
		}
		rec, lerr := r.client.VerifyCertificate(ctx, tokenID)
		if lerr != nil {
			return nil, lerr
		}
		v := &Verification{
			Valid:         rec.Valid,
			Ledger:        rec,
			LedgerChecked: true,
			Method:        "token_id_and_blockchain",
			VerifiedAt:    time.Now().UTC(),
		}
		// 链上的证书也许在链下以内容哈希找得到：补全并自愈
		if rec.ContentHash != "" {
			if cert, herr := r.certs.GetByContentHash(ctx, rec.ContentHash); herr == nil {
				r.heal(ctx, cert, rec)
				v.Certificate = cert
				v.Valid = cert.IsValid && rec.Valid
			}
		}
		return v, nil
	})
}

// VerifyByContentHash 按内容哈希验证
func (r *Resolver) VerifyByContentHash(ctx context.Context, hash string) (*Verification, error) {
	return r.cached(ctx, "hash", "verify:hash:"+hash, func(ctx context.Context) (*Verification, error) {
		cert, err := r.certs.GetByContentHash(ctx, hash)
		if err == nil {
			return r.resolve(ctx, cert, "hash"), nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}

		if !r.ledgerReady() {
			return nil, errors.Wrapf(errors.ErrNotFound, "content hash %s unknown and ledger unavailable", hash)
		}
		rec, lerr := r.client.VerifyCertificateByContentHash(ctx, hash)
		if lerr != nil {
			return nil, lerr
		}
		return &Verification{
			Valid:         rec.Valid,
			Ledger:        rec,
			LedgerChecked: true,
			Method:        "ipfs_hash_and_blockchain",
			VerifiedAt:    time.Now().UTC(),
		}, nil
	})
}

// resolve 已有链下记录时的核对：链上可用就对照，不可用只看链下
func (r *Resolver) resolve(ctx context.Context, cert *record.Certificate, lookup string) *Verification {
	v := &Verification{
		Valid:       cert.IsValid,
		Certificate: cert,
		VerifiedAt:  time.Now().UTC(),
	}
	defer func() { v.Method = methodTag(lookup, v.LedgerChecked) }()

	if !r.ledgerReady() {
		v.LedgerError = "ledger unavailable"
		return v
	}

	var rec *ledger.CertificateRecord
	var err error
	switch {
	case cert.Ledger.TokenID != nil:
		rec, err = r.client.VerifyCertificate(ctx, *cert.Ledger.TokenID)
	case cert.ContentHash != "":
		rec, err = r.client.VerifyCertificateByContentHash(ctx, cert.ContentHash)
	default:
		return v
	}

	switch {
	case err == nil:
		r.heal(ctx, cert, rec)
		v.Ledger = rec
		v.LedgerChecked = true
		v.Valid = cert.IsValid && rec.Valid
	case errors.IsNotFound(err):
		// 链上确认没有：记录仍按链下结论返回，但核对算完成
		v.LedgerChecked = true
	default:
		// 账本故障不推翻链下结论，降级返回并带上失败原因
		v.LedgerError = err.Error()
		r.logger.Warn("ledger check failed during verification",
			"certificate", cert.ID, "err", err)
	}
	return v
}

// methodTag 对外的验证途径标签
func methodTag(lookup string, ledgerChecked bool) string {
	if !ledgerChecked {
		return "database_only"
	}
	switch lookup {
	case "token":
		return "token_id_and_blockchain"
	case "hash":
		return "ipfs_hash_and_blockchain"
	default:
		return "database_and_blockchain"
	}
}

// heal 把链上状态并入链下记录：认领缺失的 token、同步吊销
func (r *Resolver) heal(ctx context.Context, cert *record.Certificate, rec *ledger.CertificateRecord) {
	changed := false
	if !cert.Ledger.IsMinted || cert.Ledger.TokenID == nil {
		cert.Ledger.IsMinted = true
		cert.Ledger.TokenID = &rec.TokenID
		cert.Ledger.MintedTo = rec.StudentAddress
		if cert.Ledger.MintedAt == nil {
			at := rec.IssuedAt
			cert.Ledger.MintedAt = &at
		}
		changed = true
	}
	if !rec.Valid && cert.IsValid {
		now := time.Now().UTC()
		cert.IsValid = false
		cert.RevokedAt = &now
		changed = true
	}
	if !changed {
		return
	}
	if err := r.certs.Update(ctx, cert); err != nil {
		r.logger.Warn("failed to persist self-heal", "certificate", cert.ID, "err", err)
		return
	}
	r.logger.Info("certificate record healed from ledger",
		"certificate", cert.ID, "token", rec.TokenID)
}

// cached 读穿缓存并记录指标
func (r *Resolver) cached(ctx context.Context, method, key string, fn func(ctx context.Context) (*Verification, error)) (*Verification, error) {
	metrics.VerificationTotal.With(prometheus.Labels{"method": method}).Inc()

	if r.cache != nil {
		var v Verification
		if err := r.cache.Get(ctx, key, &v); err == nil {
			return &v, nil
		}
	}

	v, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		if cerr := r.cache.Set(ctx, key, v, r.ttl); cerr != nil {
			r.logger.Warn("failed to cache verification", "key", key, "err", cerr)
		}
	}
	return v, nil
}
