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

package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"

	"educhain/pkg/errors"
	"educhain/pkg/metrics"
	"educhain/pkg/tracing"
)

// GatewayClient 链网关客户端：通过 HTTP 网关访问证书合约。
// 网关持有 RPC 节点连接并代为签名广播交易；签名方密钥只在
// Connect 时校验，不落盘。写入类调用在客户端侧串行化，保证
// 单签名方的 nonce 顺序。
type GatewayClient struct {
	endpoint  string
	contract  string
	signerKey string
	client    *resty.Client

	mu        sync.Mutex // 串行化写入类调用
	available bool
}

// NewGatewayClient 创建链网关客户端；callTimeout 为单次调用上限
func NewGatewayClient(endpoint, contract, signerKey string, callTimeout time.Duration) (*GatewayClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("ledger: gateway endpoint is required")
	}
	if contract == "" {
		return nil, fmt.Errorf("ledger: contract address is required")
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}

	client := resty.New()
	client.SetTimeout(callTimeout)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)
	// 只重试网络层错误；合约拒绝重试没有意义
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil || r.StatusCode() >= http.StatusInternalServerError
	})

	return &GatewayClient{
		endpoint:  strings.TrimRight(endpoint, "/"),
		contract:  contract,
		signerKey: signerKey,
		client:    client,
	}, nil
}

// Connect 握手并校验签名方凭据
func (g *GatewayClient) Connect(ctx context.Context) error {
	if g.signerKey == "" {
		return errors.Wrap(errors.ErrLedgerUnavailable, "signer credential is not configured")
	}

	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("X-Signer-Key", g.signerKey).
		SetBody(map[string]string{"contract": g.contract}).
		Post(g.endpoint + "/v1/session")
	if err != nil {
		return errors.Wrapf(errors.ErrLedgerUnavailable, "connect gateway: %v", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.Wrapf(errors.ErrLedgerUnavailable, "gateway handshake: %s", resp.String())
	}

	g.mu.Lock()
	g.available = true
	g.mu.Unlock()
	return nil
}

// Close 关闭会话
func (g *GatewayClient) Close() error {
	g.mu.Lock()
	g.available = false
	g.mu.Unlock()
	return nil
}

// Available 会话是否可用
func (g *GatewayClient) Available() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.available
}

// ContractAddress 目标合约地址
func (g *GatewayClient) ContractAddress() string {
	return g.contract
}

// QueryInstitution 查询机构链上状态
func (g *GatewayClient) QueryInstitution(ctx context.Context, wallet string) (*InstitutionStatus, error) {
	var out InstitutionStatus
	err := g.call(ctx, "query_institution", func(ctx context.Context) error {
		resp, err := g.client.R().
			SetContext(ctx).
			Get(g.endpoint + "/v1/institutions/" + strings.ToLower(wallet))
		if err != nil {
			return errors.Wrapf(errors.ErrLedgerUnavailable, "query institution: %v", err)
		}
		if err := g.classify(resp); err != nil {
			return err
		}
		return g.decode(resp, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterInstitution 注册机构
func (g *GatewayClient) RegisterInstitution(ctx context.Context, wallet, name string) (*TxResult, error) {
	var out TxResult
	err := g.write(ctx, "register_institution", func(ctx context.Context) error {
		resp, err := g.client.R().
			SetContext(ctx).
			SetHeader("X-Signer-Key", g.signerKey).
			SetBody(map[string]string{"wallet": wallet, "name": name}).
			Post(g.endpoint + "/v1/institutions")
		if err != nil {
			return errors.Wrapf(errors.ErrLedgerUnavailable, "register institution: %v", err)
		}
		if err := g.classify(resp); err != nil {
			return err
		}
		return g.decode(resp, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthorizeInstitution 授权机构发证
func (g *GatewayClient) AuthorizeInstitution(ctx context.Context, wallet string) (*TxResult, error) {
	var out TxResult
	err := g.write(ctx, "authorize_institution", func(ctx context.Context) error {
		resp, err := g.client.R().
			SetContext(ctx).
			SetHeader("X-Signer-Key", g.signerKey).
			Post(g.endpoint + "/v1/institutions/" + strings.ToLower(wallet) + "/authorize")
		if err != nil {
			return errors.Wrapf(errors.ErrLedgerUnavailable, "authorize institution: %v", err)
		}
		if err := g.classify(resp); err != nil {
			return err
		}
		return g.decode(resp, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// IssueCertificate 铸造证书
func (g *GatewayClient) IssueCertificate(ctx context.Context, issuerWallet string, req IssueRequest) (*IssueResult, error) {
	var out IssueResult
	err := g.write(ctx, "issue_certificate", func(ctx context.Context) error {
		body := map[string]interface{}{
			"issuerWallet":   issuerWallet,
			"studentAddress": req.StudentAddress,
			"studentName":    req.StudentName,
			"courseName":     req.CourseName,
			"grade":          req.Grade,
			"contentHash":    req.ContentHash,
			"completionDate": req.CompletionDate.Unix(),
		}
		resp, err := g.client.R().
			SetContext(ctx).
			SetHeader("X-Signer-Key", g.signerKey).
			SetBody(body).
			Post(g.endpoint + "/v1/certificates")
		if err != nil {
			return errors.Wrapf(errors.ErrLedgerUnavailable, "issue certificate: %v", err)
		}
		if err := g.classify(resp); err != nil {
			return err
		}
		return g.decode(resp, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCertificate 按 tokenId 验证
func (g *GatewayClient) VerifyCertificate(ctx context.Context, tokenID int64) (*CertificateRecord, error) {
	var out CertificateRecord
	err := g.call(ctx, "verify_certificate", func(ctx context.Context) error {
		resp, err := g.client.R().
			SetContext(ctx).
			Get(fmt.Sprintf("%s/v1/certificates/%d", g.endpoint, tokenID))
		if err != nil {
			return errors.Wrapf(errors.ErrLedgerUnavailable, "verify certificate: %v", err)
		}
		if err := g.classify(resp); err != nil {
			return err
		}
		return g.decode(resp, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyCertificateByContentHash 按内容哈希验证
func (g *GatewayClient) VerifyCertificateByContentHash(ctx context.Context, contentHash string) (*CertificateRecord, error) {
	var out CertificateRecord
	err := g.call(ctx, "verify_certificate_by_hash", func(ctx context.Context) error {
		resp, err := g.client.R().
			SetContext(ctx).
			Get(g.endpoint + "/v1/certificates/hash/" + contentHash)
		if err != nil {
			return errors.Wrapf(errors.ErrLedgerUnavailable, "verify certificate by hash: %v", err)
		}
		if err := g.classify(resp); err != nil {
			return err
		}
		return g.decode(resp, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeCertificate 吊销证书
func (g *GatewayClient) RevokeCertificate(ctx context.Context, tokenID int64) (*TxResult, error) {
	var out TxResult
	err := g.write(ctx, "revoke_certificate", func(ctx context.Context) error {
		resp, err := g.client.R().
			SetContext(ctx).
			SetHeader("X-Signer-Key", g.signerKey).
			Post(fmt.Sprintf("%s/v1/certificates/%d/revoke", g.endpoint, tokenID))
		if err != nil {
			return errors.Wrapf(errors.ErrLedgerUnavailable, "revoke certificate: %v", err)
		}
		if err := g.classify(resp); err != nil {
			return err
		}
		return g.decode(resp, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// call 包装查询类调用：可用性检查、tracing span 与指标
func (g *GatewayClient) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !g.Available() {
		return errors.Wrap(errors.ErrLedgerUnavailable, "ledger client is not connected")
	}

	ctx, span := tracing.StartLedgerSpan(ctx, op, g.contract)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	g.observe(op, start, err)
	return err
}

// write 包装写入类调用：在 call 基础上串行化，保证 nonce 顺序
func (g *GatewayClient) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.available {
		return errors.Wrap(errors.ErrLedgerUnavailable, "ledger client is not connected")
	}

	ctx, span := tracing.StartLedgerSpan(ctx, op, g.contract)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	g.observe(op, start, err)
	return err
}

func (g *GatewayClient) observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.IsNotFound(err):
		result = "not_found"
	case errors.IsLedgerConflict(err):
		result = "conflict"
	case errors.IsLedgerUnavailable(err):
		result = "unavailable"
	default:
		result = "error"
	}
	metrics.LedgerCallTotal.With(prometheus.Labels{"op": op, "result": result}).Inc()
	metrics.LedgerCallDuration.With(prometheus.Labels{"op": op}).Observe(time.Since(start).Seconds())
}

// gatewayError 网关错误响应体
type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// classify 将网关响应映射到错误分类。404 是"确认不存在"，
// 与网络层故障严格区分。
func (g *GatewayClient) classify(resp *resty.Response) error {
	code := resp.StatusCode()
	if code == http.StatusOK {
		return nil
	}

	var ge gatewayError
	_ = json.Unmarshal(resp.Body(), &ge)
	msg := ge.Message
	if msg == "" {
		msg = resp.String()
	}

	switch {
	case code == http.StatusNotFound:
		return errors.Wrapf(errors.ErrNotFound, "ledger: %s", msg)
	case code == http.StatusConflict:
		return errors.Wrapf(errors.ErrLedgerConflict, "ledger: %s", msg)
	case code == http.StatusForbidden || code == http.StatusUnprocessableEntity:
		return errors.Wrapf(errors.ErrLedgerRejected, "ledger: %s", msg)
	case code == http.StatusUnauthorized:
		return errors.Wrapf(errors.ErrLedgerUnavailable, "ledger: signer rejected: %s", msg)
	case code >= http.StatusInternalServerError:
		return errors.Wrapf(errors.ErrLedgerUnavailable, "ledger: gateway error: %s", msg)
	default:
		return errors.Wrapf(errors.ErrLedgerRejected, "ledger: unexpected status %d: %s", code, msg)
	}
}

func (g *GatewayClient) decode(resp *resty.Response, out interface{}) error {
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return errors.Wrapf(errors.ErrLedgerUnavailable, "ledger: decode gateway response: %v", err)
	}
	return nil
}
