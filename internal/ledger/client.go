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
	"time"
)

// InstitutionStatus 链上机构状态查询结果
type InstitutionStatus struct {
	Wallet     string `json:"wallet"`
	Name       string `json:"name"`
	Registered bool   `json:"registered"`
	Authorized bool   `json:"authorized"`
}

// TxResult 写入类调用的交易结果
type TxResult struct {
	TxHash      string `json:"txHash"`
	BlockNumber int64  `json:"blockNumber"`
}

// IssueRequest 证书上链请求
type IssueRequest struct {
	StudentAddress string    `json:"studentAddress"`
	StudentName    string    `json:"studentName"`
	CourseName     string    `json:"courseName"`
	Grade          string    `json:"grade"`
	ContentHash    string    `json:"contentHash"`
	CompletionDate time.Time `json:"completionDate"`
}

// IssueResult 证书上链结果；TokenID 由合约分配
type IssueResult struct {
	TokenID     int64  `json:"tokenId"`
	TxHash      string `json:"txHash"`
	BlockNumber int64  `json:"blockNumber"`
	MintedTo    string `json:"mintedTo"`
}

// CertificateRecord 链上证书记录，验证接口返回
type CertificateRecord struct {
	TokenID        int64     `json:"tokenId"`
	StudentAddress string    `json:"studentAddress"`
	StudentName    string    `json:"studentName"`
	CourseName     string    `json:"courseName"`
	Grade          string    `json:"grade"`
	ContentHash    string    `json:"contentHash"`
	IssuerWallet   string    `json:"issuerWallet"`
	IssuedAt       time.Time `json:"issuedAt"`
	Valid          bool      `json:"valid"`
}

// Client 账本客户端能力契约。
// 查询类调用对"确认不存在"返回 errors.ErrNotFound；连接与网络层故障
// 返回 errors.ErrLedgerUnavailable；合约拒绝（重复注册、未授权发证等）
// 返回 errors.ErrLedgerConflict / errors.ErrLedgerRejected。
type Client interface {
	// Connect 建立会话并校验签名方凭据；失败时客户端处于不可用状态
	Connect(ctx context.Context) error
	// Close 释放会话资源
	Close() error
	// Available 当前是否可发起链上调用
	Available() bool
	// ContractAddress 目标合约地址
	ContractAddress() string

	// QueryInstitution 按钱包地址查询机构注册/授权状态
	QueryInstitution(ctx context.Context, wallet string) (*InstitutionStatus, error)
	// RegisterInstitution 注册机构；已注册返回 ErrLedgerConflict
	RegisterInstitution(ctx context.Context, wallet, name string) (*TxResult, error)
	// AuthorizeInstitution 授权机构发证；未注册返回 ErrLedgerRejected
	AuthorizeInstitution(ctx context.Context, wallet string) (*TxResult, error)

	// IssueCertificate 铸造证书
	IssueCertificate(ctx context.Context, issuerWallet string, req IssueRequest) (*IssueResult, error)
	// VerifyCertificate 按 tokenId 验证证书
	VerifyCertificate(ctx context.Context, tokenID int64) (*CertificateRecord, error)
	// VerifyCertificateByContentHash 按内容哈希验证证书
	VerifyCertificateByContentHash(ctx context.Context, contentHash string) (*CertificateRecord, error)
	// RevokeCertificate 吊销证书
	RevokeCertificate(ctx context.Context, tokenID int64) (*TxResult, error)
}
