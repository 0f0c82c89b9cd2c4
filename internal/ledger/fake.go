package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"educhain/pkg/errors"
)

// FakeClient 内存账本实现：开发环境与测试用，行为确定。
// 交易哈希由输入派生，tokenId 单调递增。
type FakeClient struct {
	contract string

	mu           sync.Mutex
	connected    bool
	institutions map[string]*InstitutionStatus // key: 小写钱包地址
	certsByToken map[int64]*CertificateRecord
	certsByHash  map[string]int64
	nextToken    int64
	blockNumber  int64

	// FailNext 非空时，下一次匹配操作返回该错误后清除；测试用
	FailNext map[string]error
}

// NewFakeClient 创建内存账本客户端
func NewFakeClient(contract string) *FakeClient {
	return &FakeClient{
		contract:     contract,
		institutions: make(map[string]*InstitutionStatus),
		certsByToken: make(map[int64]*CertificateRecord),
		certsByHash:  make(map[string]int64),
		nextToken:    1,
		blockNumber:  100,
		FailNext:     make(map[string]error),
	}
}

func (f *FakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *FakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *FakeClient) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeClient) ContractAddress() string {
	return f.contract
}

// failNext 取走并返回该操作的预置错误
func (f *FakeClient) failNext(op string) error {
	if err, ok := f.FailNext[op]; ok {
		delete(f.FailNext, op)
		return err
	}
	return nil
}

func (f *FakeClient) QueryInstitution(ctx context.Context, wallet string) (*InstitutionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, errors.Wrap(errors.ErrLedgerUnavailable, "fake ledger is not connected")
	}
	if err := f.failNext("query_institution"); err != nil {
		return nil, err
	}

	st, ok := f.institutions[strings.ToLower(wallet)]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "institution %s is not on ledger", wallet)
	}
	cp := *st
	return &cp, nil
}

func (f *FakeClient) RegisterInstitution(ctx context.Context, wallet, name string) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, errors.Wrap(errors.ErrLedgerUnavailable, "fake ledger is not connected")
	}
	if err := f.failNext("register_institution"); err != nil {
		return nil, err
	}

	key := strings.ToLower(wallet)
	if _, ok := f.institutions[key]; ok {
		return nil, errors.Wrapf(errors.ErrLedgerConflict, "institution %s already registered", wallet)
	}
	f.institutions[key] = &InstitutionStatus{
		Wallet:     wallet,
		Name:       name,
		Registered: true,
	}
	return f.tx("register:" + key), nil
}

func (f *FakeClient) AuthorizeInstitution(ctx context.Context, wallet string) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, errors.Wrap(errors.ErrLedgerUnavailable, "fake ledger is not connected")
	}
	if err := f.failNext("authorize_institution"); err != nil {
		return nil, err
	}

	key := strings.ToLower(wallet)
	st, ok := f.institutions[key]
	if !ok {
		return nil, errors.Wrapf(errors.ErrLedgerRejected, "institution %s is not registered", wallet)
	}
	if st.Authorized {
		return nil, errors.Wrapf(errors.ErrLedgerConflict, "institution %s already authorized", wallet)
	}
	st.Authorized = true
	return f.tx("authorize:" + key), nil
}

func (f *FakeClient) IssueCertificate(ctx context.Context, issuerWallet string, req IssueRequest) (*IssueResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, errors.Wrap(errors.ErrLedgerUnavailable, "fake ledger is not connected")
	}
	if err := f.failNext("issue_certificate"); err != nil {
		return nil, err
	}

	issuer, ok := f.institutions[strings.ToLower(issuerWallet)]
	if !ok || !issuer.Authorized {
		return nil, errors.Wrapf(errors.ErrLedgerRejected, "issuer %s is not authorized", issuerWallet)
	}
	if req.ContentHash != "" {
		if _, dup := f.certsByHash[req.ContentHash]; dup {
			return nil, errors.Wrapf(errors.ErrLedgerConflict, "content hash %s already minted", req.ContentHash)
		}
	}

	tokenID := f.nextToken
	f.nextToken++
	rec := &CertificateRecord{
		TokenID:        tokenID,
		StudentAddress: req.StudentAddress,
		StudentName:    req.StudentName,
		CourseName:     req.CourseName,
		Grade:          req.Grade,
		ContentHash:    req.ContentHash,
		IssuerWallet:   issuer.Wallet,
		IssuedAt:       time.Now().UTC(),
		Valid:          true,
	}
	f.certsByToken[tokenID] = rec
	if req.ContentHash != "" {
		f.certsByHash[req.ContentHash] = tokenID
	}

	tx := f.tx(fmt.Sprintf("issue:%d", tokenID))
	return &IssueResult{
		TokenID:     tokenID,
		TxHash:      tx.TxHash,
		BlockNumber: tx.BlockNumber,
		MintedTo:    req.StudentAddress,
	}, nil
}

func (f *FakeClient) VerifyCertificate(ctx context.Context, tokenID int64) (*CertificateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, errors.Wrap(errors.ErrLedgerUnavailable, "fake ledger is not connected")
	}
	if err := f.failNext("verify_certificate"); err != nil {
		return nil, err
	}

	rec, ok := f.certsByToken[tokenID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "token %d is not on ledger", tokenID)
	}
	cp := *rec
	return &cp, nil
}

func (f *FakeClient) VerifyCertificateByContentHash(ctx context.Context, contentHash string) (*CertificateRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, errors.Wrap(errors.ErrLedgerUnavailable, "fake ledger is not connected")
	}
	if err := f.failNext("verify_certificate_by_hash"); err != nil {
		return nil, err
	}

	tokenID, ok := f.certsByHash[contentHash]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "content hash %s is not on ledger", contentHash)
	}
	cp := *f.certsByToken[tokenID]
	return &cp, nil
}

func (f *FakeClient) RevokeCertificate(ctx context.Context, tokenID int64) (*TxResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, errors.Wrap(errors.ErrLedgerUnavailable, "fake ledger is not connected")
	}
	if err := f.failNext("revoke_certificate"); err != nil {
		return nil, err
	}

	rec, ok := f.certsByToken[tokenID]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "token %d is not on ledger", tokenID)
	}
	if !rec.Valid {
		return nil, errors.Wrapf(errors.ErrLedgerConflict, "token %d already revoked", tokenID)
	}
	rec.Valid = false
	return f.tx(fmt.Sprintf("revoke:%d", tokenID)), nil
}

// SeedInstitution 预置机构状态；测试用
func (f *FakeClient) SeedInstitution(wallet, name string, authorized bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.institutions[strings.ToLower(wallet)] = &InstitutionStatus{
		Wallet:     wallet,
		Name:       name,
		Registered: true,
		Authorized: authorized,
	}
}

func (f *FakeClient) tx(seed string) *TxResult {
	f.blockNumber++
	sum := sha256.Sum256([]byte(seed))
	return &TxResult{
		TxHash:      "0x" + hex.EncodeToString(sum[:]),
		BlockNumber: f.blockNumber,
	}
}
