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

// Package reconcile 把链下记录与链上注册表收敛到一致。
// 真相源分两侧：业务字段以链下记录为准，同步状态以链上为准。
// 对账从不覆盖链上已有状态，只向链上补写缺失部分。
package reconcile

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"educhain/internal/ledger"
	"educhain/internal/storage/record"
	"educhain/pkg/errors"
	"educhain/pkg/log"
	"educhain/pkg/metrics"
	"educhain/pkg/tracing"
)

// Engine 对账引擎
type Engine struct {
	insts  record.InstitutionStore
	certs  record.CertificateStore
	client ledger.Client
	logger *log.Logger

	settleInterval time.Duration
	// sleep 写链后的落块等待；测试中替换
	sleep func(ctx context.Context, d time.Duration)
}

// NewEngine 创建对账引擎；client 可为 nil（降级模式）
func NewEngine(stores *record.Stores, client ledger.Client, settleInterval time.Duration, logger *log.Logger) *Engine {
	if settleInterval <= 0 {
		settleInterval = 2 * time.Second
	}
	return &Engine{
		insts:          stores.Institutions,
		certs:          stores.Certificates,
		client:         client,
		logger:         logger,
		settleInterval: settleInterval,
		sleep:          sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ledgerReady 账本是否可用于本次对账
func (e *Engine) ledgerReady() bool {
	return e.client != nil && e.client.Available()
}

func (e *Engine) observe(entity string, outcome Outcome) {
	metrics.SyncOutcomeTotal.With(prometheus.Labels{"entity": entity, "outcome": string(outcome)}).Inc()
}

// ReconcileInstitution 把机构注册状态与链上收敛。
// 只处理注册，不授权；授权走 AuthorizeInstitution。
func (e *Engine) ReconcileInstitution(ctx context.Context, inst *record.Institution) (*Result, error) {
	ctx, span := tracing.StartReconcileSpan(ctx, "institution", inst.ID)
	defer span.End()

	res := &Result{}
	defer func() { e.observe("institution", res.Outcome) }()

	if !e.ledgerReady() {
		res.Outcome = OutcomeDegraded
		inst.Ledger.LastError = "ledger unavailable"
		if err := e.insts.Update(ctx, inst); err != nil {
			return res.failed(err), err
		}
		return res, nil
	}

	st, err := e.client.QueryInstitution(ctx, inst.WalletAddress)
	switch {
	case err == nil:
		// 链上已注册：链下向链上收敛
		res.Outcome = OutcomeAlreadySynced
		res.Status = StatusAlreadyRegistered
		if st.Authorized {
			res.Status = StatusAlreadyAuthorized
		}
		if e.adoptInstitutionState(inst, st) {
			if err := e.insts.Update(ctx, inst); err != nil {
				return res.failed(err), err
			}
		}
		return res, nil

	case errors.IsNotFound(err):
		// 确认不在链上才注册；查询失败不盲写
		return e.registerInstitution(ctx, inst, res)

	default:
		e.logger.Error("query institution on ledger failed", "institution", inst.ID, "err", err)
		inst.Ledger.LastError = err.Error()
		_ = e.insts.Update(ctx, inst)
		return res.failed(err), err
	}
}

func (e *Engine) registerInstitution(ctx context.Context, inst *record.Institution, res *Result) (*Result, error) {
	tx, err := e.client.RegisterInstitution(ctx, inst.WalletAddress, inst.Name)
	if errors.IsLedgerConflict(err) {
		// 并发对账抢先注册；按已同步处理
		inst.Ledger.Registered = true
		inst.Ledger.LastError = ""
		if uerr := e.insts.Update(ctx, inst); uerr != nil {
			return res.failed(uerr), uerr
		}
		res.Outcome = OutcomeAlreadySynced
		res.Status = StatusAlreadyRegistered
		return res, nil
	}
	if err != nil {
		e.logger.Error("register institution on ledger failed", "institution", inst.ID, "err", err)
		inst.Ledger.LastError = err.Error()
		_ = e.insts.Update(ctx, inst)
		return res.failed(err), err
	}

	now := time.Now().UTC()
	inst.Ledger.Registered = true
	inst.Ledger.TxHash = tx.TxHash
	inst.Ledger.RegistrationDate = &now
	inst.Ledger.LastError = ""
	if err := e.insts.Update(ctx, inst); err != nil {
		return res.failed(err), err
	}

	e.logger.Info("institution registered on ledger",
		"institution", inst.ID, "wallet", inst.WalletAddress, "tx", tx.TxHash)
	res.Outcome = OutcomeNewlySynced
	res.Status = StatusRegistered
	res.TxHash = tx.TxHash
	return res, nil
}

// adoptInstitutionState 把链上状态并入链下记录，返回是否有变化
func (e *Engine) adoptInstitutionState(inst *record.Institution, st *ledger.InstitutionStatus) bool {
	changed := false
	if st.Registered && !inst.Ledger.Registered {
		inst.Ledger.Registered = true
		changed = true
	}
	if st.Authorized && !inst.Ledger.Authorized {
		inst.Ledger.Authorized = true
		changed = true
	}
	if inst.Ledger.LastError != "" {
		inst.Ledger.LastError = ""
		changed = true
	}
	return changed
}

// AuthorizeInstitution 给已在链上注册的机构授发证授权。
// 机构尚未注册时直接报前置条件错误，注册走 ReconcileInstitution；
// 需要一步到位的调用方用 EnsureAuthorized。
func (e *Engine) AuthorizeInstitution(ctx context.Context, inst *record.Institution) (*Result, error) {
	ctx, span := tracing.StartReconcileSpan(ctx, "institution_authorization", inst.ID)
	defer span.End()

	res := &Result{}
	defer func() { e.observe("institution", res.Outcome) }()

	if !e.ledgerReady() {
		res.Outcome = OutcomeDegraded
		inst.Ledger.LastError = "ledger unavailable"
		if err := e.insts.Update(ctx, inst); err != nil {
			return res.failed(err), err
		}
		return res, nil
	}

	st, err := e.client.QueryInstitution(ctx, inst.WalletAddress)
	switch {
	case err == nil:
		if st.Authorized {
			res.Outcome = OutcomeAlreadySynced
			res.Status = StatusAlreadyAuthorized
			if e.adoptInstitutionState(inst, st) {
				if uerr := e.insts.Update(ctx, inst); uerr != nil {
					return res.failed(uerr), uerr
				}
			}
			return res, nil
		}
	case errors.IsNotFound(err):
		// 注册是授权的前置条件，不在这里悄悄补
		perr := errors.Wrapf(errors.ErrLedgerRejected,
			"institution %s is not registered on ledger", inst.ID)
		return res.failed(perr), perr
	default:
		inst.Ledger.LastError = err.Error()
		_ = e.insts.Update(ctx, inst)
		return res.failed(err), err
	}

	tx, err := e.client.AuthorizeInstitution(ctx, inst.WalletAddress)
	if errors.IsLedgerConflict(err) {
		inst.Ledger.Authorized = true
		inst.Ledger.LastError = ""
		if uerr := e.insts.Update(ctx, inst); uerr != nil {
			return res.failed(uerr), uerr
		}
		res.Outcome = OutcomeAlreadySynced
		res.Status = StatusAlreadyAuthorized
		return res, nil
	}
	if err != nil {
		e.logger.Error("authorize institution on ledger failed", "institution", inst.ID, "err", err)
		inst.Ledger.LastError = err.Error()
		_ = e.insts.Update(ctx, inst)
		return res.failed(err), err
	}

	now := time.Now().UTC()
	inst.Ledger.Registered = true
	inst.Ledger.Authorized = true
	inst.Ledger.AuthTxHash = tx.TxHash
	inst.Ledger.AuthorizationDate = &now
	inst.Ledger.LastError = ""
	if err := e.insts.Update(ctx, inst); err != nil {
		return res.failed(err), err
	}

	e.logger.Info("institution authorized on ledger",
		"institution", inst.ID, "wallet", inst.WalletAddress, "tx", tx.TxHash)
	res.Outcome = OutcomeNewlySynced
	res.Status = StatusAuthorized
	res.TxHash = tx.TxHash
	return res, nil
}

// EnsureAuthorized 把机构收敛到已注册且已授权：缺注册先补，等落块后再授权
func (e *Engine) EnsureAuthorized(ctx context.Context, inst *record.Institution) (*Result, error) {
	regRes, err := e.ReconcileInstitution(ctx, inst)
	if err != nil {
		return regRes, err
	}
	if regRes.Outcome == OutcomeDegraded {
		return regRes, nil
	}
	if regRes.Outcome == OutcomeNewlySynced {
		// 注册交易落块后授权才能成功
		e.sleep(ctx, e.settleInterval)
	}

	authRes, err := e.AuthorizeInstitution(ctx, inst)
	if err != nil {
		return authRes, err
	}
	if regRes.Outcome == OutcomeNewlySynced && authRes.Outcome == OutcomeNewlySynced {
		authRes.Status = StatusRegistered
	}
	return authRes, nil
}

// ReconcileCertificate 把证书与链上记录收敛。
// 已上链的证书校验链上有效性；未上链的补铸造，铸造前确保签发机构已授权。
func (e *Engine) ReconcileCertificate(ctx context.Context, cert *record.Certificate) (*Result, error) {
	ctx, span := tracing.StartReconcileSpan(ctx, "certificate", cert.ID)
	defer span.End()

	res := &Result{}
	defer func() { e.observe("certificate", res.Outcome) }()

	// 修复被破坏的不变式：IsMinted ⟺ TokenID 非空
	if cert.Ledger.IsMinted != (cert.Ledger.TokenID != nil) {
		cert.Ledger.IsMinted = false
		cert.Ledger.TokenID = nil
	}

	// 学生钱包未知的证书只存链下，等学生带地址来铸造
	if !cert.Ledger.IsMinted && cert.StudentAddress == "" {
		res.Outcome = OutcomeDegraded
		res.Status = StatusSkippedNoWallet
		return res, nil
	}

	if !e.ledgerReady() {
		res.Outcome = OutcomeDegraded
		cert.Ledger.LastError = "ledger unavailable"
		if err := e.certs.Update(ctx, cert); err != nil {
			return res.failed(err), err
		}
		return res, nil
	}

	if cert.Ledger.IsMinted {
		return e.confirmMinted(ctx, cert, res)
	}
	return e.mintCertificate(ctx, cert, res)
}

// confirmMinted 校验已上链证书并同步有效性
func (e *Engine) confirmMinted(ctx context.Context, cert *record.Certificate, res *Result) (*Result, error) {
	rec, err := e.client.VerifyCertificate(ctx, *cert.Ledger.TokenID)
	switch {
	case err == nil:
		res.Outcome = OutcomeAlreadySynced
		res.TokenID = cert.Ledger.TokenID
		changed := false
		// 链上已吊销而链下仍有效：向链上收敛
		if !rec.Valid && cert.IsValid {
			now := time.Now().UTC()
			cert.IsValid = false
			cert.RevokedAt = &now
			changed = true
		}
		if cert.Ledger.LastError != "" {
			cert.Ledger.LastError = ""
			changed = true
		}
		if changed {
			if uerr := e.certs.Update(ctx, cert); uerr != nil {
				return res.failed(uerr), uerr
			}
		}
		return res, nil

	case errors.IsNotFound(err):
		// 记录声称已上链但链上没有：回退未上链状态重新对账
		e.logger.Warn("certificate claims token absent from ledger",
			"certificate", cert.ID, "token", *cert.Ledger.TokenID)
		cert.Ledger = record.CertificateLedgerState{}
		return e.mintCertificate(ctx, cert, res)

	default:
		cert.Ledger.LastError = err.Error()
		_ = e.certs.Update(ctx, cert)
		return res.failed(err), err
	}
}

// mintCertificate 把证书铸到链上
func (e *Engine) mintCertificate(ctx context.Context, cert *record.Certificate, res *Result) (*Result, error) {
	inst, err := e.insts.Get(ctx, cert.InstitutionID)
	if err != nil {
		return res.failed(err), err
	}
	if inst.WalletAddress == "" {
		err := errors.Wrapf(errors.ErrInvalidArg, "institution %s has no wallet address", inst.ID)
		return res.failed(err), err
	}

	// 铸造要求签发机构已获链上授权；缺则先补（注册、授权按序收敛）
	if !inst.Ledger.Authorized {
		authRes, err := e.EnsureAuthorized(ctx, inst)
		if err != nil {
			return res.failed(err), err
		}
		if authRes.Outcome == OutcomeNewlySynced {
			e.sleep(ctx, e.settleInterval)
		}
	}

	issue, err := e.client.IssueCertificate(ctx, inst.WalletAddress, ledger.IssueRequest{
		StudentAddress: cert.StudentAddress,
		StudentName:    cert.StudentName,
		CourseName:     cert.CourseName,
		Grade:          cert.Grade,
		ContentHash:    cert.ContentHash,
		CompletionDate: cert.CompletionDate,
	})
	if errors.IsLedgerConflict(err) {
		// 内容哈希已在链上：认领既有 token
		return e.adoptMinted(ctx, cert, res)
	}
	if err != nil {
		e.logger.Error("issue certificate on ledger failed", "certificate", cert.ID, "err", err)
		metrics.CertificateIssuedTotal.With(prometheus.Labels{"ledger": "failed"}).Inc()
		cert.Ledger.LastError = err.Error()
		_ = e.certs.Update(ctx, cert)
		return res.failed(err), err
	}

	now := time.Now().UTC()
	cert.Ledger.IsMinted = true
	cert.Ledger.TokenID = &issue.TokenID
	cert.Ledger.MintedTo = issue.MintedTo
	cert.Ledger.MintedAt = &now
	cert.Ledger.TxHash = issue.TxHash
	cert.Ledger.BlockNumber = issue.BlockNumber
	cert.Ledger.LastError = ""
	if err := e.certs.Update(ctx, cert); err != nil {
		return res.failed(err), err
	}

	e.logger.Info("certificate minted on ledger",
		"certificate", cert.ID, "token", issue.TokenID, "tx", issue.TxHash)
	metrics.CertificateIssuedTotal.With(prometheus.Labels{"ledger": "minted"}).Inc()
	res.Outcome = OutcomeNewlySynced
	res.TokenID = &issue.TokenID
	res.TxHash = issue.TxHash
	return res, nil
}

// adoptMinted 内容哈希撞上链上既有记录时认领该 token
func (e *Engine) adoptMinted(ctx context.Context, cert *record.Certificate, res *Result) (*Result, error) {
	if cert.ContentHash == "" {
		err := errors.Wrap(errors.ErrLedgerConflict, "duplicate mint without content hash")
		return res.failed(err), err
	}
	rec, err := e.client.VerifyCertificateByContentHash(ctx, cert.ContentHash)
	if err != nil {
		cert.Ledger.LastError = err.Error()
		_ = e.certs.Update(ctx, cert)
		return res.failed(err), err
	}

	cert.Ledger.IsMinted = true
	cert.Ledger.TokenID = &rec.TokenID
	cert.Ledger.MintedTo = rec.StudentAddress
	cert.Ledger.MintedAt = &rec.IssuedAt
	cert.Ledger.LastError = ""
	if err := e.certs.Update(ctx, cert); err != nil {
		return res.failed(err), err
	}

	metrics.CertificateIssuedTotal.With(prometheus.Labels{"ledger": "skipped"}).Inc()
	res.Outcome = OutcomeAlreadySynced
	res.TokenID = &rec.TokenID
	return res, nil
}

// RevokeCertificate 吊销证书。
// 链下吊销先行且必定生效；已上链的再尝试链上吊销，
// 链上失败只记入 lastError，绝不回滚链下吊销。
func (e *Engine) RevokeCertificate(ctx context.Context, cert *record.Certificate, reason string) (*Result, error) {
	ctx, span := tracing.StartReconcileSpan(ctx, "certificate_revocation", cert.ID)
	defer span.End()

	res := &Result{}
	defer func() { e.observe("certificate", res.Outcome) }()

	wasValid := cert.IsValid
	if wasValid {
		now := time.Now().UTC()
		cert.IsValid = false
		cert.RevokedAt = &now
		cert.RevokeReason = reason
	}

	if !cert.Ledger.IsMinted || cert.Ledger.TokenID == nil {
		// 未上链的证书只有链下状态可吊销
		if !wasValid {
			res.Outcome = OutcomeAlreadySynced
			return res, nil
		}
		if err := e.certs.Update(ctx, cert); err != nil {
			return res.failed(err), err
		}
		res.Outcome = OutcomeNewlySynced
		return res, nil
	}

	res.TokenID = cert.Ledger.TokenID

	if !e.ledgerReady() {
		cert.Ledger.LastError = "revocation pending: ledger unavailable"
		if err := e.certs.Update(ctx, cert); err != nil {
			return res.failed(err), err
		}
		res.Outcome = OutcomeDegraded
		return res, nil
	}

	tx, lerr := e.client.RevokeCertificate(ctx, *cert.Ledger.TokenID)
	switch {
	case errors.IsLedgerConflict(lerr):
		// 链上已吊销
		cert.Ledger.LastError = ""
		if err := e.certs.Update(ctx, cert); err != nil {
			return res.failed(err), err
		}
		res.Outcome = OutcomeAlreadySynced
		return res, nil

	case lerr != nil:
		// 链下吊销保持生效，链上失败记下等补同步
		e.logger.Error("revoke certificate on ledger failed", "certificate", cert.ID, "err", lerr)
		cert.Ledger.LastError = lerr.Error()
		if err := e.certs.Update(ctx, cert); err != nil {
			return res.failed(err), err
		}
		return res.failed(lerr), lerr
	}

	cert.Ledger.RevokeTxHash = tx.TxHash
	cert.Ledger.LastError = ""
	if err := e.certs.Update(ctx, cert); err != nil {
		return res.failed(err), err
	}

	e.logger.Info("certificate revoked on ledger",
		"certificate", cert.ID, "token", *cert.Ledger.TokenID, "tx", tx.TxHash)
	res.Outcome = OutcomeNewlySynced
	res.TxHash = tx.TxHash
	return res, nil
}
