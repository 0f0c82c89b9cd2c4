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

// Package syncer 批量补同步。
// 单签名方写链必须串行：逐条处理，写链后等落块再下一条。
// 单条失败只计入报告，不中断整批。
package syncer

import (
	"context"
	"time"

	"educhain/internal/reconcile"
	"educhain/internal/storage/record"
	"educhain/pkg/log"
)

// ItemResult 批量同步中单条记录的结果
type ItemResult struct {
	ID      string            `json:"id"`
	Outcome reconcile.Outcome `json:"outcome"`
	Status  string            `json:"status,omitempty"`
	TxHash  string            `json:"txHash,omitempty"`
	TokenID *int64            `json:"tokenId,omitempty"`
	Err     string            `json:"error,omitempty"`
}

// Report 一次批量同步的报告
type Report struct {
	Entity        string       `json:"entity"` // institutions | certificates
	Total         int          `json:"total"`
	AlreadySynced int          `json:"alreadySynced"`
	NewlySynced   int          `json:"newlySynced"`
	Degraded      int          `json:"degraded"`
	Failed        int          `json:"failed"`
	Results       []ItemResult `json:"results"`
	StartedAt     time.Time    `json:"startedAt"`
	FinishedAt    time.Time    `json:"finishedAt"`
}

func (r *Report) add(id string, res *reconcile.Result) {
	r.Total++
	switch res.Outcome {
	case reconcile.OutcomeAlreadySynced:
		r.AlreadySynced++
	case reconcile.OutcomeNewlySynced:
		r.NewlySynced++
	case reconcile.OutcomeDegraded:
		r.Degraded++
	default:
		r.Failed++
	}
	r.Results = append(r.Results, ItemResult{
		ID:      id,
		Outcome: res.Outcome,
		Status:  res.Status,
		TxHash:  res.TxHash,
		TokenID: res.TokenID,
		Err:     res.Err,
	})
}

// Syncer 批量同步器
type Syncer struct {
	stores *record.Stores
	engine *reconcile.Engine
	logger *log.Logger

	settleInterval time.Duration
	// sleep 两次写链之间的落块等待；测试中替换
	sleep func(ctx context.Context, d time.Duration)
}

// NewSyncer 创建批量同步器
func NewSyncer(stores *record.Stores, engine *reconcile.Engine, settleInterval time.Duration, logger *log.Logger) *Syncer {
	if settleInterval <= 0 {
		settleInterval = 2 * time.Second
	}
	return &Syncer{
		stores:         stores,
		engine:         engine,
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

// SyncInstitutions 把已审核通过但尚未注册上链的机构补注册。
// 发证授权不在批量里做，走单独的授权操作。
func (s *Syncer) SyncInstitutions(ctx context.Context) (*Report, error) {
	report := &Report{Entity: "institutions", StartedAt: time.Now().UTC()}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	verified := true
	registered := false
	insts, err := s.stores.Institutions.List(ctx, &record.InstitutionFilter{
		IsVerified:       &verified,
		LedgerRegistered: &registered,
	})
	if err != nil {
		return report, err
	}

	for i, inst := range insts {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res, err := s.engine.ReconcileInstitution(ctx, inst)
		if err != nil {
			// 失败隔离：记下来继续
			s.logger.Warn("institution sync failed", "institution", inst.ID, "err", err)
		}
		report.add(inst.ID, res)

		if res.Outcome == reconcile.OutcomeNewlySynced && i < len(insts)-1 {
			s.sleep(ctx, s.settleInterval)
		}
	}

	s.logger.Info("institution bulk sync finished",
		"total", report.Total, "newly", report.NewlySynced,
		"already", report.AlreadySynced, "degraded", report.Degraded, "failed", report.Failed)
	return report, nil
}

// SyncCertificates 把尚未上链的有效证书补铸到链上。
// institutionID 非空时只处理该机构的证书。
func (s *Syncer) SyncCertificates(ctx context.Context, institutionID string) (*Report, error) {
	report := &Report{Entity: "certificates", StartedAt: time.Now().UTC()}
	defer func() { report.FinishedAt = time.Now().UTC() }()

	certs, err := s.pendingCertificates(ctx, institutionID)
	if err != nil {
		return report, err
	}

	for i, cert := range certs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		res, err := s.engine.ReconcileCertificate(ctx, cert)
		if err != nil {
			s.logger.Warn("certificate sync failed", "certificate", cert.ID, "err", err)
		}
		report.add(cert.ID, res)

		if res.Outcome == reconcile.OutcomeNewlySynced && i < len(certs)-1 {
			s.sleep(ctx, s.settleInterval)
		}
	}

	s.logger.Info("certificate bulk sync finished",
		"total", report.Total, "newly", report.NewlySynced,
		"already", report.AlreadySynced, "degraded", report.Degraded, "failed", report.Failed)
	return report, nil
}

// pendingCertificates 未上链的有效证书。
// 学生钱包未知的证书铸不了，不算待同步
func (s *Syncer) pendingCertificates(ctx context.Context, institutionID string) ([]*record.Certificate, error) {
	var certs []*record.Certificate
	var err error
	if institutionID != "" {
		certs, err = s.stores.Certificates.ListByInstitution(ctx, institutionID)
	} else {
		insts, ierr := s.stores.Institutions.List(ctx, nil)
		if ierr != nil {
			return nil, ierr
		}
		for _, inst := range insts {
			list, lerr := s.stores.Certificates.ListByInstitution(ctx, inst.ID)
			if lerr != nil {
				return nil, lerr
			}
			certs = append(certs, list...)
		}
	}
	if err != nil {
		return nil, err
	}

	pending := certs[:0]
	for _, cert := range certs {
		if cert.IsValid && !cert.Ledger.IsMinted && cert.StudentAddress != "" {
			pending = append(pending, cert)
		}
	}
	return pending, nil
}
