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

package http

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"educhain/internal/storage/record"
	"educhain/pkg/errors"
)

// ListPendingVerifications 待审核机构列表
// GET /api/admin/verifications
func (h *Handler) ListPendingVerifications(ctx context.Context, c *app.RequestContext) {
	reqs, err := h.stores.Verifications.ListByStatus(ctx, record.VerificationPending)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"total":    len(reqs),
		"requests": reqs,
	})
}

type reviewVerificationRequest struct {
	Approved bool   `json:"approved"`
	Comments string `json:"comments"`
}

// ReviewVerification 审核机构资质；通过后顺手把机构授权上链
// POST /api/admin/verifications/:id/review
func (h *Handler) ReviewVerification(ctx context.Context, c *app.RequestContext) {
	req, err := h.stores.Verifications.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if req.Status != record.VerificationPending {
		c.JSON(consts.StatusConflict, map[string]string{
			"error": "verification request has already been reviewed",
		})
		return
	}

	var body reviewVerificationRequest
	if err := c.BindJSON(&body); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	inst, err := h.stores.Institutions.Get(ctx, req.InstitutionID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	now := time.Now().UTC()
	req.ReviewedAt = &now
	req.ReviewedBy = string(c.GetHeader("X-Admin-Email"))
	req.Comments = body.Comments
	if body.Approved {
		req.Status = record.VerificationApproved
		inst.VerificationStatus = record.VerificationApproved
		inst.IsVerified = true
	} else {
		req.Status = record.VerificationRejected
		inst.VerificationStatus = record.VerificationRejected
		inst.IsVerified = false
	}

	if err := h.stores.Verifications.Update(ctx, req); err != nil {
		h.respondError(c, err)
		return
	}
	if err := h.stores.Institutions.Update(ctx, inst); err != nil {
		h.respondError(c, err)
		return
	}

	resp := map[string]interface{}{
		"request":     req,
		"institution": inst,
	}

	// 审核通过即尝试注册上链；失败只记录，不影响审核结论。
	// 发证授权是独立的管理操作，不在这里做
	if body.Approved {
		res, rerr := h.engine.ReconcileInstitution(ctx, inst)
		if rerr != nil {
			h.logger.Warn("institution approved but ledger registration failed",
				"institution", inst.ID, "err", rerr)
		}
		resp["ledger"] = res
	}

	c.JSON(consts.StatusOK, resp)
}

// SyncInstitutions 批量把已审核机构授权上链
// POST /api/admin/sync/institutions
func (h *Handler) SyncInstitutions(ctx context.Context, c *app.RequestContext) {
	report, err := h.syncer.SyncInstitutions(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, report)
}

// SyncCertificates 批量补同步证书；可用 ?institutionId= 限定范围
// POST /api/admin/sync/certificates
func (h *Handler) SyncCertificates(ctx context.Context, c *app.RequestContext) {
	report, err := h.syncer.SyncCertificates(ctx, c.Query("institutionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, report)
}

// RegisterInstitutionOnLedger 手工把机构注册上链（幂等；不授权）
// POST /api/admin/institutions/:id/register
func (h *Handler) RegisterInstitutionOnLedger(ctx context.Context, c *app.RequestContext) {
	inst, err := h.stores.Institutions.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	res, rerr := h.engine.ReconcileInstitution(ctx, inst)
	if rerr != nil {
		c.JSON(consts.StatusBadGateway, map[string]interface{}{
			"error":       rerr.Error(),
			"result":      res,
			"institution": inst,
		})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"result":      res,
		"institution": inst,
	})
}

// AuthorizeInstitutionOnLedger 手工授权；机构必须已注册上链
// POST /api/admin/institutions/:id/authorize
func (h *Handler) AuthorizeInstitutionOnLedger(ctx context.Context, c *app.RequestContext) {
	inst, err := h.stores.Institutions.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	res, rerr := h.engine.AuthorizeInstitution(ctx, inst)
	if rerr != nil {
		if errors.Is(rerr, errors.ErrLedgerRejected) {
			c.JSON(consts.StatusBadRequest, map[string]interface{}{
				"error":       rerr.Error(),
				"result":      res,
				"institution": inst,
			})
			return
		}
		c.JSON(consts.StatusBadGateway, map[string]interface{}{
			"error":       rerr.Error(),
			"result":      res,
			"institution": inst,
		})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"result":      res,
		"institution": inst,
	})
}

// LedgerSummary 机构上链进度汇总
// GET /api/admin/ledger/summary
func (h *Handler) LedgerSummary(ctx context.Context, c *app.RequestContext) {
	insts, err := h.stores.Institutions.List(ctx, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	var registered, authorized, pending int
	for _, inst := range insts {
		switch {
		case inst.Ledger.Authorized:
			authorized++
		case inst.Ledger.Registered:
			registered++
		case inst.IsVerified:
			// 已审核但还没上链
			pending++
		}
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"total":      len(insts),
		"authorized": authorized,
		"registered": registered,
		"pending":    pending,
	})
}

// InstitutionLedgerStatus 单个机构的链上状态：链下记录 + 账本实时查询
// GET /api/admin/institutions/:id/ledger
func (h *Handler) InstitutionLedgerStatus(ctx context.Context, c *app.RequestContext) {
	inst, err := h.stores.Institutions.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	resp := map[string]interface{}{
		"institutionId": inst.ID,
		"wallet":        inst.WalletAddress,
		"record":        inst.Ledger,
	}
	if h.client != nil && h.client.Available() && inst.WalletAddress != "" {
		st, lerr := h.client.QueryInstitution(ctx, inst.WalletAddress)
		switch {
		case lerr == nil:
			resp["ledger"] = st
		case errors.IsNotFound(lerr):
			resp["ledger"] = map[string]bool{"registered": false, "authorized": false}
		default:
			resp["ledgerError"] = lerr.Error()
		}
	}
	c.JSON(consts.StatusOK, resp)
}

// ListInstitutions 机构列表（管理端）
// GET /api/admin/institutions
func (h *Handler) ListInstitutions(ctx context.Context, c *app.RequestContext) {
	insts, err := h.stores.Institutions.List(ctx, nil)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"total":        len(insts),
		"institutions": insts,
	})
}
