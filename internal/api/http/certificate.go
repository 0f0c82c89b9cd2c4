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
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"educhain/internal/reconcile"
	"educhain/internal/storage/record"
	"educhain/pkg/errors"
)

type issueCertificateRequest struct {
	StudentAddress  string `json:"studentAddress"`
	StudentName     string `json:"studentName"`
	StudentID       string `json:"studentId"`
	StudentEmail    string `json:"studentEmail"`
	CourseName      string `json:"courseName"`
	Grade           string `json:"grade"`
	CertificateType string `json:"certificateType"`
	CompletionDate  string `json:"completionDate"` // RFC3339 或 2006-01-02
	// WalletAddress 请求方声明的签发钱包；与机构记录不符直接拒绝
	WalletAddress string `json:"walletAddress"`
}

// IssueCertificate 签发证书：链下建档、内容固定、随后对账上链
// POST /api/certificates
func (h *Handler) IssueCertificate(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}

	var req issueCertificateRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	// 学生钱包可以为空：证书先只存链下，等学生带地址来铸造
	if req.StudentName == "" || req.CourseName == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{
			"error": "studentName and courseName are required",
		})
		return
	}
	if !inst.IsVerified {
		c.JSON(consts.StatusForbidden, map[string]string{
			"error": "institution must pass verification before issuing certificates",
		})
		return
	}
	// 声明的签发钱包必须就是机构档案里的钱包（不区分大小写）
	if req.WalletAddress != "" && !strings.EqualFold(req.WalletAddress, inst.WalletAddress) {
		h.respondError(c, errors.ErrAuthorizationMismatch)
		return
	}

	completion := time.Now().UTC()
	if req.CompletionDate != "" {
		parsed, err := parseDate(req.CompletionDate)
		if err != nil {
			c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid completionDate"})
			return
		}
		completion = parsed
	}

	// 套餐额度
	usage, err := h.billing.CheckUsage(ctx, inst.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !usage.Allowed {
		c.JSON(consts.StatusPaymentRequired, map[string]interface{}{
			"error": "certificate limit reached for current plan",
			"usage": usage,
		})
		return
	}

	// 同一学生同一课程不重复签发
	if req.StudentID != "" {
		exists, err := h.stores.Certificates.ExistsIssuance(ctx, inst.ID, req.StudentID, req.CourseName)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if exists {
			c.JSON(consts.StatusConflict, map[string]string{
				"error": "certificate already issued for this student and course",
			})
			return
		}
	}

	cert := &record.Certificate{
		ID:              uuid.NewString(),
		StudentAddress:  req.StudentAddress,
		StudentName:     req.StudentName,
		StudentID:       req.StudentID,
		StudentEmail:    req.StudentEmail,
		CourseName:      req.CourseName,
		Grade:           req.Grade,
		CertificateType: req.CertificateType,
		CompletionDate:  completion,
		InstitutionID:   inst.ID,
		InstitutionName: inst.Name,
		IsValid:         true,
	}

	// 内容固定：哈希是链上链下的共同锚点。
	// 上传失败不丢证书：记录照建，上链步骤跳过，等补同步
	hash, pinErr := h.content.PinJSON(ctx, "certificate-"+cert.ID, map[string]interface{}{
		"studentAddress": cert.StudentAddress,
		"studentName":    cert.StudentName,
		"courseName":     cert.CourseName,
		"grade":          cert.Grade,
		"completionDate": cert.CompletionDate.Format(time.RFC3339),
		"institution":    inst.Name,
		"issuerWallet":   inst.WalletAddress,
	})
	if pinErr != nil {
		h.logger.Warn("content upload failed, ledger step skipped",
			"certificate", cert.ID, "err", pinErr)
		cert.Ledger.LastError = "content upload failed: " + pinErr.Error()
	} else {
		cert.ContentHash = hash
	}

	if err := h.stores.Certificates.Create(ctx, cert); err != nil {
		h.respondError(c, err)
		return
	}

	if pinErr != nil {
		c.JSON(consts.StatusCreated, map[string]interface{}{
			"certificate": cert,
			"ledger":      "skipped",
		})
		return
	}

	// 上链对账：失败不回滚链下记录，留给补同步
	res, rerr := h.engine.ReconcileCertificate(ctx, cert)
	if rerr != nil {
		h.logger.Warn("certificate issued off-chain only", "certificate", cert.ID, "err", rerr)
	}

	c.JSON(consts.StatusCreated, map[string]interface{}{
		"certificate": cert,
		"sync":        res,
	})
}

// GetCertificate 查询单张证书
// GET /api/certificates/:id
func (h *Handler) GetCertificate(ctx context.Context, c *app.RequestContext) {
	cert, err := h.stores.Certificates.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, cert)
}

// ListStudentCertificates 按学生钱包地址查证书
// GET /api/certificates/student/:address
func (h *Handler) ListStudentCertificates(ctx context.Context, c *app.RequestContext) {
	addr := c.Param("address")
	if addr == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "student address is required"})
		return
	}
	certs, err := h.stores.Certificates.ListByStudent(ctx, addr)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"total":        len(certs),
		"certificates": certs,
	})
}

type revokeCertificateRequest struct {
	Reason string `json:"reason"`
}

// RevokeCertificate 吊销证书（仅签发机构）
// POST /api/certificates/:id/revoke
func (h *Handler) RevokeCertificate(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}

	cert, err := h.stores.Certificates.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if cert.InstitutionID != inst.ID {
		c.JSON(consts.StatusForbidden, map[string]string{
			"error": "only the issuing institution can revoke a certificate",
		})
		return
	}

	var req revokeCertificateRequest
	_ = c.BindJSON(&req)
	if req.Reason == "" {
		req.Reason = "revoked by issuer"
	}

	res, rerr := h.engine.RevokeCertificate(ctx, cert, req.Reason)
	if rerr != nil {
		c.JSON(consts.StatusBadGateway, map[string]interface{}{
			"error":  rerr.Error(),
			"result": res,
		})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"certificate": cert,
		"result":      res,
	})
}

// SyncCertificate 单张证书补上链
// POST /api/certificates/:id/sync
func (h *Handler) SyncCertificate(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	cert, err := h.stores.Certificates.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if cert.InstitutionID != inst.ID {
		c.JSON(consts.StatusForbidden, map[string]string{
			"error": "only the issuing institution can sync a certificate",
		})
		return
	}

	res, rerr := h.engine.ReconcileCertificate(ctx, cert)
	if rerr != nil && res.Outcome == reconcile.OutcomeFailed {
		c.JSON(consts.StatusBadGateway, map[string]interface{}{
			"error":  rerr.Error(),
			"result": res,
		})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"certificate": cert,
		"result":      res,
	})
}

type mintCertificateRequest struct {
	WalletAddress string `json:"walletAddress"`
}

// MintCertificate 学生发起的补铸造：钱包必须与证书的学生地址一致（不区分大小写），
// 校验在任何账本调用之前。签发时没留地址的证书在这里认领钱包。
// POST /api/certificates/:id/mint
func (h *Handler) MintCertificate(ctx context.Context, c *app.RequestContext) {
	cert, err := h.stores.Certificates.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	var req mintCertificateRequest
	if err := c.BindJSON(&req); err != nil || req.WalletAddress == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "walletAddress is required"})
		return
	}
	if cert.StudentAddress == "" {
		cert.StudentAddress = req.WalletAddress
		if err := h.stores.Certificates.Update(ctx, cert); err != nil {
			h.respondError(c, err)
			return
		}
	} else if !strings.EqualFold(req.WalletAddress, cert.StudentAddress) {
		h.respondError(c, errors.ErrAuthorizationMismatch)
		return
	}

	res, rerr := h.engine.ReconcileCertificate(ctx, cert)
	if rerr != nil && res.Outcome == reconcile.OutcomeFailed {
		c.JSON(consts.StatusBadGateway, map[string]interface{}{
			"error":  rerr.Error(),
			"result": res,
		})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"certificate": cert,
		"result":      res,
	})
}

// parseDate 接受 RFC3339 或 2006-01-02
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
