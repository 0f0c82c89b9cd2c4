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
	"golang.org/x/crypto/bcrypt"

	"educhain/internal/api/http/middleware"
	"educhain/internal/storage/record"
	"educhain/pkg/errors"
)

type registerInstitutionRequest struct {
	Name               string             `json:"name"`
	Email              string             `json:"email"`
	Password           string             `json:"password"`
	WalletAddress      string             `json:"walletAddress"`
	RegistrationNumber string             `json:"registrationNumber"`
	ContactInfo        record.ContactInfo `json:"contactInfo"`
}

// RegisterInstitution 机构注册（开户，不上链）
// POST /api/auth/register
func (h *Handler) RegisterInstitution(ctx context.Context, c *app.RequestContext) {
	var req registerInstitutionRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.WalletAddress == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{
			"error": "name, email, password and walletAddress are required",
		})
		return
	}
	if len(req.Password) < 8 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
		return
	}
	if !strings.HasPrefix(req.WalletAddress, "0x") || len(req.WalletAddress) != 42 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "walletAddress must be a 0x-prefixed 20-byte address"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.respondError(c, err)
		return
	}

	inst := &record.Institution{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Email:              strings.ToLower(req.Email),
		PasswordHash:       string(hash),
		WalletAddress:      req.WalletAddress,
		RegistrationNumber: req.RegistrationNumber,
		ContactInfo:        req.ContactInfo,
		VerificationStatus: record.VerificationNotSubmitted,
	}
	if err := h.stores.Institutions.Create(ctx, inst); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("institution registered", "institution", inst.ID, "email", inst.Email)
	c.JSON(consts.StatusCreated, inst)
}

// GetProfile 当前机构概况
// GET /api/institutions/me
func (h *Handler) GetProfile(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	c.JSON(consts.StatusOK, inst)
}

type submitVerificationRequest struct {
	RegistrationNumber string `json:"registrationNumber"`
	Documents          []struct {
		Name    string      `json:"name"`
		Payload interface{} `json:"payload"`
	} `json:"documents"`
}

// SubmitVerification 提交资质审核材料
// POST /api/institutions/me/verification
func (h *Handler) SubmitVerification(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}

	var req submitVerificationRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Documents) == 0 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "at least one document is required"})
		return
	}
	if inst.VerificationStatus == record.VerificationPending {
		c.JSON(consts.StatusConflict, map[string]string{"error": "verification already pending review"})
		return
	}
	if inst.IsVerified {
		c.JSON(consts.StatusConflict, map[string]string{"error": "institution already verified"})
		return
	}

	// 材料内容进内容寻址存储，工单里只留哈希
	docs := make([]record.VerificationDocument, 0, len(req.Documents))
	for _, d := range req.Documents {
		hash, err := h.content.PinJSON(ctx, "verification-"+inst.ID+"-"+d.Name, d.Payload)
		if err != nil {
			h.respondError(c, err)
			return
		}
		docs = append(docs, record.VerificationDocument{
			Name:        d.Name,
			ContentHash: hash,
			UploadedAt:  time.Now().UTC(),
		})
	}

	vr := &record.VerificationRequest{
		ID:            uuid.NewString(),
		InstitutionID: inst.ID,
		Documents:     docs,
		Status:        record.VerificationPending,
		SubmittedAt:   time.Now().UTC(),
	}
	if err := h.stores.Verifications.Create(ctx, vr); err != nil {
		h.respondError(c, err)
		return
	}

	if req.RegistrationNumber != "" {
		inst.RegistrationNumber = req.RegistrationNumber
	}
	inst.Documents = docs
	inst.VerificationStatus = record.VerificationPending
	if err := h.stores.Institutions.Update(ctx, inst); err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("verification submitted", "institution", inst.ID, "request", vr.ID)
	c.JSON(consts.StatusCreated, vr)
}

// GetVerificationStatus 当前机构的审核进度
// GET /api/institutions/me/verification
func (h *Handler) GetVerificationStatus(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	vr, err := h.stores.Verifications.GetByInstitution(ctx, inst.ID)
	if errors.IsNotFound(err) {
		c.JSON(consts.StatusOK, map[string]interface{}{
			"status": record.VerificationNotSubmitted,
		})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, vr)
}

// SyncInstitution 把当前机构的链上状态补齐（注册 + 授权）
// POST /api/institutions/me/sync
func (h *Handler) SyncInstitution(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	if !inst.IsVerified {
		c.JSON(consts.StatusForbidden, map[string]string{
			"error": "institution must pass verification before ledger sync",
		})
		return
	}

	res, err := h.engine.EnsureAuthorized(ctx, inst)
	if err != nil {
		c.JSON(consts.StatusBadGateway, map[string]interface{}{
			"error":  err.Error(),
			"result": res,
		})
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"result":      res,
		"institution": inst,
	})
}

// ListOwnCertificates 当前机构签发的证书
// GET /api/institutions/me/certificates
func (h *Handler) ListOwnCertificates(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	certs, err := h.stores.Certificates.ListByInstitution(ctx, inst.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"total":        len(certs),
		"certificates": certs,
	})
}

// currentInstitution 解析认证身份对应的机构记录；失败时已写响应
func (h *Handler) currentInstitution(ctx context.Context, c *app.RequestContext) (*record.Institution, bool) {
	id := middleware.CurrentIdentity(ctx, c)
	if id == nil || id.InstitutionID == "" {
		c.JSON(consts.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return nil, false
	}
	inst, err := h.stores.Institutions.Get(ctx, id.InstitutionID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return inst, true
}
