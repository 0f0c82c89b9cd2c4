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

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"educhain/internal/billing"
)

// ListPlans 套餐列表（公开接口）
// GET /api/billing/plans
func (h *Handler) ListPlans(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]interface{}{
		"plans": billing.ListPlans(),
	})
}

type subscribeRequest struct {
	PlanID        string `json:"planId"`
	PaymentMethod string `json:"paymentMethod"`
}

// Subscribe 订阅套餐
// POST /api/billing/subscribe
func (h *Handler) Subscribe(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	var req subscribeRequest
	if err := c.BindJSON(&req); err != nil || req.PlanID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "planId is required"})
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "card"
	}
	sub, err := h.billing.Subscribe(ctx, inst.ID, req.PlanID, req.PaymentMethod)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusCreated, sub)
}

// CancelSubscription 取消当前订阅，回落到免费试用额度
// POST /api/billing/cancel
func (h *Handler) CancelSubscription(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	if err := h.billing.Cancel(ctx, inst.ID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"status": "cancelled"})
}

// GetUsage 当前套餐与用量
// GET /api/billing/usage
func (h *Handler) GetUsage(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	usage, err := h.billing.CheckUsage(ctx, inst.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, usage)
}

// ListPayments 支付记录
// GET /api/billing/payments
func (h *Handler) ListPayments(ctx context.Context, c *app.RequestContext) {
	inst, ok := h.currentInstitution(ctx, c)
	if !ok {
		return
	}
	payments, err := h.billing.Payments(ctx, inst.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"total":    len(payments),
		"payments": payments,
	})
}
