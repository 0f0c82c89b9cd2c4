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

// Package billing 订阅套餐与签发限额
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"educhain/internal/storage/record"
	"educhain/pkg/errors"
)

// Usage 机构当前用量
type Usage struct {
	Plan      Plan  `json:"plan"`
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"` // -1 不限
	Remaining int64 `json:"remaining"`
	// Allowed 是否还能签发
	Allowed bool `json:"allowed"`
}

// Service 订阅与限额服务
type Service struct {
	subs     record.SubscriptionStore
	payments record.PaymentStore
	certs    record.CertificateStore
}

// NewService 创建订阅服务
func NewService(stores *record.Stores) *Service {
	return &Service{
		subs:     stores.Subscriptions,
		payments: stores.Payments,
		certs:    stores.Certificates,
	}
}

// CurrentPlan 机构当前套餐；没有有效订阅时按试用处理
func (s *Service) CurrentPlan(ctx context.Context, institutionID string) (Plan, *record.Subscription, error) {
	sub, err := s.subs.GetActiveByInstitution(ctx, institutionID)
	if errors.IsNotFound(err) {
		return plans[FreeTrialID], nil, nil
	}
	if err != nil {
		return Plan{}, nil, err
	}
	if time.Now().UTC().After(sub.CurrentPeriodEnd) {
		// 订阅过期：回落试用额度
		return plans[FreeTrialID], sub, nil
	}
	plan, ok := GetPlan(sub.PlanID)
	if !ok {
		return plans[FreeTrialID], sub, nil
	}
	return plan, sub, nil
}

// CheckUsage 计算机构当前签发用量与额度
func (s *Service) CheckUsage(ctx context.Context, institutionID string) (*Usage, error) {
	plan, _, err := s.CurrentPlan(ctx, institutionID)
	if err != nil {
		return nil, err
	}

	used, err := s.certs.CountByInstitution(ctx, institutionID)
	if err != nil {
		return nil, err
	}

	u := &Usage{Plan: plan, Used: used, Limit: plan.CertificateLimit}
	if plan.Unlimited() {
		u.Remaining = -1
		u.Allowed = true
		return u, nil
	}
	u.Remaining = plan.CertificateLimit - used
	if u.Remaining < 0 {
		u.Remaining = 0
	}
	u.Allowed = used < plan.CertificateLimit
	return u, nil
}

// Subscribe 订阅套餐：记一笔支付流水并开通订阅。
// 已有有效订阅时切换套餐，旧订阅作废。
func (s *Service) Subscribe(ctx context.Context, institutionID, planID, method string) (*record.Subscription, error) {
	plan, ok := GetPlan(planID)
	if !ok || planID == FreeTrialID {
		return nil, errors.Wrapf(errors.ErrInvalidArg, "unknown plan %s", planID)
	}

	if err := s.payments.Create(ctx, &record.Payment{
		ID:            uuid.NewString(),
		InstitutionID: institutionID,
		PlanID:        plan.ID,
		Amount:        plan.Price,
		Currency:      plan.Currency,
		Status:        "succeeded",
		Method:        method,
	}); err != nil {
		return nil, err
	}

	if old, err := s.subs.GetActiveByInstitution(ctx, institutionID); err == nil {
		now := time.Now().UTC()
		old.Status = record.SubscriptionCancelled
		old.CancelledAt = &now
		if uerr := s.subs.Update(ctx, old); uerr != nil {
			return nil, uerr
		}
	}

	sub := &record.Subscription{
		ID:               uuid.NewString(),
		InstitutionID:    institutionID,
		PlanID:           plan.ID,
		Status:           record.SubscriptionActive,
		CurrentPeriodEnd: time.Now().UTC().AddDate(0, 0, plan.PeriodDays),
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel 取消当前订阅
func (s *Service) Cancel(ctx context.Context, institutionID string) error {
	sub, err := s.subs.GetActiveByInstitution(ctx, institutionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	sub.Status = record.SubscriptionCancelled
	sub.CancelledAt = &now
	return s.subs.Update(ctx, sub)
}

// Payments 机构的支付历史
func (s *Service) Payments(ctx context.Context, institutionID string) ([]*record.Payment, error) {
	return s.payments.ListByInstitution(ctx, institutionID)
}
