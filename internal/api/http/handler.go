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
	"bytes"
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"educhain/internal/billing"
	"educhain/internal/content"
	"educhain/internal/ledger"
	"educhain/internal/reconcile"
	"educhain/internal/storage/record"
	"educhain/internal/syncer"
	"educhain/internal/verify"
	"educhain/pkg/errors"
	"educhain/pkg/log"
	"educhain/pkg/metrics"
)

// Handler HTTP 处理器
type Handler struct {
	stores   *record.Stores
	engine   *reconcile.Engine
	resolver *verify.Resolver
	syncer   *syncer.Syncer
	billing  *billing.Service
	content  content.Store
	client   ledger.Client
	logger   *log.Logger
}

// NewHandler 创建 HTTP 处理器
func NewHandler(
	stores *record.Stores,
	engine *reconcile.Engine,
	resolver *verify.Resolver,
	sync *syncer.Syncer,
	billingSvc *billing.Service,
	contentStore content.Store,
	client ledger.Client,
	logger *log.Logger,
) *Handler {
	return &Handler{
		stores:   stores,
		engine:   engine,
		resolver: resolver,
		syncer:   sync,
		billing:  billingSvc,
		content:  contentStore,
		client:   client,
		logger:   logger,
	}
}

// respondError 按错误分类映射 HTTP 状态码
func (h *Handler) respondError(c *app.RequestContext, err error) {
	switch {
	case errors.IsNotFound(err):
		c.JSON(consts.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, errors.ErrInvalidArg):
		c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, errors.ErrDuplicate):
		c.JSON(consts.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, errors.ErrAuthorizationMismatch):
		c.JSON(consts.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.IsLedgerUnavailable(err):
		c.JSON(consts.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// HealthCheck 健康检查
// GET /api/health
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	ledgerStatus := "not_configured"
	contract := ""
	if h.client != nil {
		contract = h.client.ContractAddress()
		if h.client.Available() {
			ledgerStatus = "connected"
		} else {
			ledgerStatus = "disconnected"
		}
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   "educhain-api",
		"timestamp": time.Now().Unix(),
		"ledger": map[string]string{
			"status":   ledgerStatus,
			"contract": contract,
		},
	})
}

// Metrics Prometheus 指标
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}
