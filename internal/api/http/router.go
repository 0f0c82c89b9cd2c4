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
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/jwt"

	"educhain/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	jwtAuth    *jwt.HertzJWTMiddleware

	// 登录/注册接口的限流参数
	authRateRPS   float64
	authRateBurst int
}

// NewRouter 创建 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{
		handler:       handler,
		middleware:    mw,
		authRateRPS:   5,
		authRateBurst: 10,
	}
}

// SetJWT 注入 JWT 中间件；未设置时受保护路由返回 401
func (r *Router) SetJWT(auth *jwt.HertzJWTMiddleware) {
	r.jwtAuth = auth
}

// SetAuthRate 覆盖认证接口限流参数
func (r *Router) SetAuthRate(rps float64, burst int) {
	if rps > 0 {
		r.authRateRPS = rps
	}
	if burst > 0 {
		r.authRateBurst = burst
	}
}

// Build 创建 Hertz Server 并注册全部路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append(opts, server.WithHostPorts(addr))
	h := server.Default(opts...)
	h.Use(r.middleware.CORS())
	r.setupRoutes(h)
	return h
}

func (r *Router) setupRoutes(h *server.Hertz) {
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	authRate := r.middleware.RateLimit(r.authRateRPS, r.authRateBurst)

	// 认证
	auth := api.Group("/auth")
	{
		auth.POST("/register", authRate, r.handler.RegisterInstitution)
		auth.POST("/login", authRate, r.loginHandler())
		auth.POST("/refresh", r.refreshHandler())
	}

	// 机构自助
	me := api.Group("/institutions/me", r.requireAuth())
	{
		me.GET("", r.handler.GetProfile)
		me.POST("/verification", r.handler.SubmitVerification)
		me.GET("/verification", r.handler.GetVerificationStatus)
		me.POST("/sync", r.handler.SyncInstitution)
		me.GET("/certificates", r.handler.ListOwnCertificates)
	}

	// 证书
	certs := api.Group("/certificates")
	{
		certs.POST("", r.requireAuth(), r.handler.IssueCertificate)
		certs.GET("/:id", r.handler.GetCertificate)
		certs.GET("/student/:address", r.handler.ListStudentCertificates)
		certs.POST("/:id/mint", r.handler.MintCertificate)
		certs.POST("/:id/revoke", r.requireAuth(), r.handler.RevokeCertificate)
		certs.POST("/:id/sync", r.requireAuth(), r.handler.SyncCertificate)
	}

	// 核验（公开）
	verify := api.Group("/verify")
	{
		verify.GET("/id/:id", r.handler.VerifyByID)
		verify.GET("/token/:tokenId", r.handler.VerifyByTokenID)
		verify.GET("/hash/:hash", r.handler.VerifyByContentHash)
	}

	// 计费
	billing := api.Group("/billing")
	{
		billing.GET("/plans", r.handler.ListPlans)
		billing.POST("/subscribe", r.requireAuth(), r.handler.Subscribe)
		billing.POST("/cancel", r.requireAuth(), r.handler.CancelSubscription)
		billing.GET("/usage", r.requireAuth(), r.handler.GetUsage)
		billing.GET("/payments", r.requireAuth(), r.handler.ListPayments)
	}

	// 管理端
	admin := api.Group("/admin", r.middleware.AdminOnly())
	{
		admin.GET("/institutions", r.handler.ListInstitutions)
		admin.GET("/institutions/:id/ledger", r.handler.InstitutionLedgerStatus)
		admin.POST("/institutions/:id/register", r.handler.RegisterInstitutionOnLedger)
		admin.POST("/institutions/:id/authorize", r.handler.AuthorizeInstitutionOnLedger)
		admin.GET("/ledger/summary", r.handler.LedgerSummary)
		admin.GET("/verifications", r.handler.ListPendingVerifications)
		admin.POST("/verifications/:id/review", r.handler.ReviewVerification)
		admin.POST("/sync/institutions", r.handler.SyncInstitutions)
		admin.POST("/sync/certificates", r.handler.SyncCertificates)
	}
}

// requireAuth 受保护路由：未配置 JWT 时一律 401
func (r *Router) requireAuth() app.HandlerFunc {
	if r.jwtAuth != nil {
		return r.jwtAuth.MiddlewareFunc()
	}
	return func(ctx context.Context, c *app.RequestContext) {
		c.AbortWithStatusJSON(consts.StatusUnauthorized, map[string]string{
			"error": "authentication is not configured",
		})
	}
}

func (r *Router) loginHandler() app.HandlerFunc {
	if r.jwtAuth != nil {
		return r.jwtAuth.LoginHandler
	}
	return func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{
			"error": "authentication is not configured",
		})
	}
}

func (r *Router) refreshHandler() app.HandlerFunc {
	if r.jwtAuth != nil {
		return r.jwtAuth.RefreshHandler
	}
	return func(ctx context.Context, c *app.RequestContext) {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{
			"error": "authentication is not configured",
		})
	}
}
