package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"
)

// Middleware 中间件管理器
type Middleware struct {
	adminEmail string
}

// NewMiddleware 创建中间件管理器；adminEmail 为平台管理员邮箱
func NewMiddleware(adminEmail string) *Middleware {
	return &Middleware{adminEmail: adminEmail}
}

// CORS CORS 中间件
func (m *Middleware) CORS() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Admin-Email")
		c.Header("Access-Control-Max-Age", "86400")

		if string(c.Method()) == "OPTIONS" {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// AdminOnly 管理端校验：请求方必须带平台管理员邮箱头
func (m *Middleware) AdminOnly() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if m.adminEmail == "" || string(c.GetHeader("X-Admin-Email")) != m.adminEmail {
			c.JSON(consts.StatusForbidden, map[string]string{
				"error": "admin access required",
			})
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}

// RateLimit 令牌桶限流；认证类接口用
func (m *Middleware) RateLimit(rps float64, burst int) app.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(ctx context.Context, c *app.RequestContext) {
		if !limiter.Allow() {
			c.JSON(consts.StatusTooManyRequests, map[string]string{
				"error": "too many requests",
			})
			c.Abort()
			return
		}
		c.Next(ctx)
	}
}
