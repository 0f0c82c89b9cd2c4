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

package middleware

import (
	"context"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
	"golang.org/x/crypto/bcrypt"

	"educhain/internal/storage/record"
	"educhain/pkg/errors"
)

// IdentityKey JWT claims 中机构 ID 的 key
const IdentityKey = "institution_id"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Identity 认证后的机构身份
type Identity struct {
	InstitutionID string `json:"institutionId"`
	Email         string `json:"email"`
	Wallet        string `json:"wallet"`
}

// NewJWTAuth 创建机构登录用 JWT 中间件。
// Authenticator 按邮箱取机构记录并校验 bcrypt 口令。
func NewJWTAuth(key []byte, timeout, maxRefresh time.Duration, insts record.InstitutionStore) (*jwt.HertzJWTMiddleware, error) {
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "educhain",
		Key:         key,
		Timeout:     timeout,
		MaxRefresh:  maxRefresh,
		IdentityKey: IdentityKey,

		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req loginRequest
			if err := c.BindJSON(&req); err != nil {
				return nil, jwt.ErrMissingLoginValues
			}
			inst, err := insts.GetByEmail(ctx, req.Email)
			if errors.IsNotFound(err) {
				return nil, jwt.ErrFailedAuthentication
			}
			if err != nil {
				return nil, err
			}
			if bcrypt.CompareHashAndPassword([]byte(inst.PasswordHash), []byte(req.Password)) != nil {
				return nil, jwt.ErrFailedAuthentication
			}
			return &Identity{
				InstitutionID: inst.ID,
				Email:         inst.Email,
				Wallet:        inst.WalletAddress,
			}, nil
		},

		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if id, ok := data.(*Identity); ok {
				return jwt.MapClaims{
					IdentityKey: id.InstitutionID,
					"email":     id.Email,
					"wallet":    id.Wallet,
				}
			}
			return jwt.MapClaims{}
		},

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			id, _ := claims[IdentityKey].(string)
			email, _ := claims["email"].(string)
			wallet, _ := claims["wallet"].(string)
			return &Identity{InstitutionID: id, Email: email, Wallet: wallet}
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]string{"error": message})
		},
	})
}

// CurrentIdentity 从请求上下文取认证身份；未认证返回 nil
func CurrentIdentity(ctx context.Context, c *app.RequestContext) *Identity {
	v, exists := c.Get(IdentityKey)
	if !exists {
		return nil
	}
	id, _ := v.(*Identity)
	return id
}
