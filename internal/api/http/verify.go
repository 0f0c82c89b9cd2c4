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
	"strconv"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// VerifyByID 按证书 ID 核验（公开接口）
// GET /api/verify/id/:id
func (h *Handler) VerifyByID(ctx context.Context, c *app.RequestContext) {
	v, err := h.resolver.VerifyByID(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, v)
}

// VerifyByTokenID 按链上 token ID 核验（公开接口）
// GET /api/verify/token/:tokenId
func (h *Handler) VerifyByTokenID(ctx context.Context, c *app.RequestContext) {
	tokenID, err := strconv.ParseInt(c.Param("tokenId"), 10, 64)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "tokenId must be an integer"})
		return
	}
	v, verr := h.resolver.VerifyByTokenID(ctx, tokenID)
	if verr != nil {
		h.respondError(c, verr)
		return
	}
	c.JSON(consts.StatusOK, v)
}

// VerifyByContentHash 按内容哈希核验（公开接口）
// GET /api/verify/hash/:hash
func (h *Handler) VerifyByContentHash(ctx context.Context, c *app.RequestContext) {
	hash := c.Param("hash")
	if hash == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "hash is required"})
		return
	}
	v, err := h.resolver.VerifyByContentHash(ctx, hash)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(consts.StatusOK, v)
}
