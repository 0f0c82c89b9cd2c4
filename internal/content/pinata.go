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

package content

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// PinataStore Pinata pinning 服务客户端。
// 凭据缺失时退回派生 mock 哈希，签发流程不因 pinning 不可用中断。
type PinataStore struct {
	endpoint  string
	gateway   string
	apiKey    string
	secretKey string
	client    *resty.Client
	fallback  *MemoryStore
}

// NewPinataStore 创建 Pinata 客户端
func NewPinataStore(endpoint, gateway, apiKey, secretKey string) *PinataStore {
	if endpoint == "" {
		endpoint = "https://api.pinata.cloud"
	}
	if gateway == "" {
		gateway = "https://gateway.pinata.cloud/ipfs"
	}

	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)

	return &PinataStore{
		endpoint:  strings.TrimRight(endpoint, "/"),
		gateway:   gateway,
		apiKey:    apiKey,
		secretKey: secretKey,
		client:    client,
		fallback:  NewMemoryStore(gateway),
	}
}

// PinJSON 固定 JSON 内容；凭据缺失或 pinning 失败时返回派生哈希
func (s *PinataStore) PinJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	if s.apiKey == "" || s.secretKey == "" {
		return s.fallback.PinJSON(ctx, name, payload)
	}

	body := map[string]interface{}{
		"pinataMetadata": map[string]string{"name": name},
		"pinataContent":  payload,
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("pinata_api_key", s.apiKey).
		SetHeader("pinata_secret_api_key", s.secretKey).
		SetBody(body).
		Post(s.endpoint + "/pinning/pinJSONToIPFS")
	if err != nil {
		return s.fallback.PinJSON(ctx, name, payload)
	}
	if resp.StatusCode() != http.StatusOK {
		return s.fallback.PinJSON(ctx, name, payload)
	}

	var result struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("解析 Pinata 响应failed: %w", err)
	}
	if result.IpfsHash == "" {
		return s.fallback.PinJSON(ctx, name, payload)
	}
	return result.IpfsHash, nil
}

// GatewayURL 公共读取地址
func (s *PinataStore) GatewayURL(hash string) string {
	if hash == "" {
		return ""
	}
	return strings.TrimRight(s.gateway, "/") + "/" + hash
}
