package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore 内存内容存储：从内容派生确定性 mock 哈希。
// 哈希格式与真实 IPFS CIDv0 同形（Qm 前缀），链上合约按不透明字符串处理。
type MemoryStore struct {
	gateway string

	mu     sync.RWMutex
	pinned map[string][]byte
}

// NewMemoryStore 创建内存内容存储
func NewMemoryStore(gateway string) *MemoryStore {
	return &MemoryStore{
		gateway: gateway,
		pinned:  make(map[string][]byte),
	}
}

// PinJSON 固定 JSON 内容并返回派生哈希
func (s *MemoryStore) PinJSON(ctx context.Context, name string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := "Qm" + hex.EncodeToString(sum[:])[:44]

	s.mu.Lock()
	s.pinned[hash] = data
	s.mu.Unlock()
	return hash, nil
}

// GatewayURL 公共读取地址
func (s *MemoryStore) GatewayURL(hash string) string {
	if s.gateway == "" || hash == "" {
		return ""
	}
	return strings.TrimRight(s.gateway, "/") + "/" + hash
}

// Pinned 已固定的原始内容；测试用
func (s *MemoryStore) Pinned(hash string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.pinned[hash]
	return data, ok
}
