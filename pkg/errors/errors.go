// Package errors 提供统一错误辅助与账本错误分类，不依赖 internal
package errors

import (
	"errors"
	"fmt"
)

// 常用哨兵错误（store 层）
var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidArg = errors.New("invalid argument")
	ErrDuplicate  = errors.New("already exists")
)

// 账本（链上注册表）错误分类：调用方按类别决定降级/幂等/失败
var (
	// ErrLedgerUnavailable 未配置签名凭证或网关不可达；工作流降级，不作为硬失败上抛
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrLedgerConflict 操作已在链上完成（重复注册/重复签发）；按成功处理
	ErrLedgerConflict = errors.New("ledger operation already performed")
	// ErrLedgerRejected 链上业务前置条件不满足，携带细节上抛
	ErrLedgerRejected = errors.New("ledger rejected operation")
	// ErrAuthorizationMismatch 钱包地址与记录所有者不符；在任何账本调用之前检查
	ErrAuthorizationMismatch = errors.New("wallet address does not match record owner")
)

// Is 透传 errors.Is，调用方不必同时导入标准库 errors
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap 包装错误并附加消息
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 带格式的 Wrap
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsNotFound 判断是否为「确认不存在」（区别于查询失败）
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsLedgerUnavailable 判断是否为账本不可用类错误
func IsLedgerUnavailable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}

// IsLedgerConflict 判断是否为「链上已完成」类冲突
func IsLedgerConflict(err error) bool {
	return errors.Is(err, ErrLedgerConflict)
}
