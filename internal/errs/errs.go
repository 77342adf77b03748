// Package errs 定义统一的业务错误分类体系。
// 各层通过错误类别(Kind)而不是具体错误值来判断处理方式，
// API 层据此映射 HTTP 状态码。
package errs

import (
	"errors"
	"fmt"
)

// Kind 表示业务错误类别
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"    // 输入不合法
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"  // 库存不足
	KindInvalidState      Kind = "INVALID_STATE"       // 当前状态下操作不合法
	KindPermission        Kind = "PERMISSION_DENIED"   // 权限不足
	KindNotFound          Kind = "NOT_FOUND"           // 资源不存在
	KindConflict          Kind = "CONCURRENCY_CONFLICT" // 并发冲突，可重试
	KindInternal          Kind = "INTERNAL_ERROR"      // 内部错误
)

// Error 携带类别信息的业务错误
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建指定类别的业务错误
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf 创建指定类别的业务错误，支持格式化消息
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误并赋予类别
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf 返回错误的类别；非业务错误归为 KindInternal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable 判断错误是否可由调用方自动重试。
// 只有并发冲突属于可重试类别。
func Retryable(err error) bool {
	return KindOf(err) == KindConflict
}
