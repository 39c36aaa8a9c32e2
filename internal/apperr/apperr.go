package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ==================== 错误类型常量 ====================

// Kind 稳定的错误类别标识，对外接口只暴露 Kind + Message
type Kind string

const (
	KindConfig        Kind = "config_error"        // 凭证/配置缺失
	KindValidation    Kind = "validation_error"    // 入参校验失败
	KindRangeTooLarge Kind = "range_too_large"     // 超过远端 180 天窗口
	KindAuth          Kind = "auth_error"          // Token 换取失败
	KindRateLimit     Kind = "rate_limit_exceeded" // 重试次数耗尽
	KindUpstreamBad   Kind = "upstream_bad_request" // 远端返回 400
	KindPersistence   Kind = "persistence_error"   // 入库失败
	KindInternal      Kind = "internal_error"      // 兜底
)

// ==================== AppError ====================

// Error 业务错误
// 注意：Message 会原样返回给调用方，禁止携带凭证或堆栈信息
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New 创建业务错误
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// ==================== 辅助函数 ====================

// KindOf 提取错误类别，非业务错误归为 internal_error
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf 提取对外的可读信息
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "内部错误"
}

// HTTPStatus 错误类别 → HTTP 状态码
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindConfig, KindValidation, KindUpstreamBad:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindRangeTooLarge:
		// 超窗会降级为仅缓存，正常不会走到这里；兜底按 400 处理
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Is 判断错误是否属于指定类别
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
