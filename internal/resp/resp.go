// Package resp 提供统一的 JSON 响应封装。
// 所有 API 响应使用 {code, message, data, request_id} 结构，
// 业务错误类别在这里统一映射为 HTTP 状态码。
package resp

import (
	"encoding/json"
	"net/http"

	"github.com/pharmaops/pharmacy_server/internal/errs"
)

// Code 表示业务响应码
type Code int

const (
	CodeOK                Code = 0
	CodeInvalidParam      Code = 10001
	CodeUnauthorized      Code = 10002
	CodeForbidden         Code = 10003
	CodeNotFound          Code = 10004
	CodeConflict          Code = 10005
	CodeTimeout           Code = 10006
	CodeTooManyRequests   Code = 10007
	CodeInsufficientStock Code = 20001
	CodeInvalidState      Code = 20002
	CodeInternalError     Code = 50000
)

// HTTPStatusFromCode 返回业务码对应的 HTTP 状态码
func HTTPStatusFromCode(c Code) int {
	switch c {
	case CodeOK:
		return http.StatusOK
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusServiceUnavailable
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeInsufficientStock, CodeInvalidState:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Body 表示统一响应体
type Body struct {
	Code      Code   `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// OK 写入成功响应
func OK(w http.ResponseWriter, data any, requestID, message string) {
	if message == "" {
		message = "ok"
	}
	write(w, http.StatusOK, &Body{Code: CodeOK, Message: message, Data: data, RequestID: requestID})
}

// Error 写入错误响应；detail 非空时附加到 message
func Error(w http.ResponseWriter, httpStatus int, code Code, message, requestID, detail string) {
	if detail != "" {
		message = message + ": " + detail
	}
	write(w, httpStatus, &Body{Code: code, Message: message, RequestID: requestID})
}

// BizError 将业务错误按类别映射为响应。
// 非 errs.Error 归为内部错误，消息不向客户端透传。
func BizError(w http.ResponseWriter, err error, requestID string) {
	code := codeFromKind(errs.KindOf(err))
	msg := err.Error()
	if code == CodeInternalError {
		msg = "internal server error"
	}
	Error(w, HTTPStatusFromCode(code), code, msg, requestID, "")
}

func codeFromKind(kind errs.Kind) Code {
	switch kind {
	case errs.KindValidation:
		return CodeInvalidParam
	case errs.KindInsufficientStock:
		return CodeInsufficientStock
	case errs.KindInvalidState:
		return CodeInvalidState
	case errs.KindPermission:
		return CodeForbidden
	case errs.KindNotFound:
		return CodeNotFound
	case errs.KindConflict:
		return CodeConflict
	default:
		return CodeInternalError
	}
}

func write(w http.ResponseWriter, status int, body *Body) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	// 编码失败时响应头已写出，只能放弃
	_ = json.NewEncoder(w).Encode(body)
}
