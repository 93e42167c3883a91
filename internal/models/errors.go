package models

import (
	"errors"
	"fmt"
)

// 控制路径的校验错误，同步返回给调用方，不重试
var (
	ErrInvalidDevice = errors.New("invalid device")
	ErrUnauthorized  = errors.New("unauthorized")
)

// DecodeErrorKind 解码错误分类
type DecodeErrorKind string

const (
	// MalformedPayload 字节流无法解析
	MalformedPayload DecodeErrorKind = "malformed_payload"
	// MissingRequiredField 语法合法但无法映射为 Reading
	MissingRequiredField DecodeErrorKind = "missing_required_field"
)

// DecodeError 入站消息解码错误
// 记录日志后丢弃消息，不中断订阅循环。
type DecodeError struct {
	Kind  DecodeErrorKind
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error (%s): %v", e.Kind, e.Cause)
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// NewDecodeError 创建解码错误
func NewDecodeError(kind DecodeErrorKind, cause error) *DecodeError {
	return &DecodeError{Kind: kind, Cause: cause}
}
