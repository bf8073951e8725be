package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型，Code 决定调用方如何处理
//   - Module 标明出错的模块，便于日志/监控聚合
//   - Err 保留底层原因，支持 errors.Is / errors.As
//
// 错误分类：
//   - 配置错误（INTERNAL_ERROR）：模型权重与特征数量不一致等，绑定阶段直接失败
//   - 解析错误（BAD_REQUEST / NOT_FOUND）：模型名缺失、未知模型、rerank 深度非法
//   - 不支持的操作（NOT_SUPPORTED）：显式返回，绝不 panic
//   - 单特征抽取错误：在特征引擎内部吸收，不会出现在这里
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "BAD_REQUEST"）
	Message string // 错误消息
	Module  string // 模块名称（如 "model", "feature", "rerank"）
	Err     error  // 底层原因（可为 nil）
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is 让 errors.Is 按 Module + Code 匹配哨兵错误。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Module == "" || e.Module == t.Module)
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建携带底层原因的领域错误
func WrapDomainError(module, code string, err error, format string, args ...any) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在（模型、特征库）
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeBadRequest    = "BAD_REQUEST"    // 请求参数错误，直接返回给调用方
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部/配置错误
)

// 模块名称常量
const (
	ModuleStore    = "store"    // 存储模块
	ModuleFeature  = "feature"  // 特征模块
	ModuleNorm     = "norm"     // 归一化模块
	ModuleModel    = "model"    // 打分模型模块
	ModuleRerank   = "rerank"   // 重排模块
	ModuleSearch   = "search"   // 检索原语模块
	ModuleGovernor = "governor" // 并发控制模块
	ModuleService  = "service"  // HTTP 服务模块
)

// ErrNotSupported 是通用的“不支持”哨兵错误，可用 errors.Is 判断。
var ErrNotSupported = NewDomainError("", ErrorCodeNotSupported, "operation not supported")

// BadRequestf 创建面向调用方的请求错误
func BadRequestf(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeBadRequest, fmt.Sprintf(format, args...))
}

// ConfigErrorf 创建配置错误（绑定阶段失败，服务端错误）
func ConfigErrorf(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeInternalError, fmt.Sprintf(format, args...))
}

// NotSupportedf 创建“不支持的操作”错误
func NotSupportedf(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeNotSupported, fmt.Sprintf(format, args...))
}

// 通用错误检查函数

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsConfigError 检查错误是否为配置错误（INTERNAL_ERROR）
func IsConfigError(err error) bool { return hasCode(err, ErrorCodeInternalError) }

// IsBadRequest 检查错误是否应当以“请求错误”返回给调用方
func IsBadRequest(err error) bool {
	return hasCode(err, ErrorCodeBadRequest) || hasCode(err, ErrorCodeInvalidInput)
}
