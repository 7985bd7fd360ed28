package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidFile      ErrorCode = "INVALID_FILE_FORMAT"

	// 业务逻辑错误
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeDocumentNotReady ErrorCode = "DOCUMENT_NOT_READY"

	// 文档处理错误
	ErrCodeIngestionFailed ErrorCode = "INGESTION_FAILED"
	ErrCodeNoExtractable   ErrorCode = "NO_EXTRACTABLE_TEXT"

	// 检索与生成错误
	ErrCodeRetrievalFailed   ErrorCode = "RETRIEVAL_FAILED"
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"

	// 一致性保护错误：索引删除失败时保留文档记录
	ErrCodeConsistencyGuard ErrorCode = "CONSISTENCY_GUARD"

	// 数据库/外部服务错误
	ErrCodeDatabaseError   ErrorCode = "DATABASE_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Type      ErrorType   `json:"type"`
	HTTPCode  int         `json:"-"`
	Retryable bool        `json:"retryable,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	Cause     error       `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加错误详情
func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusInternalServerError,
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewDocumentNotReadyError 文档尚未完成向量化，不可查询
func NewDocumentNotReadyError(status string) *AppError {
	return &AppError{
		Code:     ErrCodeDocumentNotReady,
		Message:  fmt.Sprintf("document is not ready for querying (status: %s)", status),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusConflict,
	}
}

// NewIngestionError 创建文档入库失败错误，可通过重新入库重试
func NewIngestionError(message string) *AppError {
	return &AppError{
		Code:      ErrCodeIngestionFailed,
		Message:   message,
		Type:      ErrorTypeBusiness,
		HTTPCode:  http.StatusUnprocessableEntity,
		Retryable: true,
	}
}

// NewRetrievalError 检索阶段的瞬时错误，可安全重试
func NewRetrievalError(message string) *AppError {
	return &AppError{
		Code:      ErrCodeRetrievalFailed,
		Message:   message,
		Type:      ErrorTypeExternal,
		HTTPCode:  http.StatusBadGateway,
		Retryable: true,
	}
}

// NewGenerationTimeoutError 生成调用超时
func NewGenerationTimeoutError() *AppError {
	return &AppError{
		Code:      ErrCodeGenerationTimeout,
		Message:   "answer generation timed out",
		Type:      ErrorTypeExternal,
		HTTPCode:  http.StatusGatewayTimeout,
		Retryable: true,
	}
}

// NewConsistencyGuardError 索引删除失败，文档记录被保留以便重试
func NewConsistencyGuardError(message string) *AppError {
	return &AppError{
		Code:      ErrCodeConsistencyGuard,
		Message:   message,
		Type:      ErrorTypeSystem,
		HTTPCode:  http.StatusInternalServerError,
		Retryable: true,
	}
}

// IsAppError 检查是否为AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// IsCode 判断错误是否携带指定错误码
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
