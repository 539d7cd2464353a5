package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"
)

// ErrorCode 错误码类型
type ErrorCode int

// 错误码定义（按模块分组）
const (
	// 通用错误 (1000-1999)
	ErrUnknown          ErrorCode = 1000
	ErrInvalidParam     ErrorCode = 1001
	ErrNotFound         ErrorCode = 1002
	ErrAlreadyExists    ErrorCode = 1003
	ErrPermissionDenied ErrorCode = 1004
	ErrTimeout          ErrorCode = 1005
	ErrCanceled         ErrorCode = 1006

	// 对局错误 (2000-2999)
	ErrInsufficientPlayers ErrorCode = 2000
	ErrPlayerAlreadySeated ErrorCode = 2001
	ErrMatchNotFound       ErrorCode = 2002
	ErrValidation          ErrorCode = 2003
	ErrConcurrencyConflict ErrorCode = 2004
	ErrInvariantViolation  ErrorCode = 2005
	ErrTooManyPlayers      ErrorCode = 2006
	ErrDuplicatePlayer     ErrorCode = 2007

	// 统计错误 (3000-3999)
	ErrStatsNotFound ErrorCode = 3000
	ErrScoreTooLow   ErrorCode = 3001

	// 存储错误 (5000-5999)
	ErrStorageUnavailable ErrorCode = 5000
	ErrDatabaseQuery      ErrorCode = 5001
	ErrDatabaseWrite      ErrorCode = 5002
	ErrTransaction        ErrorCode = 5003
	ErrDataIntegrity      ErrorCode = 5004

	// 配置错误 (6000-6999)
	ErrConfigLoad     ErrorCode = 6000
	ErrConfigValidate ErrorCode = 6001

	// 安全错误 (7000-7999)
	ErrAuthentication ErrorCode = 7000
	ErrTokenExpired   ErrorCode = 7001
	ErrTokenInvalid   ErrorCode = 7002
)

// 错误码消息映射
var errorMessages = map[ErrorCode]string{
	ErrUnknown:          "未知错误",
	ErrInvalidParam:     "无效的参数",
	ErrNotFound:         "资源未找到",
	ErrAlreadyExists:    "资源已存在",
	ErrPermissionDenied: "权限不足",
	ErrTimeout:          "操作超时",
	ErrCanceled:         "操作已取消",

	ErrInsufficientPlayers: "玩家人数不足",
	ErrPlayerAlreadySeated: "玩家已在其他对局中",
	ErrMatchNotFound:       "对局不存在或已结束",
	ErrValidation:          "动作校验失败",
	ErrConcurrencyConflict: "并发冲突",
	ErrInvariantViolation:  "对局状态不变量被破坏",
	ErrTooManyPlayers:      "玩家人数超过上限",
	ErrDuplicatePlayer:     "同一玩家重复入座",

	ErrStatsNotFound: "玩家统计不存在",
	ErrScoreTooLow:   "积分不足",

	ErrStorageUnavailable: "存储不可用",
	ErrDatabaseQuery:      "数据库查询失败",
	ErrDatabaseWrite:      "数据库写入失败",
	ErrTransaction:        "事务处理失败",
	ErrDataIntegrity:      "数据完整性错误",

	ErrConfigLoad:     "配置加载失败",
	ErrConfigValidate: "配置验证失败",

	ErrAuthentication: "认证失败",
	ErrTokenExpired:   "令牌已过期",
	ErrTokenInvalid:   "无效的令牌",
}

// AppError 应用错误结构
type AppError struct {
	Code    ErrorCode    `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Cause   error        `json:"-"`
	Stack   []StackFrame `json:"-"`
}

// StackFrame 调用栈帧
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%d] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 添加详细信息
func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

// WithCause 添加原因错误
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	if cause != nil && e.Details == "" {
		e.Details = cause.Error()
	}
	return e
}

// New 创建新的应用错误
func New(code ErrorCode, details ...string) *AppError {
	message, ok := errorMessages[code]
	if !ok {
		message = errorMessages[ErrUnknown]
	}

	err := &AppError{
		Code:    code,
		Message: message,
	}
	if len(details) > 0 {
		err.Details = strings.Join(details, "; ")
	}

	err.captureStack(2)
	return err
}

// Newf 创建格式化的应用错误
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap 包装错误，已经是AppError时保留原始错误码
func Wrap(err error, code ErrorCode, details ...string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		if len(details) > 0 {
			appErr.Details = strings.Join(details, "; ") + "; " + appErr.Details
		}
		return appErr
	}

	wrapped := New(code, details...)
	wrapped.Cause = err
	if wrapped.Details == "" {
		wrapped.Details = err.Error()
	}
	return wrapped
}

// Wrapf 包装格式化错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// Is 判断错误链中是否有指定错误码
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// GetCode 获取错误码
func GetCode(err error) ErrorCode {
	if err == nil {
		return 0
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrUnknown
}

// captureStack 捕获调用栈
func (e *AppError) captureStack(skip int) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return
	}

	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()

		// 跳过runtime和本包的调用
		if !strings.Contains(frame.Function, "runtime.") &&
			!strings.Contains(frame.Function, "github.com/wfunc/liar-bar/internal/errors") {
			e.Stack = append(e.Stack, StackFrame{
				Function: frame.Function,
				File:     frame.File,
				Line:     frame.Line,
			})
		}

		if !more || len(e.Stack) >= 10 {
			break
		}
	}
}

// GetStack 获取格式化的调用栈
func (e *AppError) GetStack() string {
	var builder strings.Builder
	for i, frame := range e.Stack {
		builder.WriteString(fmt.Sprintf("%d. %s\n   %s:%d\n",
			i+1, frame.Function, frame.File, frame.Line))
	}
	return builder.String()
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case ErrInvalidParam, ErrInsufficientPlayers, ErrTooManyPlayers, ErrDuplicatePlayer:
		return http.StatusBadRequest
	case ErrNotFound, ErrMatchNotFound, ErrStatsNotFound:
		return http.StatusNotFound
	case ErrPlayerAlreadySeated, ErrAlreadyExists, ErrConcurrencyConflict:
		return http.StatusConflict
	case ErrValidation, ErrScoreTooLow:
		return http.StatusUnprocessableEntity
	case ErrPermissionDenied:
		return http.StatusForbidden
	case ErrAuthentication, ErrTokenExpired, ErrTokenInvalid:
		return http.StatusUnauthorized
	case ErrTimeout:
		return http.StatusRequestTimeout
	}
	if e.Code >= 5000 && e.Code <= 5999 {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	switch GetCode(err) {
	case ErrStorageUnavailable, ErrTimeout, ErrConcurrencyConflict:
		return true
	default:
		return false
	}
}

// IsCritical 判断是否为严重错误
func IsCritical(err error) bool {
	switch GetCode(err) {
	case ErrInvariantViolation, ErrDataIntegrity, ErrConfigLoad:
		return true
	default:
		return false
	}
}
