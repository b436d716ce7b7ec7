// Package errors 提供带错误码的统一错误类型。每个错误码在注册表中
// 携带默认的严重程度、可重试性与告警属性，业务包在 init 阶段注册
// 自己的错误码。
package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// 基础错误码。业务模块的专有错误码在各自包内定义并注册。
const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeConfigFailure         Code = "CONFIG_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeProviderFailure       Code = "PROVIDER_FAILURE"
	CodeCompletionFailure     Code = "COMPLETION_FAILURE"
	CodeOutputInvalid         Code = "OUTPUT_INVALID"
	CodeTimeout               Code = "TIMEOUT"
)

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Code]Attributes)
)

func init() {
	base := []struct {
		code Code
		attr Attributes
	}{
		{CodeUnknown, Attributes{Message: "unknown error", Severity: SeverityCritical, Alert: true}},
		{CodeInvalidArgument, Attributes{Message: "invalid argument", Severity: SeverityInfo}},
		{CodeNotFound, Attributes{Message: "resource not found", Severity: SeverityInfo}},
		{CodeConflict, Attributes{Message: "resource conflict", Severity: SeverityWarning}},
		{CodeInitializationFailure, Attributes{Message: "service not initialized", Severity: SeverityWarning, Retryable: true, Alert: true}},
		{CodeConfigFailure, Attributes{Message: "configuration error", Severity: SeverityWarning, Alert: true}},
		{CodeStorageFailure, Attributes{Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true}},
		{CodeQueueFailure, Attributes{Message: "queue failure", Severity: SeverityCritical, Retryable: true, Alert: true}},
		{CodeProviderFailure, Attributes{Message: "travel provider request failed", Severity: SeverityWarning}},
		{CodeCompletionFailure, Attributes{Message: "text completion failed", Severity: SeverityWarning, Retryable: true, Alert: true}},
		{CodeOutputInvalid, Attributes{Message: "pipeline output invalid", Severity: SeverityWarning, Alert: true}},
		{CodeTimeout, Attributes{Message: "operation timed out", Severity: SeverityWarning, Retryable: true, Alert: true}},
	}
	for _, entry := range base {
		registry[entry.code] = entry.attr
	}
}

// Register 注册（或覆盖）错误码的默认属性。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。未注册的码回退到 UNKNOWN。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。单个实例可以覆盖注册表里的默认属性。
type Error struct {
	code      Code
	message   string
	cause     error
	metadata  map[string]string
	retryable *bool
	alert     *bool
	severity  *Severity
}

// Option 定义构造错误时的可选配置。
type Option func(*Error)

// WithMetadata 附加键值形式的上下文信息。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖默认的可重试属性。
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.retryable = &retryable }
}

// WithAlert 覆盖默认的告警属性。
func WithAlert(alert bool) Option {
	return func(e *Error) { e.alert = &alert }
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.severity = &sev }
}

// New 创建一个新的错误实例。message 为空时使用错误码的默认描述。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 暴露底层错误，支持 errors.Is/As 链式匹配。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码判等，使 errors.Is 可用于哨兵错误比较。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// Retryable 判断是否可重试，实例覆盖优先于注册表默认值。
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	if e.retryable != nil {
		return *e.retryable
	}
	return AttributesOf(e.code).Retryable
}

// ShouldAlert 判断是否需要告警。
func (e *Error) ShouldAlert() bool {
	if e == nil {
		return false
	}
	if e.alert != nil {
		return *e.alert
	}
	return AttributesOf(e.code).Alert
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 链中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回任意 error 对应的错误码，非统一错误归为 UNKNOWN。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	if e, ok := From(err); ok {
		return e.Retryable()
	}
	return false
}

// ShouldAlert 判断任意 error 是否需要触发告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return e.ShouldAlert()
	}
	return false
}

// SeverityOf 返回任意 error 的严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
