package job

import (
	stdErrors "errors"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/internal/travel"
)

// Status 表示搜索作业在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job 描述了排队执行的旅行搜索作业。
type Job struct {
	ID         string                `json:"id"`
	Query      string                `json:"query"`
	Mode       string                `json:"mode"`
	Status     Status                `json:"status"`
	Attempts   int                   `json:"attempts"`
	MaxRetries int                   `json:"max_retries"`
	LastError  string                `json:"last_error,omitempty"`
	ErrorCode  string                `json:"error_code,omitempty"`
	Result     *travel.SearchResults `json:"result,omitempty"`
	CreatedAt  int64                 `json:"created_at"`
	UpdatedAt  int64                 `json:"updated_at"`
}

// HasResult 报告作业是否已经带有非空的搜索结果。
func (j *Job) HasResult() bool {
	if j == nil || j.Result == nil {
		return false
	}
	return len(j.Result.Flights) > 0 || len(j.Result.Hotels) > 0
}

var (
	// ErrJobNotFound 表示指定的作业不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "job not found")
	// ErrJobConflict 表示作业在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted 表示作业已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted 表示作业的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeJobNotFound   xerrors.Code = "JOB_NOT_FOUND"
	CodeJobConflict   xerrors.Code = "JOB_CONFLICT"
	CodeJobCompleted  xerrors.Code = "JOB_COMPLETED"
	CodeJobExhausted  xerrors.Code = "JOB_RETRIES_EXHAUSTED"
	CodeJobValidation xerrors.Code = "JOB_VALIDATION_FAILED"
	CodeJobPublish    xerrors.Code = "JOB_PUBLISH_FAILED"
	CodeJobProcessing xerrors.Code = "JOB_PROCESSING_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:   "job not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:   "job conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:   "job already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:   "job retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:   "job validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "job execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// IsJobError 判断错误是否为统一作业错误。
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrJobNotFound) {
		return target == CodeJobNotFound
	}
	if stdErrors.Is(err, ErrJobConflict) {
		return target == CodeJobConflict
	}
	if stdErrors.Is(err, ErrJobCompleted) {
		return target == CodeJobCompleted
	}
	if stdErrors.Is(err, ErrJobExhausted) {
		return target == CodeJobExhausted
	}
	return false
}

// IsValidStatus 检查给定的作业状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneResult(result *travel.SearchResults) *travel.SearchResults {
	if result == nil {
		return nil
	}
	clone := result.Clone()
	return &clone
}
