package job

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/internal/pipeline"
	"TravelPlanner/pkg/logger"
)

const defaultPollInterval = 500 * time.Millisecond

// SubmitRequest 描述一次搜索作业的提交参数。
// ID 为空时由服务生成；相同 ID 的重复提交是幂等的，直接返回已有作业。
type SubmitRequest struct {
	ID    string `json:"id,omitempty"`
	Query string `json:"query"`
	Mode  string `json:"mode,omitempty"`
}

// Service 是搜索作业的入口：校验、落库、入队、查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造作业服务，maxRetries 非正数时回退为 3。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

func (s *Service) ready() error {
	if s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "作业存储未初始化")
	}
	return nil
}

// Submit 创建作业并投递到队列。入队失败时作业会被标记为失败，
// 避免留下永远停在 pending 的孤儿记录。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	mode, err := validateSubmit(req)
	if err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}
	if s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "作业队列未初始化")
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID == "" {
		jobID = uuid.NewString()
	} else if existing, err := s.lookupExisting(ctx, jobID); existing != nil || err != nil {
		return existing, err
	}

	job := &Job{
		ID:         jobID,
		Query:      req.Query,
		Mode:       string(mode),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		// 并发提交相同 ID 时以先写入的为准。
		if stdErrors.Is(err, ErrJobConflict) {
			if existing, getErr := s.lookupExisting(ctx, jobID); existing != nil || getErr != nil {
				return existing, getErr
			}
		}
		return nil, err
	}

	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("作业入队失败", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布作业到队列失败")
		_ = s.store.MarkFailed(ctx, jobID, CodeJobPublish, wrapped.Error(), true)
		return nil, wrapped
	}

	logger.Audit().Info("作业入队成功",
		slog.String("job_id", jobID),
		slog.String("query", job.Query),
		slog.String("mode", job.Mode),
		slog.Int("max_retries", job.MaxRetries),
	)
	return job, nil
}

func validateSubmit(req SubmitRequest) (pipeline.Mode, error) {
	if strings.TrimSpace(req.Query) == "" {
		return "", xerrors.New(CodeJobValidation, "查询文本不能为空")
	}
	mode, err := pipeline.ParseMode(req.Mode)
	if err != nil {
		return "", xerrors.Wrap(CodeJobValidation, err, "运行模式不合法")
	}
	return mode, nil
}

// lookupExisting 返回已存在的作业；作业不存在时返回 (nil, nil)。
func (s *Service) lookupExisting(ctx context.Context, id string) (*Job, error) {
	job, err := s.store.Get(ctx, id)
	if stdErrors.Is(err, ErrJobNotFound) {
		return nil, nil
	}
	return job, err
}

// Get 返回指定作业的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的作业列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的作业统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (JobStats, error) {
	if err := s.ready(); err != nil {
		return JobStats{}, err
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 依次关闭存储与队列生产者。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询作业直到进入终态或 ctx 取消。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
