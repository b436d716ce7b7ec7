package job

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/internal/travel"
)

// MemoryStore 用内存表保存作业，面向测试与单机部署。
// 所有返回值都是深拷贝，调用方改动不会写回存储。
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore 创建空的内存存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create 写入新作业，ID 冲突时返回 ErrJobConflict。
func (m *MemoryStore) Create(_ context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if job.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "作业 ID 不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.ID]; exists {
		return ErrJobConflict
	}
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get 返回作业的拷贝。
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Claim 把作业置为运行中并累加 attempts。
// 已成功、正在运行或重试耗尽的作业返回对应的哨兵错误，
// 同时返回当前快照供调用方记录。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch {
	case job.Status == StatusSucceeded:
		return cloneJob(job), ErrJobCompleted
	case job.Status == StatusRunning:
		return cloneJob(job), ErrJobConflict
	case job.Attempts >= job.MaxRetries:
		return cloneJob(job), ErrJobExhausted
	}
	job.Status = StatusRunning
	job.Attempts++
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = time.Now().Unix()
	return cloneJob(job), nil
}

// MarkSucceeded 写入搜索结果并清空错误信息。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result travel.SearchResults) error {
	return m.mutate(id, func(job *Job) {
		job.Status = StatusSucceeded
		job.Result = cloneResult(&result)
		job.LastError = ""
		job.ErrorCode = ""
	})
}

// MarkFailed 记录失败原因与错误码。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	return m.mutate(id, func(job *Job) {
		job.Status = StatusFailed
		job.LastError = lastError
		job.ErrorCode = string(code)
	})
}

// mutate 在持锁状态下修改作业并刷新更新时间。
func (m *MemoryStore) mutate(id string, apply func(*Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	apply(job)
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回过滤、排序、分页后的作业拷贝。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Job, error) {
	opts.sanitize()

	m.mu.RLock()
	matched := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if opts.matches(job) {
			matched = append(matched, cloneJob(job))
		}
	}
	m.mu.RUnlock()

	sortJobs(matched, opts.Order)
	return paginate(matched, opts.Offset, opts.Limit), nil
}

// Stats 统计符合过滤条件的作业。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (JobStats, error) {
	opts.sanitize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats JobStats
	for _, job := range m.jobs {
		if opts.matches(job) {
			stats.observe(job)
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error { return nil }

func cloneJob(job *Job) *Job {
	clone := *job
	clone.Result = cloneResult(job.Result)
	return &clone
}

// sortJobs 按更新时间排序，时间相同时退回创建时间与 ID 保证稳定。
func sortJobs(jobs []*Job, order SortOrder) {
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if order == SortByUpdatedDesc {
			a, b = b, a
		}
		if a.UpdatedAt != b.UpdatedAt {
			return a.UpdatedAt < b.UpdatedAt
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}

func paginate(jobs []*Job, offset, limit int) []*Job {
	if offset >= len(jobs) {
		return []*Job{}
	}
	jobs = jobs[offset:]
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs
}

// matches 判断作业是否满足全部过滤条件。
func (opts ListOptions) matches(job *Job) bool {
	if len(opts.Statuses) > 0 && !containsStatus(opts.Statuses, job.Status) {
		return false
	}
	if opts.UpdatedGTE > 0 && job.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && job.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	if opts.HasResult != nil && job.HasResult() != *opts.HasResult {
		return false
	}
	if opts.Query != "" && !fuzzyMatch(job, opts.Query) {
		return false
	}
	return true
}

func containsStatus(statuses []Status, status Status) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

// fuzzyMatch 在 ID、查询文本、错误信息与错误码中做大小写无关的子串匹配。
func fuzzyMatch(job *Job, query string) bool {
	needle := strings.ToLower(query)
	for _, field := range []string{job.ID, job.Query, job.LastError, job.ErrorCode} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
