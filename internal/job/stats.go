package job

// JobStats 汇总一批作业的状态分布与更新时间窗口，
// 供 /v1/searches/stats 接口和运维面板使用。
type JobStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// observe 把一个作业计入统计。
func (s *JobStats) observe(job *Job) {
	s.Total++
	switch job.Status {
	case StatusPending:
		s.Pending++
	case StatusRunning:
		s.Running++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	}
	if job.UpdatedAt > s.NewestUpdatedAt {
		s.NewestUpdatedAt = job.UpdatedAt
	}
	if job.UpdatedAt != 0 && (s.OldestUpdatedAt == 0 || job.UpdatedAt < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = job.UpdatedAt
	}
}
