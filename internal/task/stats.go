package task

// JobStats 汇总符合过滤条件的任务，供 /api/v1/jobs/stats 与健康检查使用。
type JobStats struct {
	Total           int            `json:"total"`
	Pending         int            `json:"pending"`
	Running         int            `json:"running"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	ByTool          map[string]int `json:"by_tool,omitempty"`
	OldestUpdatedAt int64          `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64          `json:"newest_updated_at,omitempty"`
}

func (s *JobStats) add(job *Job) {
	s.merge(job.Status, job.Tool, 1, job.UpdatedAt, job.UpdatedAt)
}

// merge 合并一组 (status, tool) 聚合结果。
func (s *JobStats) merge(status Status, tool string, count int, oldest, newest int64) {
	if count <= 0 {
		return
	}
	s.Total += count
	switch status {
	case StatusPending:
		s.Pending += count
	case StatusRunning:
		s.Running += count
	case StatusSucceeded:
		s.Succeeded += count
	case StatusFailed:
		s.Failed += count
	}
	if s.ByTool == nil {
		s.ByTool = make(map[string]int)
	}
	s.ByTool[tool] += count

	if newest > s.NewestUpdatedAt {
		s.NewestUpdatedAt = newest
	}
	if oldest != 0 && (s.OldestUpdatedAt == 0 || oldest < s.OldestUpdatedAt) {
		s.OldestUpdatedAt = oldest
	}
}
