package task

import (
	"slices"
	"strings"
	"time"
)

// SortOrder 控制任务列表按 updated_at 排序的方向。
type SortOrder int

const (
	SortByUpdatedDesc SortOrder = iota // 最近更新的在前
	SortByUpdatedAsc
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// ListOptions 是 List 与 Stats 共用的过滤条件。时间字段是 Unix 秒，0 表示不限。
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	Tools      []string
	UpdatedGTE int64
	UpdatedLTE int64
	HasResult  *bool
	Order      SortOrder
	// Query 在 id、tool、input、last_error 与结果 message 中做不区分大小写的子串匹配。
	Query string
}

func (opts *ListOptions) applyDefaults() {
	switch {
	case opts.Limit <= 0:
		opts.Limit = defaultListLimit
	case opts.Limit > maxListLimit:
		opts.Limit = maxListLimit
	}
	opts.Offset = max(opts.Offset, 0)
	opts.Statuses = uniqueNonEmpty(opts.Statuses, func(s Status) Status {
		if IsValidStatus(s) {
			return s
		}
		return ""
	})
	opts.Tools = uniqueNonEmpty(opts.Tools, strings.TrimSpace)
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStatuses 只保留指定状态的任务，未知状态会被忽略。
func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) { opts.Statuses = slices.Clone(statuses) }
}

// WithTools 按工具名过滤。
func WithTools(names ...string) ListOption {
	return func(opts *ListOptions) { opts.Tools = slices.Clone(names) }
}

// WithUpdatedSince 与 WithUpdatedUntil 都是闭区间；零值时间清除该边界。
func WithUpdatedSince(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedGTE = unixOrZero(ts) }
}

func WithUpdatedUntil(ts time.Time) ListOption {
	return func(opts *ListOptions) { opts.UpdatedLTE = unixOrZero(ts) }
}

// WithResultPresence 按任务是否已有工具信封过滤。
func WithResultPresence(hasResult bool) ListOption {
	return func(opts *ListOptions) { opts.HasResult = &hasResult }
}

func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

func WithQuery(query string) ListOption {
	return func(opts *ListOptions) { opts.Query = query }
}

// BuildListOptions 依次应用 opts 并补齐默认值。
func BuildListOptions(opts ...ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

// matches 供内存存储使用，SQL 存储用 buildFilterClause 表达同样的条件。
func (opts ListOptions) matches(job *Job) bool {
	switch {
	case len(opts.Statuses) > 0 && !slices.Contains(opts.Statuses, job.Status):
		return false
	case len(opts.Tools) > 0 && !slices.Contains(opts.Tools, job.Tool):
		return false
	case opts.UpdatedGTE > 0 && job.UpdatedAt < opts.UpdatedGTE:
		return false
	case opts.UpdatedLTE > 0 && job.UpdatedAt > opts.UpdatedLTE:
		return false
	case opts.HasResult != nil && (job.Result != nil) != *opts.HasResult:
		return false
	}
	if opts.Query == "" {
		return true
	}
	needle := strings.ToLower(opts.Query)
	haystack := []string{job.ID, job.Tool, job.Input, job.LastError}
	if job.Result != nil {
		haystack = append(haystack, job.Result.Message)
	}
	return slices.ContainsFunc(haystack, func(field string) bool {
		return strings.Contains(strings.ToLower(field), needle)
	})
}

// uniqueNonEmpty 规范化每个元素，丢弃零值与重复项；结果为空时返回 nil。
func uniqueNonEmpty[T comparable](input []T, normalize func(T) T) []T {
	var (
		zero   T
		result []T
	)
	for _, item := range input {
		item = normalize(item)
		if item != zero && !slices.Contains(result, item) {
			result = append(result, item)
		}
	}
	return result
}

func unixOrZero(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.Unix()
}
