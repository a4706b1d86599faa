// internal/service/alert/domain/repository.go
package domain

import (
	"context"
	"time"
)

// ListFilter 列表查询的过滤与分页参数。
type ListFilter struct {
	Status   Status // 为空表示不过滤
	Platform string
	Search   string // 对名称与关键词做模糊匹配
	Page     int
	PerPage  int
}

// AlertRepository 告警聚合的持久化端口。
type AlertRepository interface {
	// Save 落库用户可编辑的告警定义。MatchesFound / LastTriggeredAt 归
	// RecordMatch 维护，Save 不写这两列。
	Save(ctx context.Context, alert *Alert) error
	FindByID(ctx context.Context, id string) (*Alert, error)
	// List 返回某用户的告警，按创建时间倒序，外加过滤前的总数。
	List(ctx context.Context, userID string, f ListFilter) ([]*Alert, int64, error)
	// ActiveCandidates 返回可能命中某平台票源的全部 active 告警：
	// 平台等于 platform 或未指定平台的。
	ActiveCandidates(ctx context.Context, platform string) ([]*Alert, error)
	// RecordMatch 原子地把命中计数 +1 并刷新最近触发时间。
	// 两个并发撮合进程命中同一条告警时计数不会丢失。
	RecordMatch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
