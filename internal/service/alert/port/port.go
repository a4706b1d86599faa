// internal/service/alert/port/port.go
package port

import (
	"context"
	"time"

	"ticketradar/internal/service/alert/domain"
)

// ListingFeed 拉取抓取管道产出的新票源快照。
type ListingFeed interface {
	FetchSince(ctx context.Context, since time.Time) ([]*domain.Listing, error)
}

// MatchDeduplicator 判定 (alert, listing) 组合在 TTL 窗口内是否首次命中。
// 返回 true 表示首次，调用方才计数和发事件。
type MatchDeduplicator interface {
	FirstMatch(ctx context.Context, alertID, listingID string) (bool, error)
}

// MatchEventProducer 对外发布命中事件（通知、审计等下游消费）。
type MatchEventProducer interface {
	PublishMatch(ctx context.Context, ev *domain.MatchEvent) error
}

// AutoPurchaseRequest 自动购买请求，由购买服务消费并转化为购买意向。
type AutoPurchaseRequest struct {
	AlertID   string   `json:"alertId"`
	UserID    string   `json:"userId"`
	ListingID string   `json:"listingId"`
	Platform  string   `json:"platform"`
	Quantity  int      `json:"quantity"`
	Priority  int      `json:"priority"`
	MaxPrice  *float64 `json:"maxPrice,omitempty"`
}

// AutoPurchaseRequester 把自动购买请求递交给购买服务。
type AutoPurchaseRequester interface {
	RequestPurchase(ctx context.Context, req *AutoPurchaseRequest) error
}
