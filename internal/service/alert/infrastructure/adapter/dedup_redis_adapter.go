// internal/service/alert/infrastructure/adapter/dedup_redis_adapter.go
package adapter

import (
	"context"
	"fmt"
	"time"

	pkgredis "ticketradar/internal/pkg/redis"
)

// DedupRedisAdapter 实现 port.MatchDeduplicator。
// SetNX 成功表示窗口内首次命中；key 随 TTL 过期后允许再次触发。
type DedupRedisAdapter struct {
	client *pkgredis.Client
	ttl    time.Duration
}

func NewDedupRedisAdapter(client *pkgredis.Client, ttl time.Duration) *DedupRedisAdapter {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupRedisAdapter{client: client, ttl: ttl}
}

func (a *DedupRedisAdapter) FirstMatch(ctx context.Context, alertID, listingID string) (bool, error) {
	key := fmt.Sprintf("match:seen:%s:%s", alertID, listingID)
	return a.client.SetNX(ctx, key, "1", a.ttl)
}
