// internal/service/purchase/infrastructure/adapter/reservation_redis_adapter.go
package adapter

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	pkgredis "ticketradar/internal/pkg/redis"
)

const reserveScriptName = "reserve_quantity"

// reserveScript 原子预留：计数未初始化时按票源无上限放行（返回 1），
// 否则仅当剩余张数足够时扣减。
//
//	KEYS[1] = 剩余张数 key
//	ARGV[1] = 预留张数
const reserveScript = `
local remaining = redis.call('GET', KEYS[1])
if remaining == false then
    return 1
end
local want = tonumber(ARGV[1])
if tonumber(remaining) < want then
    return 0
end
redis.call('DECRBY', KEYS[1], want)
return 1
`

// ReservationRedisAdapter 实现 port.QuantityReserver。
// 多个执行器并发购买同一票源时，预留计数防止超买。
type ReservationRedisAdapter struct {
	redisClient *pkgredis.Client
}

func NewReservationRedisAdapter(redisClient *pkgredis.Client) (*ReservationRedisAdapter, error) {
	if err := redisClient.LoadScriptFromContent(reserveScriptName, reserveScript); err != nil {
		return nil, fmt.Errorf("failed to load reserve script: %w", err)
	}
	return &ReservationRedisAdapter{redisClient: redisClient}, nil
}

func (a *ReservationRedisAdapter) Reserve(ctx context.Context, listingID string, quantity int) (bool, error) {
	key := stockKey(listingID)
	result, err := a.redisClient.RunScript(ctx, reserveScriptName, []string{key}, quantity)
	if err != nil {
		return false, fmt.Errorf("reserve adapter failed to run script: %w", err)
	}
	code, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected result type from Lua script: %T", result)
	}
	return code == 1, nil
}

// Available 实现 port.ListingAvailability：剩余张数为 0 视为售罄。
// 计数未初始化时视为可售，由执行时的平台调用兜底校验。
func (a *ReservationRedisAdapter) Available(ctx context.Context, listingID string) (bool, error) {
	remaining, err := a.redisClient.GetClient().Get(ctx, stockKey(listingID)).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return remaining > 0, nil
}

// Release 失败尝试的补偿：归还预留张数。计数不存在时无事可做。
func (a *ReservationRedisAdapter) Release(ctx context.Context, listingID string, quantity int) error {
	key := stockKey(listingID)
	exists, err := a.redisClient.GetClient().Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return nil
	}
	return a.redisClient.GetClient().IncrBy(ctx, key, int64(quantity)).Err()
}

// SetListingStock (测试和管理用) 初始化票源剩余张数。
func (a *ReservationRedisAdapter) SetListingStock(ctx context.Context, listingID string, quantity int) error {
	return a.redisClient.GetClient().Set(ctx, stockKey(listingID), quantity, 0).Err()
}

func stockKey(listingID string) string {
	return fmt.Sprintf("listing:stock:{%s}", listingID)
}
