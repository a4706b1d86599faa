// internal/pkg/session/session.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionTTL = 24 * time.Hour

// Manager 维护 "用户 -> 所连推送网关节点" 的映射，
// 供路由判断某个用户当前挂在哪个网关上。
type Manager struct {
	client *redis.Client
}

func NewManager(addr string) *Manager {
	return &Manager{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// SetUserGateway 记录用户连接到的网关节点。
func (m *Manager) SetUserGateway(ctx context.Context, userID, nodeID string) error {
	return m.client.Set(ctx, sessionKey(userID), nodeID, sessionTTL).Err()
}

// GetUserGateway 查询用户所在的网关节点，未在线返回空串。
func (m *Manager) GetUserGateway(ctx context.Context, userID string) (string, error) {
	nodeID, err := m.client.Get(ctx, sessionKey(userID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return nodeID, err
}

// ClearUserGateway 连接断开时清理映射。
func (m *Manager) ClearUserGateway(ctx context.Context, userID string) error {
	return m.client.Del(ctx, sessionKey(userID)).Err()
}

func (m *Manager) Close() error { return m.client.Close() }

func sessionKey(userID string) string {
	return fmt.Sprintf("push:session:%s", userID)
}
