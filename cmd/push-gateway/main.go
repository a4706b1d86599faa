// cmd/push-gateway/main.go
package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"

	"ticketradar/internal/pkg/bootstrap"
	"ticketradar/internal/pkg/logger"
	"ticketradar/internal/pkg/mq"
	"ticketradar/internal/pkg/session"
)

const (
	serviceName = "push-gateway"
	servicePort = 8095

	pushTopic = "push-messages"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second // 必须小于 pongWait
)

var (
	nodeID   = serviceName + "-" + uuid.NewString()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		// 跨域校验交给前置网关
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

// Hub 维护本节点全部活跃连接，按 UserID 索引。
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			if old, ok := h.clients[client.userID]; ok {
				close(old.send)
			}
			h.clients[client.userID] = client
			h.lock.Unlock()
			logger.Ctx(ctx).Info().Str("user_id", client.userID).Str("node", nodeID).Msg("push client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.lock.Unlock()
			logger.Ctx(ctx).Info().Str("user_id", client.userID).Msg("push client unregistered")
		case <-ctx.Done():
			return
		}
	}
}

// deliver 把消息送到该用户的本地连接，不在本节点则丢弃（由会话映射
// 保证路由正确，残留消息只在连接迁移的瞬间出现）。
func (h *Hub) deliver(userID string, payload []byte) bool {
	h.lock.RLock()
	client, ok := h.clients[userID]
	h.lock.RUnlock()
	if !ok {
		return false
	}
	select {
	case client.send <- payload:
		return true
	default:
		// 发送缓冲已满，视为连接不健康
		return false
	}
}

// Client 一条 WebSocket 连接。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

// writePump 把 send 通道里的消息写入连接，并定期发 ping 保活。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 消费客户端心跳，连接断开时触发注销。
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(ctx context.Context, hub *Hub, sessionMgr *session.Manager, w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), userID: userID}
	hub.register <- client

	if err := sessionMgr.SetUserGateway(r.Context(), userID, nodeID); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("user_id", userID).Msg("set push session failed")
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// consumePush 消费 push 主题，把属于本节点在线用户的消息下发。
func consumePush(ctx context.Context, reader *kafka.Reader, hub *Hub) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Ctx(ctx).Error().Err(err).Msg("fetch push message failed")
			time.Sleep(time.Second)
			continue
		}

		// key 是会话标识（userID），载荷原样透传给客户端
		userID := string(msg.Key)
		if delivered := hub.deliver(userID, msg.Value); !delivered {
			logger.Ctx(ctx).Debug().Str("user_id", userID).Msg("push target not connected to this node")
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("commit push message failed")
		}
	}
}

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	sessionMgr := session.NewManager(cfg.Infra.Redis.Addr)
	defer sessionMgr.Close()

	hub := newHub()
	workCtx, stopWork := context.WithCancel(context.Background())
	go hub.run(workCtx)

	// 每个网关节点一个独立消费组，push 主题的消息广播到所有节点，
	// 由各节点按本地连接过滤
	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, pushTopic, serviceName+"-group-"+nodeID)
	go consumePush(workCtx, reader, hub)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				serveWs(workCtx, hub, sessionMgr, w, r)
			})
		},
		OnShutdown: func(ctx context.Context) {
			stopWork()
			reader.Close()
		},
	})
}
