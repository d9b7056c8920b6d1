package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// Message 推送给前端的消息
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Client 单个连接，同一用户可同时持有多个（多标签页）
type Client struct {
	UserID int64
	Conn   *websocket.Conn

	writeMu sync.Mutex
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Conn.WriteMessage(messageType, data)
}

// Ping 心跳
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub 按用户分组的在线连接
type Hub struct {
	mu    sync.RWMutex
	users map[int64]map[*Client]struct{}
	log   *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		users: make(map[int64]map[*Client]struct{}),
		log:   log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	set, ok := h.users[c.UserID]
	if !ok {
		set = make(map[*Client]struct{})
		h.users[c.UserID] = set
	}
	set[c] = struct{}{}
	n := len(set)
	h.mu.Unlock()

	h.log.Debug("websocket connected", zap.Int64("user_id", c.UserID), zap.Int("user_conns", n))
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if set, ok := h.users[c.UserID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.users, c.UserID)
		}
	}
	h.mu.Unlock()

	h.log.Debug("websocket disconnected", zap.Int64("user_id", c.UserID))
}

// snapshot 拷贝用户当前连接，写入时不持有 hub 锁
func (h *Hub) snapshot(userID int64) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.users[userID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

// SendToUser 推送到用户的全部连接，离线时什么也不做；单个连接写失败只记日志
func (h *Hub) SendToUser(userID int64, msg *Message) error {
	clients := h.snapshot(userID)
	if len(clients) == 0 {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	for _, c := range clients {
		if err := c.write(websocket.TextMessage, payload); err != nil {
			h.log.Warn("websocket write failed", zap.Int64("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// ConnectionCount 所有用户的连接总数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, set := range h.users {
		n += len(set)
	}
	return n
}

// CloseAll 发送 going-away 并关闭全部连接，http.Server.Shutdown 不会处理已劫持的连接
func (h *Hub) CloseAll() int {
	h.mu.Lock()
	users := h.users
	h.users = make(map[int64]map[*Client]struct{})
	h.mu.Unlock()

	closing := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	n := 0
	for _, set := range users {
		for c := range set {
			c.writeMu.Lock()
			_ = c.Conn.WriteControl(websocket.CloseMessage, closing, time.Now().Add(writeWait))
			c.writeMu.Unlock()
			_ = c.Conn.Close()
			n++
		}
	}
	return n
}
