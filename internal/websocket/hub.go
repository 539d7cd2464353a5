package websocket

import (
	"sync"
	"time"

	"github.com/wfunc/liar-bar/internal/game"
	"go.uber.org/zap"
)

// Message 推送给适配器的消息
type Message struct {
	Type      string                 `json:"type"`
	MatchID   string                 `json:"match_id,omitempty"`
	Event     *game.MatchEvent       `json:"event,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// MessageType 消息类型
const (
	MessageTypeConnected = "connected"
	MessageTypeEvent     = "event"
	MessageTypeClosed    = "closed"
	MessageTypeError     = "error"
	MessageTypePing      = "ping"
	MessageTypePong      = "pong"
)

// 事件流关闭原因
const (
	CloseReasonMatchEnded = "match_ended"
	CloseReasonLagging    = "lagging"
	CloseReasonShutdown   = "shutdown"
)

// Hub 事件流连接管理中心
type Hub struct {
	clients   map[string]*Client
	byMatch   map[string]map[string]*Client
	clientsMu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	logger *zap.Logger
}

// NewHub 创建Hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		byMatch:    make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// Run 运行Hub，Shutdown 后返回
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-h.stop:
			return
		}
	}
}

// registerClient 注册客户端
func (h *Hub) registerClient(client *Client) {
	h.clientsMu.Lock()
	h.clients[client.ID] = client
	if h.byMatch[client.MatchID] == nil {
		h.byMatch[client.MatchID] = make(map[string]*Client)
	}
	h.byMatch[client.MatchID][client.ID] = client
	h.clientsMu.Unlock()

	h.logger.Info("事件流连接",
		zap.String("client_id", client.ID),
		zap.String("adapter_id", client.AdapterID),
		zap.String("match_id", client.MatchID),
		zap.String("codec", client.codec.Name()))
}

// unregisterClient 注销客户端
func (h *Hub) unregisterClient(client *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		if m := h.byMatch[client.MatchID]; m != nil {
			delete(m, client.ID)
			if len(m) == 0 {
				delete(h.byMatch, client.MatchID)
			}
		}
	}
	h.clientsMu.Unlock()

	if ok {
		h.logger.Info("事件流断开",
			zap.String("client_id", client.ID),
			zap.String("match_id", client.MatchID))
	}
}

// Register 注册客户端
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.stop:
		return false
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// GetOnlineCount 获取连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// MatchClients 订阅某局的连接数
func (h *Hub) MatchClients(matchID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.byMatch[matchID])
}

// Shutdown 通知所有连接关闭并停止Hub
func (h *Hub) Shutdown(timeout time.Duration) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		c.finish(CloseReasonShutdown)
	}

	deadline := time.After(timeout)
	for _, c := range clients {
		select {
		case <-c.done:
		case <-deadline:
			h.logger.Warn("事件流关闭超时", zap.Int("clients", len(clients)))
			h.stopOnce.Do(func() { close(h.stop) })
			return
		}
	}
	h.stopOnce.Do(func() { close(h.stop) })
}
