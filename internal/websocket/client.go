package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/wfunc/liar-bar/internal/game"
	"go.uber.org/zap"
)

// 错误定义
var (
	ErrInvalidMessage = errors.New("无效的消息格式")
	ErrUnknownCodec   = errors.New("未知的编码格式")
)

// WebSocket配置
const (
	// 写超时
	writeWait = 10 * time.Second

	// 读取pong超时
	pongWait = 60 * time.Second

	// ping发送周期（必须小于pongWait）
	pingPeriod = (pongWait * 9) / 10

	// 适配器只发控制消息
	maxMessageSize = 4 * 1024

	sendBuffer = 64
)

// Client 订阅单局事件的适配器连接
type Client struct {
	ID        string
	AdapterID string
	MatchID   string
	Hub       *Hub
	Conn      *websocket.Conn
	Send      chan []byte

	codec Codec
	sub   *game.Subscription

	ctx    context.Context
	cancel context.CancelFunc

	finished   chan struct{}
	finishOnce sync.Once
	done       chan struct{}
	closeOnce  sync.Once
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, adapterID string, sub *game.Subscription, codec Codec) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:        uuid.New().String(),
		AdapterID: adapterID,
		MatchID:   sub.MatchID,
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		codec:     codec,
		sub:       sub,
		ctx:       ctx,
		cancel:    cancel,
		finished:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start 注册并启动读写协程
func (c *Client) Start() {
	if !c.Hub.Register(c) {
		c.Close()
		return
	}
	go c.WritePump()
	go c.ReadPump()
	go c.StreamEvents()
}

// StreamEvents 把订阅中的事件按提交顺序转发给连接
func (c *Client) StreamEvents() {
	c.enqueue(&Message{Type: MessageTypeConnected, MatchID: c.MatchID})

	for {
		ev, err := c.sub.Next(c.ctx)
		if err != nil {
			switch {
			case errors.Is(err, game.ErrSubscriberLagging):
				c.Hub.logger.Warn("事件流消费过慢，断开",
					zap.String("client_id", c.ID),
					zap.String("match_id", c.MatchID))
				c.finish(CloseReasonLagging)
			case errors.Is(err, game.ErrSubscriptionClosed):
				c.finish(CloseReasonMatchEnded)
			}
			return
		}
		c.enqueue(&Message{Type: MessageTypeEvent, MatchID: c.MatchID, Event: &ev})
	}
}

// ReadPump 读取控制消息
func (c *Client) ReadPump() {
	defer c.Close()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.Hub.logger.Debug("事件流读取错误",
					zap.String("client_id", c.ID),
					zap.Error(err))
			}
			return
		}
		c.handleMessage(data)
	}
}

// WritePump 写入消息，事件流结束后写完剩余消息并关闭
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case data := <-c.Send:
			if err := c.write(data); err != nil {
				return
			}

		case <-c.finished:
			for {
				select {
				case data := <-c.Send:
					if err := c.write(data); err != nil {
						return
					}
				default:
					c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
					c.Conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) write(data []byte) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(c.codec.FrameType(), data)
}

// handleMessage 处理适配器发来的消息，动作走HTTP接口
func (c *Client) handleMessage(data []byte) {
	msg, err := c.codec.Decode(data)
	if err != nil {
		c.sendError("消息格式错误")
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.enqueue(&Message{Type: MessageTypePong, MatchID: c.MatchID})
	case MessageTypePong:
	default:
		c.sendError("不支持的消息类型: " + msg.Type)
	}
}

// sendError 发送错误消息
func (c *Client) sendError(message string) {
	c.enqueue(&Message{
		Type:    MessageTypeError,
		MatchID: c.MatchID,
		Data:    map[string]interface{}{"error": message},
	})
}

// enqueue 编码后放入发送队列，连接关闭时丢弃
func (c *Client) enqueue(msg *Message) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := c.codec.Encode(msg)
	if err != nil {
		c.Hub.logger.Error("编码消息失败",
			zap.String("client_id", c.ID),
			zap.String("type", msg.Type),
			zap.Error(err))
		return
	}
	select {
	case c.Send <- data:
	case <-c.ctx.Done():
	}
}

// finish 发送关闭原因并结束写协程
func (c *Client) finish(reason string) {
	c.finishOnce.Do(func() {
		c.enqueue(&Message{
			Type:    MessageTypeClosed,
			MatchID: c.MatchID,
			Data:    map[string]interface{}{"reason": reason},
		})
		close(c.finished)
	})
}

// Close 关闭客户端连接
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.sub.Close()
		c.Hub.Unregister(c)
		c.Conn.Close()
		close(c.done)
	})
}

// Done 连接完全关闭后关闭
func (c *Client) Done() <-chan struct{} {
	return c.done
}
