package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/liar-bar/internal/middleware"
	"github.com/wfunc/liar-bar/internal/service"
	ws "github.com/wfunc/liar-bar/internal/websocket"
	"go.uber.org/zap"
)

// WebSocketHandler 对局事件流
type WebSocketHandler struct {
	hub      *ws.Hub
	matches  *service.MatchService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWebSocketHandler 创建事件流处理器
func NewWebSocketHandler(hub *ws.Hub, matches *service.MatchService, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:     hub,
		matches: matches,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// 适配器是服务端进程，不校验 Origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// StreamMatch 订阅对局事件，codec=json|protobuf
// @Summary 对局事件流
// @Tags Match
// @Security Bearer
// @Param id path string true "对局ID"
// @Param codec query string false "json 或 protobuf"
// @Router /ws/matches/{id} [get]
func (h *WebSocketHandler) StreamMatch(c *gin.Context) {
	codec, err := ws.CodecByName(c.Query("codec"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	// 先订阅再升级，保证不丢失连接建立期间的事件
	sub, err := h.matches.Subscribe(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		sub.Close()
		h.logger.Error("WebSocket升级失败",
			zap.String("match_id", sub.MatchID),
			zap.Error(err))
		return
	}

	adapterID, _ := middleware.GetAdapterID(c)
	ws.NewClient(h.hub, conn, adapterID, sub, codec).Start()
}
