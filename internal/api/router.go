package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/liar-bar/internal/config"
	"github.com/wfunc/liar-bar/internal/database"
	"github.com/wfunc/liar-bar/internal/middleware"
	"github.com/wfunc/liar-bar/internal/service"
	"github.com/wfunc/liar-bar/internal/utils"
	ws "github.com/wfunc/liar-bar/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Router API路由器
type Router struct {
	engine         *gin.Engine
	db             *gorm.DB
	services       *service.Services
	hub            *ws.Hub
	authHandler    *AuthHandler
	matchHandler   *MatchHandler
	wsHandler      *WebSocketHandler
	authMiddleware *middleware.AuthMiddleware
	started        time.Time
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(db *gorm.DB, services *service.Services, hub *ws.Hub, jwt *utils.JWTManager, cfg *config.Config, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger())

	router := &Router{
		engine:         engine,
		db:             db,
		services:       services,
		hub:            hub,
		authHandler:    NewAuthHandler(jwt, cfg.Security.Adapters, log.Named("auth")),
		matchHandler:   NewMatchHandler(services.Match),
		wsHandler:      NewWebSocketHandler(hub, services.Match, log.Named("ws")),
		authMiddleware: middleware.NewAuthMiddleware(jwt),
		started:        time.Now(),
		log:            log,
	}
	router.setupRoutes()
	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/auth/token", r.authHandler.IssueToken)

		matches := v1.Group("/matches")
		matches.Use(r.authMiddleware.RequireAuth())
		{
			matches.POST("", r.matchHandler.CreateMatch)
			matches.GET("/:id", r.matchHandler.GetMatch)
			matches.POST("/:id/actions", r.matchHandler.SubmitAction)
			matches.GET("/:id/players/:player/hand", r.matchHandler.GetHand)
		}
		v1.DELETE("/matches/:id", r.authMiddleware.RequireRole(utils.RoleAdmin), r.matchHandler.ForceEnd)

		stats := v1.Group("")
		stats.Use(r.authMiddleware.RequireAuth())
		{
			stats.GET("/players/:id/stats", r.matchHandler.PlayerStats)
			stats.GET("/players/:id/matches", r.matchHandler.History)
			stats.GET("/leaderboard", r.matchHandler.Leaderboard)
		}
	}

	wsGroup := r.engine.Group("/ws")
	wsGroup.Use(r.authMiddleware.RequireAuth())
	{
		wsGroup.GET("/matches/:id", r.wsHandler.StreamMatch)
	}

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	status := gin.H{
		"uptime_s":  int64(time.Since(r.started).Seconds()),
		"match":     r.services.Match.Health(),
		"ws_online": r.hub.GetOnlineCount(),
	}

	if err := database.Ping(c.Request.Context(), r.db); err != nil {
		status["status"] = "degraded"
		status["database"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status["status"] = "healthy"
	status["database"] = "ok"
	c.JSON(http.StatusOK, status)
}

// Handler 返回 http.Handler
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
