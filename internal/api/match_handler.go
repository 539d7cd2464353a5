package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/liar-bar/internal/game"
	"github.com/wfunc/liar-bar/internal/middleware"
	"github.com/wfunc/liar-bar/internal/service"
)

// CreateMatchRequest 创建对局请求
type CreateMatchRequest struct {
	Players []string `json:"players" binding:"required,min=1,dive,required"`
}

// ActionRequest 提交动作请求
type ActionRequest struct {
	PlayerID string          `json:"player_id"`
	Kind     game.ActionKind `json:"kind" binding:"required"`
	Seq      uint64          `json:"seq"`
	Version  uint64          `json:"version"`
	Cards    []int           `json:"cards"`
}

// RejectedResponse 动作被拒绝
type RejectedResponse struct {
	Code    string            `json:"code"`
	Reason  game.RejectReason `json:"reason"`
	Detail  string            `json:"detail,omitempty"`
	State   game.MatchState   `json:"state"`
	Version uint64            `json:"version"`
}

// MatchHandler 对局处理器
type MatchHandler struct {
	matches *service.MatchService
}

// NewMatchHandler 创建对局处理器
func NewMatchHandler(matches *service.MatchService) *MatchHandler {
	return &MatchHandler{matches: matches}
}

// CreateMatch 创建对局
// @Summary 创建对局
// @Tags Match
// @Security Bearer
// @Param request body CreateMatchRequest true "入座玩家"
// @Success 201 {object} map[string]interface{}
// @Router /api/v1/matches [post]
func (h *MatchHandler) CreateMatch(c *gin.Context) {
	var req CreateMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	id, err := h.matches.CreateMatch(c.Request.Context(), req.Players)
	if err != nil {
		respondError(c, err)
		return
	}
	snap, err := h.matches.Snapshot(id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"match_id": id,
		"snapshot": snap,
	})
}

// GetMatch 对局快照
// @Summary 对局快照
// @Tags Match
// @Security Bearer
// @Param id path string true "对局ID"
// @Success 200 {object} game.Snapshot
// @Router /api/v1/matches/{id} [get]
func (h *MatchHandler) GetMatch(c *gin.Context) {
	snap, err := h.matches.Snapshot(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// SubmitAction 提交玩家或系统动作，校验不通过返回 422
// @Summary 提交动作
// @Tags Match
// @Security Bearer
// @Param id path string true "对局ID"
// @Param request body ActionRequest true "动作"
// @Success 200 {object} game.Outcome
// @Failure 422 {object} RejectedResponse
// @Router /api/v1/matches/{id}/actions [post]
func (h *MatchHandler) SubmitAction(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	out, err := h.matches.SubmitAction(c.Request.Context(), game.Action{
		MatchID:  c.Param("id"),
		PlayerID: req.PlayerID,
		Kind:     req.Kind,
		Seq:      req.Seq,
		Version:  req.Version,
		Cards:    req.Cards,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	if !out.Verdict.Accepted {
		c.JSON(http.StatusUnprocessableEntity, RejectedResponse{
			Code:    "ACTION_REJECTED",
			Reason:  out.Verdict.Reason,
			Detail:  out.Verdict.Detail,
			State:   out.State,
			Version: out.Version,
		})
		return
	}
	c.JSON(http.StatusOK, out)
}

// ForceEnd 管理员强制结束对局
// @Summary 强制结束对局
// @Tags Admin
// @Security Bearer
// @Param id path string true "对局ID"
// @Param reason query string false "原因"
// @Success 200 {object} game.MatchEvent
// @Router /api/v1/matches/{id} [delete]
func (h *MatchHandler) ForceEnd(c *gin.Context) {
	reason := c.Query("reason")
	if reason == "" {
		adapterID, _ := middleware.GetAdapterID(c)
		reason = "admin:" + adapterID
	}
	ev, err := h.matches.ForceEnd(c.Request.Context(), c.Param("id"), reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// GetHand 玩家手牌，只发给该玩家所在的终端
// @Summary 玩家手牌
// @Tags Match
// @Security Bearer
// @Param id path string true "对局ID"
// @Param player path string true "玩家ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/matches/{id}/players/{player}/hand [get]
func (h *MatchHandler) GetHand(c *gin.Context) {
	hand, err := h.matches.Hand(c.Param("id"), c.Param("player"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"match_id":  c.Param("id"),
		"player_id": c.Param("player"),
		"cards":     hand,
	})
}

// PlayerStats 玩家统计
// @Summary 玩家统计与段位
// @Tags Stats
// @Security Bearer
// @Param id path string true "玩家ID"
// @Success 200 {object} service.PlayerProfile
// @Router /api/v1/players/{id}/stats [get]
func (h *MatchHandler) PlayerStats(c *gin.Context) {
	profile, err := h.matches.Profile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// History 玩家历史对局
// @Summary 玩家历史对局
// @Tags Stats
// @Security Bearer
// @Param id path string true "玩家ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页条数"
// @Success 200 {object} service.MatchHistory
// @Router /api/v1/players/{id}/matches [get]
func (h *MatchHandler) History(c *gin.Context) {
	page, err1 := queryInt(c, "page")
	size, err2 := queryInt(c, "page_size")
	if err1 != nil || err2 != nil {
		badRequest(c, "page 与 page_size 必须是整数")
		return
	}
	history, err := h.matches.History(c.Request.Context(), c.Param("id"), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

// Leaderboard 排行榜
// @Summary 排行榜
// @Tags Stats
// @Security Bearer
// @Param limit query int false "条数，默认10，最多100"
// @Success 200 {array} service.LeaderboardEntry
// @Router /api/v1/leaderboard [get]
func (h *MatchHandler) Leaderboard(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		badRequest(c, "limit 必须是整数")
		return
	}
	board, err := h.matches.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": board})
}

// queryInt 读取可选整数参数，缺省为0
func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
