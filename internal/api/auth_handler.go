package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/liar-bar/internal/config"
	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/utils"
	"go.uber.org/zap"
)

// TokenRequest 适配器换取令牌
type TokenRequest struct {
	AdapterID string `json:"adapter_id" binding:"required"`
	Secret    string `json:"secret" binding:"required"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        string `json:"role"`
}

// AuthHandler 适配器认证处理器
type AuthHandler struct {
	jwt      *utils.JWTManager
	adapters map[string]config.AdapterCredential
	logger   *zap.Logger
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(jwt *utils.JWTManager, adapters []config.AdapterCredential, logger *zap.Logger) *AuthHandler {
	byID := make(map[string]config.AdapterCredential, len(adapters))
	for _, a := range adapters {
		byID[a.ID] = a
	}
	return &AuthHandler{jwt: jwt, adapters: byID, logger: logger}
}

// IssueToken 校验适配器密钥并签发令牌
// @Summary 适配器登录
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body TokenRequest true "适配器凭据"
// @Success 200 {object} TokenResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/v1/auth/token [post]
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	cred, ok := h.adapters[req.AdapterID]
	if !ok {
		h.logger.Warn("未知适配器", zap.String("adapter_id", req.AdapterID), zap.String("ip", c.ClientIP()))
		respondError(c, apperrors.New(apperrors.ErrAuthentication, "适配器ID或密钥错误"))
		return
	}
	valid, err := utils.VerifySecret(req.Secret, cred.SecretHash)
	if err != nil {
		h.logger.Error("适配器密钥哈希无效", zap.String("adapter_id", req.AdapterID), zap.Error(err))
	}
	if !valid {
		respondError(c, apperrors.New(apperrors.ErrAuthentication, "适配器ID或密钥错误"))
		return
	}

	role := cred.Role
	if role == "" {
		role = utils.RoleAdapter
	}
	token, err := h.jwt.GenerateToken(cred.ID, role)
	if err != nil {
		respondError(c, apperrors.Wrap(err, apperrors.ErrUnknown, "签发令牌失败"))
		return
	}

	h.logger.Info("适配器登录", zap.String("adapter_id", cred.ID), zap.String("role", role))
	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwt.Expiry().Seconds()),
		Role:        role,
	})
}
