package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/liar-bar/internal/utils"
)

// 上下文键
const (
	ctxAdapterID = "adapterID"
	ctxRole      = "role"
)

// AuthMiddleware 适配器JWT认证中间件
type AuthMiddleware struct {
	jwt *utils.JWTManager
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(jwt *utils.JWTManager) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAuth 需要认证的中间件
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := m.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireRole 需要特定角色的中间件
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := m.authenticate(c)
		if !ok {
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code":    "INSUFFICIENT_PERMISSION",
			"message": "权限不足",
		})
	}
}

// authenticate 校验令牌并写入上下文，失败时已中断请求
func (m *AuthMiddleware) authenticate(c *gin.Context) (*utils.AdapterClaims, bool) {
	token := extractToken(c)
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    "NO_TOKEN",
			"message": "缺少认证令牌",
		})
		return nil, false
	}

	claims, err := m.jwt.ValidateToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"code":    "INVALID_TOKEN",
			"message": "无效的令牌",
			"details": err.Error(),
		})
		return nil, false
	}

	c.Set(ctxAdapterID, claims.AdapterID)
	c.Set(ctxRole, claims.Role)
	return claims, true
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// 1. Authorization: Bearer
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.SplitN(bearer, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// 2. X-Access-Token
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. Query 参数，浏览器端 WebSocket 无法设置请求头
	return c.Query("token")
}

// GetAdapterID 从上下文获取适配器ID
func GetAdapterID(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ctxAdapterID); exists {
		if id, ok := v.(string); ok {
			return id, true
		}
	}
	return "", false
}

// GetRole 从上下文获取角色
func GetRole(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ctxRole); exists {
		if r, ok := v.(string); ok {
			return r, true
		}
	}
	return "", false
}
