package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// 适配器角色
const (
	RoleAdapter = "adapter"
	RoleAdmin   = "admin"
)

// AdapterClaims 适配器令牌声明
type AdapterClaims struct {
	AdapterID string `json:"adapter_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// JWTManager JWT管理器
type JWTManager struct {
	secretKey string
	expiry    time.Duration
	issuer    string
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(secretKey string, expiry time.Duration, issuer string) *JWTManager {
	if issuer == "" {
		issuer = "liar-bar"
	}
	return &JWTManager{
		secretKey: secretKey,
		expiry:    expiry,
		issuer:    issuer,
	}
}

// GenerateToken 为适配器签发令牌
func (j *JWTManager) GenerateToken(adapterID, role string) (string, error) {
	now := time.Now()
	claims := &AdapterClaims{
		AdapterID: adapterID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(j.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    j.issuer,
			Subject:   adapterID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.secretKey))
}

// ValidateToken 验证令牌
func (j *JWTManager) ValidateToken(tokenString string) (*AdapterClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdapterClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(j.secretKey), nil
	}, jwt.WithIssuer(j.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, err
	}

	claims, ok := token.Claims.(*AdapterClaims)
	if !ok || !token.Valid || claims.AdapterID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Expiry 令牌有效期
func (j *JWTManager) Expiry() time.Duration {
	return j.expiry
}
