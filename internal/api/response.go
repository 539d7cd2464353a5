package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/liar-bar/internal/errors"
	"github.com/wfunc/liar-bar/internal/middleware"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code      string `json:"code"`
	ErrorCode int    `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// errorCodeNames 业务错误码对外名称
var errorCodeNames = map[apperrors.ErrorCode]string{
	apperrors.ErrInvalidParam:        "INVALID_REQUEST",
	apperrors.ErrNotFound:            "NOT_FOUND",
	apperrors.ErrPermissionDenied:    "INSUFFICIENT_PERMISSION",
	apperrors.ErrTimeout:             "TIMEOUT",
	apperrors.ErrCanceled:            "CANCELED",
	apperrors.ErrInsufficientPlayers: "INSUFFICIENT_PLAYERS",
	apperrors.ErrTooManyPlayers:      "TOO_MANY_PLAYERS",
	apperrors.ErrDuplicatePlayer:     "DUPLICATE_PLAYER",
	apperrors.ErrPlayerAlreadySeated: "PLAYER_ALREADY_SEATED",
	apperrors.ErrMatchNotFound:       "MATCH_NOT_FOUND",
	apperrors.ErrValidation:          "ACTION_REJECTED",
	apperrors.ErrConcurrencyConflict: "CONCURRENCY_CONFLICT",
	apperrors.ErrInvariantViolation:  "INVARIANT_VIOLATION",
	apperrors.ErrStatsNotFound:       "STATS_NOT_FOUND",
	apperrors.ErrScoreTooLow:         "SCORE_TOO_LOW",
	apperrors.ErrStorageUnavailable:  "STORAGE_UNAVAILABLE",
	apperrors.ErrAuthentication:      "AUTHENTICATION_FAILED",
}

// respondError 按业务错误码写出错误响应
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}

	code, ok := errorCodeNames[appErr.Code]
	if !ok {
		code = "INTERNAL_ERROR"
	}
	c.JSON(appErr.HTTPStatus(), ErrorResponse{
		Code:      code,
		ErrorCode: int(appErr.Code),
		Message:   appErr.Message,
		Details:   appErr.Details,
		RequestID: middleware.GetRequestID(c),
	})
}

// badRequest 请求参数错误
func badRequest(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Code:      "INVALID_REQUEST",
		Message:   "请求参数错误",
		Details:   details,
		RequestID: middleware.GetRequestID(c),
	})
}
