package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/identity-service/internal/dto"
	"github.com/prperemyshlev/identity-service/internal/service"
	"go.uber.org/zap"
)

// CodeInternal is reported for failures that carry no service code
const CodeInternal = "INTERNAL_ERROR"

// statusForCode maps a service error code to an HTTP status.
// Unknown identities answer 401 so the login surface does not reveal which emails exist.
func statusForCode(code string) int {
	switch code {
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeConflict:
		return http.StatusConflict
	case service.CodeNotFound,
		service.CodeNoCredentials,
		service.CodeInvalidCredentials,
		service.CodeExternalAssertionInvalid,
		service.CodeUnauthorized,
		service.CodeSessionInvalid:
		return http.StatusUnauthorized
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes the error envelope and stops the handler chain
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message))
}

// respondError maps err onto the error envelope. Store and internal causes are
// logged and replaced with a generic message.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	code := service.ErrorCode(err)
	status := statusForCode(code)

	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("code", code),
			zap.Error(err),
		)
		if code == "" {
			code = CodeInternal
		}
		abortWithError(c, status, code, "internal server error")
		return
	}

	abortWithError(c, status, code, err.Error())
}
