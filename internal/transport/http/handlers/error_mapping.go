package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/novacrm/auth-service/internal/infra/logger"
	"github.com/novacrm/auth-service/internal/usecase"
)

var kindStatus = map[usecase.ErrorKind]int{
	usecase.KindBadRequest:      http.StatusBadRequest,
	usecase.KindUnauthorized:    http.StatusUnauthorized,
	usecase.KindForbidden:       http.StatusForbidden,
	usecase.KindNotFound:        http.StatusNotFound,
	usecase.KindConflict:        http.StatusConflict,
	usecase.KindTooManyRequests: http.StatusTooManyRequests,
	usecase.KindInternal:        http.StatusInternalServerError,
}

// StatusForKind maps a usecase error kind to an HTTP status.
func StatusForKind(kind usecase.ErrorKind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// RespondWithError writes err as an error envelope. Internal failures are logged and
// answered with a generic message.
func RespondWithError(c *gin.Context, log *zap.Logger, err error) {
	var appErr *usecase.Error
	if !errors.As(err, &appErr) || appErr.Kind == usecase.KindInternal {
		if log == nil {
			log = logger.WithContext(c.Request.Context())
		}
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("request_id", logger.RequestIDFromContext(c.Request.Context())),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, http.StatusInternalServerError, "internal server error"))
		return
	}

	status := StatusForKind(appErr.Kind)
	c.JSON(status, NewErrorResponse(c, status, appErr.Message))
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, http.StatusBadRequest, message))
}

func respondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, SuccessResponse{Success: true, Message: message, Data: data})
}

// bindingMessage turns a binding failure into the first field-level message.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "invalid email address"
	case "min":
		return field + " must be at least " + fe.Param() + " characters long"
	case "max":
		return field + " must be at most " + fe.Param() + " characters long"
	case "len":
		return field + " must be exactly " + fe.Param() + " characters long"
	case "otp":
		return field + " must be 6 digits"
	case "phone":
		return "phone must be 10 or 11 digits"
	default:
		return field + " is invalid"
	}
}
