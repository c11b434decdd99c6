package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"roomstay/internal/app/commands"
	"roomstay/internal/app/queries"
	"roomstay/internal/app/services/auth"
	"roomstay/internal/domain/identity"
	"roomstay/internal/domain/shared/errs"
	"roomstay/internal/infra/obs"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidAdminKey):
		return http.StatusUnauthorized
	case errors.Is(err, commands.ErrHandlerNotFound), errors.Is(err, queries.ErrHandlerNotFound):
		return http.StatusNotImplemented
	}
	switch errs.KindOf(err) {
	case errs.KindValidation, errs.KindInvalidNotification:
		return http.StatusBadRequest
	case errs.KindAuthorization:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	payload := errorPayload{Kind: string(errs.KindOf(err)), Code: errs.CodeOf(err)}
	var e *errs.Error
	if errors.As(err, &e) {
		payload.Message = e.Message
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		if logger != nil {
			logger.Error("request failed", "path", c.FullPath(), "status", status, "error", err, "request_id", obs.RequestIDFromContext(c.Request.Context()))
		}
		if status == http.StatusInternalServerError {
			payload = errorPayload{Kind: string(errs.KindInternal), Code: "internal", Message: "internal error"}
		}
	}
	c.JSON(status, errorBody{Error: payload})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: errorPayload{Kind: string(errs.KindValidation), Code: code, Message: message}})
}
