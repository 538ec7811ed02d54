package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/archmap/archmap-backend/internal/apperr"
	"github.com/archmap/archmap-backend/internal/payload"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondAppError maps the service error taxonomy onto HTTP statuses.
// Validation failures carry their reason code through to the caller.
func RespondAppError(c *gin.Context, err error) {
	var vErr *payload.ValidationError
	switch {
	case errors.As(err, &vErr):
		RespondError(c, http.StatusBadRequest, vErr.Code, err)
	case errors.Is(err, apperr.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, apperr.ErrObjectNotFound):
		RespondError(c, http.StatusUnprocessableEntity, "object_not_found", err)
	case errors.Is(err, apperr.ErrAlreadyProcessed):
		RespondError(c, http.StatusConflict, "already_processed", err)
	case errors.Is(err, apperr.ErrNoActiveGeneration):
		RespondError(c, http.StatusConflict, "no_active_generation", err)
	case errors.Is(err, apperr.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
