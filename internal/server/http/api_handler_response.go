package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"storybook/internal/logging"
	"storybook/internal/server/app"
)

type apiErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// mapDomainError picks the status code and public message for err.
func mapDomainError(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "request body too large"
	case errors.Is(err, app.ErrValidation):
		return http.StatusBadRequest, "invalid run request"
	case errors.Is(err, app.ErrExecutorUnavailable):
		return http.StatusInternalServerError, "failed to start story generation"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeJSONError(c *gin.Context, logger logging.Logger, status int, message string, err error) {
	logger = logging.OrNop(logger)
	if err != nil && status >= http.StatusInternalServerError {
		logger.Error("HTTP %d - %s: %v", status, message, err)
	} else if err != nil {
		logger.Warn("HTTP %d - %s: %v", status, message, err)
	} else {
		logger.Warn("HTTP %d - %s", status, message)
	}

	resp := apiErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	c.AbortWithStatusJSON(status, resp)
}

func writeDomainError(c *gin.Context, logger logging.Logger, err error) {
	status, message := mapDomainError(err)
	writeJSONError(c, logger, status, message, err)
}
