package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/signalsfoundry/sysviz/internal/content"
	"github.com/signalsfoundry/sysviz/internal/sim"
)

var errHintsDisabled = errors.New("hint store disabled")

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, sim.ErrUnknownScenario), errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, sim.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, sim.ErrRunning):
		return http.StatusConflict
	case errors.Is(err, errHintsDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = http.StatusText(code)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorBody{Error: msg, RequestID: c.GetString(requestIDKey)})
}
