package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ois/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor сопоставляет доменную ошибку HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidCustomerID), errors.Is(err, domain.ErrInvalidPageRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Детали ошибки хранилища остаются в логах.
		message = "internal error"
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Error: message})
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message})
}
