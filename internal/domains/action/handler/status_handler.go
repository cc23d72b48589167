package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"bloom-api/internal/domains/action/model"
	"bloom-api/internal/domains/action/service"
	"bloom-api/internal/shared/response"
)

// Handler - status polling endpoint
type Handler struct {
	service service.ServiceInterface
}

func NewHandler(s service.ServiceInterface) *Handler {
	return &Handler{service: s}
}

// GetStatus - GET /v1/status/:id
func (h *Handler) GetStatus(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, "operation id is required")
		return
	}

	state, err := h.service.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, model.ErrActionNotFound) {
			response.NotFound(c, "Operation not found")
			return
		}
		log.Error().Err(err).Str("action_id", id).Msg("Failed to read action status")
		response.InternalServerError(c, "Internal server error")
		return
	}

	if !state.Status.IsTerminal() {
		c.Header("Retry-After", "1")
	}
	c.JSON(http.StatusOK, state)
}

// StatusURL is the absolute polling URL of an operation, built from the
// incoming request's scheme and host.
func StatusURL(c *gin.Context, id string) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if fwd := c.GetHeader("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return fmt.Sprintf("%s://%s/v1/status/%s", scheme, c.Request.Host, id)
}

// Accepted writes the 202 response of a started action.
func Accepted(c *gin.Context, id string) {
	c.Header("Operation-Location", StatusURL(c, id))
	c.JSON(http.StatusAccepted, model.Accepted{ID: id, Status: model.StatusRunning})
}
