package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	actionHandler "bloom-api/internal/domains/action/handler"
	actionModel "bloom-api/internal/domains/action/model"
	actionService "bloom-api/internal/domains/action/service"
	"bloom-api/internal/domains/book/model"
	"bloom-api/internal/shared"
	"bloom-api/internal/shared/middleware"
	"bloom-api/internal/shared/utils"
)

// Handler - HTTP entry of the upload workflow. It validates the request and
// starts the step as a long-running action; the work runs in the worker.
type Handler struct {
	actions actionService.ServiceInterface
}

func NewHandler(actions actionService.ServiceInterface) *Handler {
	return &Handler{actions: actions}
}

// PostBookAction - POST /v1/books/:action
// The segment is "{id}:upload-start" or "{id}:upload-finish".
func (h *Handler) PostBookAction(c *gin.Context) {
	bookID, verb, ok := utils.CutLast(c.Param("action"), ":")
	if !ok {
		model.HandleBookError(c, model.ErrInvalidBookAction)
		return
	}

	switch actionModel.Name(verb) {
	case actionModel.UploadStart:
		h.uploadStart(c, bookID)
	case actionModel.UploadFinish:
		h.uploadFinish(c, bookID)
	default:
		model.HandleBookError(c, model.ErrInvalidBookAction)
	}
}

func (h *Handler) uploadStart(c *gin.Context, bookID string) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		model.HandleBookError(c, model.ErrUnauthenticated)
		return
	}

	var req model.UploadStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleBookError(c, fmt.Errorf("%w: %v", model.ErrInvalidRequestBody, err))
		return
	}

	params, err := req.ToParams(bookID)
	if err != nil {
		model.HandleBookError(c, err)
		return
	}

	h.start(c, actionModel.UploadStart, user, params)
}

func (h *Handler) uploadFinish(c *gin.Context, bookID string) {
	user, ok := middleware.UserFrom(c)
	if !ok {
		model.HandleBookError(c, model.ErrUnauthenticated)
		return
	}

	var req model.UploadFinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleBookError(c, fmt.Errorf("%w: %v", model.ErrInvalidRequestBody, err))
		return
	}

	params, err := req.ToParams(bookID)
	if err != nil {
		model.HandleBookError(c, err)
		return
	}

	h.start(c, actionModel.UploadFinish, user, params)
}

func (h *Handler) start(c *gin.Context, name actionModel.Name, user shared.UserInfo, params interface{}) {
	env := middleware.EnvironmentFrom(c)

	id, err := h.actions.Start(c.Request.Context(), name, env, user, params)
	if err != nil {
		log.Error().
			Err(err).
			Str("action", string(name)).
			Str("env", env.String()).
			Msg("Failed to start action")
		model.HandleBookError(c, err)
		return
	}

	actionHandler.Accepted(c, id)
}
