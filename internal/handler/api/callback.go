package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	reqdto "genflow/internal/handler/dto/request"
	resdto "genflow/internal/handler/dto/response"
	"genflow/internal/handler/httperr"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/commands"
	"genflow/internal/usecase/shared"
)

type CallbackHandler struct {
	jobCommands   commands.JobCommands
	eventCommands commands.EventCommands
	leadership    shared.Leadership
}

func NewCallbackHandler(
	jobCommands commands.JobCommands,
	eventCommands commands.EventCommands,
	leadership shared.Leadership,
) *CallbackHandler {
	return &CallbackHandler{
		jobCommands:   jobCommands,
		eventCommands: eventCommands,
		leadership:    leadership,
	}
}

// @Summary Generation callback
// @Description Terminal status callback from the generation service
// @Tags callbacks
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body reqdto.GenerationCallbackRequest true "Callback payload"
// @Success 200 {object} map[string]string
// @Success 202 {object} resdto.AcceptedResponse "Buffered for the leader"
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /callbacks/generation [post]
func (h *CallbackHandler) HandleGenerationCallback(c *gin.Context) {
	var req reqdto.GenerationCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	params := commands.CallbackParams{
		ExternalRef:   req.ExternalRef,
		Status:        req.Status,
		ResultPayload: req.ResultPayload,
		ErrorText:     req.Error,
	}

	if !h.leadership.IsLeader() {
		eventID, err := h.eventCommands.EnqueueCallback(c.Request.Context(), params)
		if err != nil {
			httperr.Internal(c, err)
			return
		}
		c.JSON(http.StatusAccepted, resdto.AcceptedResponse{EventID: eventID, Status: "accepted"})
		return
	}

	if err := h.jobCommands.HandleCallback(c.Request.Context(), params); err != nil {
		if errors.Is(err, errs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown generation reference"})
			return
		}
		httperr.Internal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
