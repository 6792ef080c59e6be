package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"genflow/internal/domain/job"
	reqdto "genflow/internal/handler/dto/request"
	resdto "genflow/internal/handler/dto/response"
	"genflow/internal/handler/httperr"
	"genflow/internal/handler/middleware"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/commands"
	"genflow/internal/usecase/queries"
	"genflow/internal/usecase/shared"
)

type JobHandler struct {
	jobCommands   commands.JobCommands
	eventCommands commands.EventCommands
	jobQueries    queries.JobQueries
	leadership    shared.Leadership
}

func NewJobHandler(
	jobCommands commands.JobCommands,
	eventCommands commands.EventCommands,
	jobQueries queries.JobQueries,
	leadership shared.Leadership,
) *JobHandler {
	return &JobHandler{
		jobCommands:   jobCommands,
		eventCommands: eventCommands,
		jobQueries:    jobQueries,
		leadership:    leadership,
	}
}

// @Summary Submit generation job
// @Description Submit a generation job; the amount is held until the job reaches a terminal state
// @Tags jobs
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string true "Idempotency key for duplicate prevention"
// @Param X-User-ID header string true "Acting user"
// @Param request body reqdto.SubmitJobRequest true "Job request"
// @Success 200 {object} resdto.JobResponse "Replayed existing job"
// @Success 201 {object} resdto.JobResponse
// @Success 202 {object} resdto.AcceptedResponse "Buffered for the leader"
// @Failure 400 {object} map[string]string
// @Failure 402 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 422 {object} map[string]string
// @Router /jobs [post]
func (h *JobHandler) SubmitJob(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.Internal(c, errs.New("acting user missing from context"))
		return
	}

	idempotencyKey, err := getIdempotencyKey(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req reqdto.SubmitJobRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	params := commands.SubmitParams{
		IdempotencyKey: idempotencyKey,
		UserID:         userID,
		Amount:         req.Amount,
		Payload:        req.Payload,
		Destination:    req.Destination,
	}

	if !h.leadership.IsLeader() {
		eventID, enqErr := h.eventCommands.EnqueueSubmit(c.Request.Context(), params)
		if enqErr != nil {
			httperr.Internal(c, enqErr)
			return
		}
		c.JSON(http.StatusAccepted, resdto.AcceptedResponse{EventID: eventID, Status: "accepted"})
		return
	}

	result, err := h.jobCommands.Submit(c.Request.Context(), params)
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}

	status := http.StatusCreated
	if result.IsReplayed {
		status = http.StatusOK
	}
	c.JSON(status, resdto.FromJobRM(result.Job))
}

func (h *JobHandler) writeSubmitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrInsufficientFunds):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "Insufficient funds"})
	case errors.Is(err, errs.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
	case errors.Is(err, errs.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": "Idempotency key reused with a different request"})
	case errors.Is(err, errs.ErrIdempotencyKeyRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Idempotency key required"})
	case errors.Is(err, job.ErrInvalidAmount),
		errors.Is(err, job.ErrEmptyPayload),
		errors.Is(err, job.ErrEmptyDestination),
		errors.Is(err, job.ErrInvalidPayloadJSON):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		httperr.Internal(c, err)
	}
}

// @Summary Get job
// @Description Get a job by ID
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} resdto.JobResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /jobs/{id} [get]
func (h *JobHandler) GetJob(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.Internal(c, errs.New("acting user missing from context"))
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	rm, err := h.jobQueries.GetByID(c.Request.Context(), jobID, userID)
	if err != nil {
		if errors.Is(err, errs.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		httperr.Internal(c, err)
		return
	}
	c.JSON(http.StatusOK, resdto.FromJobRM(rm))
}

// @Summary List jobs
// @Description List the acting user's jobs, newest first
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum number of jobs"
// @Success 200 {array} resdto.JobListResponse
// @Router /jobs [get]
func (h *JobHandler) ListJobs(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.Internal(c, errs.New("acting user missing from context"))
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, _ = strconv.Atoi(limitStr)
	}

	jobs, err := h.jobQueries.ListByUser(c.Request.Context(), userID, int32(limit))
	if err != nil {
		httperr.Internal(c, err)
		return
	}

	response := make([]*resdto.JobListResponse, len(jobs))
	for i, rm := range jobs {
		response[i] = resdto.FromJobListRM(rm)
	}
	c.JSON(http.StatusOK, response)
}

// @Summary Cancel job
// @Description Cancel a job that has not been dispatched yet; the hold is returned
// @Tags jobs
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} resdto.JobResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /jobs/{id}/cancel [post]
func (h *JobHandler) CancelJob(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		httperr.Internal(c, errs.New("acting user missing from context"))
		return
	}

	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	rm, err := h.jobCommands.Cancel(c.Request.Context(), jobID, userID)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
		case errors.Is(err, errs.ErrJobNotCancelable):
			c.JSON(http.StatusConflict, gin.H{"error": "Job already dispatched"})
		default:
			httperr.Internal(c, err)
		}
		return
	}
	c.JSON(http.StatusOK, resdto.FromJobRM(rm))
}

func getIdempotencyKey(c *gin.Context) (uuid.UUID, error) {
	keyStr := c.GetHeader("Idempotency-Key")
	if keyStr == "" {
		return uuid.Nil, errs.ErrIdempotencyKeyRequired
	}

	key, err := uuid.Parse(keyStr)
	if err != nil {
		return uuid.Nil, errors.New("invalid idempotency key format")
	}

	return key, nil
}
