package handler

import (
	"context"
	"net/http"

	"tarkostock/internal/apierror"
	"tarkostock/internal/dto"
	"tarkostock/internal/policy"
	"tarkostock/internal/service"

	"github.com/gin-gonic/gin"
)

// SweepQueue enqueues background consistency sweeps.
type SweepQueue interface {
	EnqueueSweep(ctx context.Context, trigger string) (string, error)
}

// ReportReader loads reports stored by background sweeps.
type ReportReader interface {
	Load(ctx context.Context, jobID string) (*dto.ConsistencyReport, error)
}

// DeadLetterReader lists sweep jobs that exhausted their attempts.
type DeadLetterReader interface {
	List(ctx context.Context, limit int64) (*dto.DeadLetterList, error)
}

// ConsistencyHandler runs the validator inline or through the job queue.
// queue, reports and dead may be nil when redis is not configured.
type ConsistencyHandler struct {
	svc     service.ConsistencyService
	queue   SweepQueue
	reports ReportReader
	dead    DeadLetterReader
}

func NewConsistencyHandler(svc service.ConsistencyService, queue SweepQueue, reports ReportReader, dead DeadLetterReader) *ConsistencyHandler {
	return &ConsistencyHandler{svc: svc, queue: queue, reports: reports, dead: dead}
}

// Validate handles GET /v1/consistency. It never writes.
func (h *ConsistencyHandler) Validate(c *gin.Context) {
	if _, ok := authorize(c, policy.OpValidate); !ok {
		return
	}
	report, err := h.svc.Validate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Sweep handles POST /v1/consistency/sweep.
func (h *ConsistencyHandler) Sweep(c *gin.Context) {
	if _, ok := authorize(c, policy.OpSweep); !ok {
		return
	}
	if h.queue == nil {
		respondError(c, &apierror.Error{Kind: apierror.KindStorage, Op: "consistency.sweep", Message: "job queue is not configured"})
		return
	}
	jobID, err := h.queue.EnqueueSweep(c.Request.Context(), "manual")
	if err != nil {
		respondError(c, &apierror.Error{Kind: apierror.KindStorage, Op: "consistency.sweep", Message: "job queue unavailable", Err: err})
		return
	}
	c.JSON(http.StatusAccepted, dto.SweepResponse{Queued: true, JobID: jobID})
}

// Report handles GET /v1/consistency/sweeps/:job_id ("latest" for the newest).
func (h *ConsistencyHandler) Report(c *gin.Context) {
	if _, ok := authorize(c, policy.OpValidate); !ok {
		return
	}
	if h.reports == nil {
		respondError(c, apierror.NotFound("consistency.report", "background sweeps are disabled"))
		return
	}
	report, err := h.reports.Load(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// DeadLetters handles GET /v1/consistency/dead-letters?limit=N.
func (h *ConsistencyHandler) DeadLetters(c *gin.Context) {
	if _, ok := authorize(c, policy.OpSweep); !ok {
		return
	}
	if h.dead == nil {
		respondError(c, apierror.NotFound("consistency.dead_letters", "background sweeps are disabled"))
		return
	}
	var q struct {
		Limit int64 `form:"limit,default=50" validate:"min=1,max=1000"`
	}
	if !bindQuery(c, &q) {
		return
	}
	list, err := h.dead.List(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, apierror.Storage("consistency.dead_letters", err))
		return
	}
	c.JSON(http.StatusOK, list)
}
