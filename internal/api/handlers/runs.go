package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/internal/pipeline"
	"github.com/stitts-dev/pick-research/pkg/config"
	"github.com/stitts-dev/pick-research/pkg/logger"
	"github.com/stitts-dev/pick-research/pkg/utils"
)

// Runner is the pipeline surface the run endpoints drive.
type Runner interface {
	Run(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunSummary, error)
	Generators() map[string]config.GeneratorConfig
	Today() string
}

// RunReader loads run audit rows.
type RunReader interface {
	GetRun(ctx context.Context, id string) (*models.RunRecord, error)
}

type RunHandler struct {
	runner  Runner
	runs    RunReader
	baseCtx context.Context
	logger  *logrus.Logger

	mu     sync.Mutex
	active map[string]pipeline.RunRequest
	wg     sync.WaitGroup
}

// NewRunHandler creates a run handler. Runs started over HTTP outlive the
// request and are cancelled with baseCtx.
func NewRunHandler(baseCtx context.Context, runner Runner, runs RunReader, logger *logrus.Logger) *RunHandler {
	return &RunHandler{
		runner:  runner,
		runs:    runs,
		baseCtx: baseCtx,
		logger:  logger,
		active:  make(map[string]pipeline.RunRequest),
	}
}

type startRunRequest struct {
	Date        string `json:"date"`
	Sport       string `json:"sport"`
	Generator   string `json:"generator" binding:"required"`
	TargetCount int    `json:"target_count" binding:"omitempty,min=1,max=50"`
}

// StartRun handles POST /api/v1/runs
func (h *RunHandler) StartRun(c *gin.Context) {
	if h.baseCtx.Err() != nil {
		utils.SendUnavailable(c, "Server is shutting down")
		return
	}

	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}
	if req.Date != "" && !utils.IsDateShape(req.Date) {
		utils.SendValidationError(c, "Invalid date", "date must be YYYY-MM-DD")
		return
	}
	if _, err := pipeline.ResolveGenerator(h.runner.Generators(), req.Generator); err != nil {
		utils.SendValidationError(c, "Unknown generator", err.Error())
		return
	}

	runReq := pipeline.RunRequest{
		RunID:       uuid.New().String(),
		Date:        req.Date,
		Sport:       req.Sport,
		Generator:   req.Generator,
		TargetCount: req.TargetCount,
	}
	if runReq.Date == "" {
		runReq.Date = h.runner.Today()
	}

	h.mu.Lock()
	h.active[runReq.RunID] = runReq
	h.mu.Unlock()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer func() {
			h.mu.Lock()
			delete(h.active, runReq.RunID)
			h.mu.Unlock()
		}()
		if _, err := h.runner.Run(h.baseCtx, runReq); err != nil {
			logger.ForRun(h.logger, runReq.RunID, runReq.Generator, runReq.Date, runReq.Sport).
				WithError(err).Error("Run started over HTTP failed")
		}
	}()

	utils.SendAccepted(c, gin.H{
		"run_id":    runReq.RunID,
		"generator": runReq.Generator,
		"date":      runReq.Date,
		"status":    pipeline.StatusRunning,
	})
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		utils.SendValidationError(c, "Invalid run ID", err.Error())
		return
	}

	run, err := h.runs.GetRun(c.Request.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.mu.Lock()
		req, running := h.active[id]
		h.mu.Unlock()
		if running {
			utils.SendSuccess(c, gin.H{
				"run_id":    req.RunID,
				"generator": req.Generator,
				"date":      req.Date,
				"status":    pipeline.StatusRunning,
			})
			return
		}
		utils.SendNotFound(c, "Run not found")
		return
	}
	if err != nil {
		h.logger.WithError(err).WithField("run_id", id).Error("Failed to load run")
		utils.SendInternalError(c, "Failed to load run")
		return
	}

	var summary json.RawMessage
	if len(run.Summary) > 0 {
		summary = json.RawMessage(run.Summary)
	}
	utils.SendSuccess(c, gin.H{
		"run_id":      run.ID,
		"generator":   run.Generator,
		"date":        run.GameDate,
		"status":      run.Status,
		"started_at":  run.StartedAt,
		"finished_at": run.FinishedAt,
		"summary":     summary,
	})
}

// ListGenerators handles GET /api/v1/generators
func (h *RunHandler) ListGenerators(c *gin.Context) {
	gens := h.runner.Generators()
	out := make([]config.GeneratorConfig, 0, len(gens))
	for _, name := range config.GeneratorNames(gens) {
		out = append(out, gens[name])
	}
	utils.SendSuccess(c, out)
}

// Wait blocks until runs started over HTTP have returned.
func (h *RunHandler) Wait() {
	h.wg.Wait()
}

// Active reports how many HTTP-started runs are in flight.
func (h *RunHandler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}
