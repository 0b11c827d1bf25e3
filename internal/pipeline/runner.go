package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/llm"
	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/internal/persistence"
	"github.com/stitts-dev/pick-research/internal/tools"
	"github.com/stitts-dev/pick-research/pkg/config"
	"github.com/stitts-dev/pick-research/pkg/logger"
)

// RunStatus is the terminal state of a run
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusNoGames   RunStatus = "no_games"
	StatusFailed    RunStatus = "failed"
)

// Pipeline stages reported to a Notifier
const (
	StageCatalog     = "catalog"
	StagePlan        = "plan"
	StageResearch    = "research"
	StageSynthesis   = "synthesis"
	StageValidation  = "validation"
	StagePersistence = "persistence"
	StageDone        = "done"
)

// RunRequest selects what one run produces. Empty Date means today in the
// configured timezone; zero TargetCount means the generator's default.
type RunRequest struct {
	RunID       string `json:"run_id,omitempty"`
	Date        string `json:"date"`
	Sport       string `json:"sport,omitempty"`
	Generator   string `json:"generator"`
	TargetCount int    `json:"target_count,omitempty"`
}

// RunEvent is a stage transition pushed to observers.
type RunEvent struct {
	RunID     string      `json:"run_id"`
	Generator string      `json:"generator"`
	Stage     string      `json:"stage"`
	Status    RunStatus   `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Notifier receives stage events. Implementations must not block.
type Notifier interface {
	Publish(event RunEvent)
}

// ResearchStats summarizes the executor's bundle
type ResearchStats struct {
	Planned   int  `json:"planned"`
	Fallback  bool `json:"fallback"`
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Abandoned int  `json:"abandoned"`
}

// RunSummary is the audit record of one run.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Generator string    `json:"generator"`
	Date      string    `json:"date"`
	Sport     string    `json:"sport,omitempty"`
	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`

	Events     int `json:"events"`
	Candidates int `json:"candidates"`
	Filtered   int `json:"filtered"`
	Duplicates int `json:"duplicates"`

	Research  ResearchStats       `json:"research"`
	ToolStats *tools.SessionStats `json:"tool_stats,omitempty"`

	Synthesized int  `json:"synthesized"`
	Salvaged    bool `json:"salvaged"`
	NoOutput    bool `json:"no_output"`

	Accepted   int                         `json:"accepted"`
	Rejections []models.Rejection          `json:"rejections,omitempty"`
	Rejected   map[models.RejectReason]int `json:"rejected,omitempty"`
	Saved      persistence.SaveResult      `json:"saved"`

	Picks  []models.ValidatedPick  `json:"picks,omitempty"`
	Trends []models.ValidatedTrend `json:"trends,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SessionFactory opens a fresh per-run tool session.
type SessionFactory func() tools.Gateway

// OutputStore is the persistence surface the runner writes through.
type OutputStore interface {
	SavePicks(ctx context.Context, picks []models.ValidatedPick, research []persistence.Provenance) (persistence.SaveResult, error)
	SaveTrends(ctx context.Context, trends []models.ValidatedTrend) (persistence.SaveResult, error)
	SaveRun(ctx context.Context, run *models.RunRecord) error
}

// Runner is the single pipeline every generator runs through.
type Runner struct {
	catalog     *catalog.Catalog
	sessions    SessionFactory
	planner     *Planner
	executor    *Executor
	synthesizer *Synthesizer
	validator   *Validator
	store       OutputStore
	generators  map[string]config.GeneratorConfig
	location    *time.Location
	notifier    Notifier
	logger      *logrus.Logger
}

func NewRunner(
	cfg *config.Config,
	cat *catalog.Catalog,
	sessions SessionFactory,
	completer llm.Completer,
	store OutputStore,
	generators map[string]config.GeneratorConfig,
	logger *logrus.Logger,
) *Runner {
	prompts := NewPromptBuilder()
	return &Runner{
		catalog:     cat,
		sessions:    sessions,
		planner:     NewPlanner(completer, prompts, cfg, logger),
		executor:    NewExecutor(cfg, logger),
		synthesizer: NewSynthesizer(completer, prompts, cfg, logger),
		validator:   NewValidator(logger),
		store:       store,
		generators:  generators,
		location:    cfg.Location(),
		logger:      logger,
	}
}

// SetNotifier attaches an observer for stage events.
func (r *Runner) SetNotifier(n Notifier) {
	r.notifier = n
}

// Generators returns the configured generator set.
func (r *Runner) Generators() map[string]config.GeneratorConfig {
	return r.generators
}

// Today returns the current date in the configured timezone.
func (r *Runner) Today() string {
	return time.Now().In(r.location).Format(dateLayout)
}

const dateLayout = "2006-01-02"

// Run executes catalog → plan → research → synthesis → validation →
// persistence. A day with no games and an LLM that produces nothing are
// normal completions. Only setup errors and exhausted store retries return
// an error, always alongside the summary.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunSummary, error) {
	gen, err := ResolveGenerator(r.generators, req.Generator)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{
		RunID:     req.RunID,
		Generator: gen.Name,
		Date:      req.Date,
		Sport:     req.Sport,
		Status:    StatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if summary.RunID == "" {
		summary.RunID = uuid.New().String()
	}
	if summary.Date == "" {
		summary.Date = r.Today()
	}
	target := req.TargetCount
	if target <= 0 {
		target = positiveOr(gen.TargetCount, 10)
	}

	log := logger.ForRun(r.logger, summary.RunID, gen.Name, summary.Date, summary.Sport)
	log.Info("Pipeline run started")
	r.saveRun(ctx, summary)

	snap, err := r.catalog.Load(ctx, summary.Date, summary.Sport, FilterFor(gen))
	if errors.Is(err, catalog.ErrNoGamesFound) {
		log.WithField("reason", err.Error()).Info("No games found, nothing to generate")
		r.notify(summary, StageCatalog, err.Error(), nil)
		return r.finish(ctx, summary, StatusNoGames, nil), nil
	}
	if err != nil {
		return r.finish(ctx, summary, StatusFailed, err), err
	}
	summary.Events = len(snap.Events)
	summary.Candidates = snap.Len()
	summary.Filtered = snap.Filtered
	summary.Duplicates = snap.Duplicates
	r.notify(summary, StageCatalog, "catalog loaded", map[string]int{
		"events":     summary.Events,
		"candidates": summary.Candidates,
	})

	plan := r.planner.Plan(ctx, snap, gen, summary.Date, target)
	summary.Research.Planned = len(plan.Queries)
	summary.Research.Fallback = plan.Fallback
	r.notify(summary, StagePlan, "research planned", map[string]int{
		"stats": plan.Count(models.ToolStats),
		"web":   plan.Count(models.ToolWeb),
	})

	session := r.sessions()
	bundle := r.executor.Execute(ctx, session, plan.Queries)
	summary.Research.Attempted = bundle.Attempted
	summary.Research.Succeeded = len(bundle.Results)
	summary.Research.Failed = bundle.Failed
	summary.Research.Abandoned = bundle.Abandoned
	if s, ok := session.(interface{ Stats() tools.SessionStats }); ok {
		stats := s.Stats()
		summary.ToolStats = &stats
	}
	r.notify(summary, StageResearch, "research finished", summary.Research)

	synth := r.synthesizer.Synthesize(ctx, snap, bundle, gen, summary.Date, target)
	summary.Synthesized = synth.Elements
	summary.Salvaged = synth.Salvaged
	summary.NoOutput = synth.NoOutput
	r.notify(summary, StageSynthesis, "synthesis parsed", map[string]int{"elements": synth.Elements})

	run := RunInfo{RunID: summary.RunID, Generator: gen.Name, GameDate: summary.Date}
	if gen.Output == config.OutputTrends {
		for _, o := range r.validator.ValidateTrends(snap, synth.Trends, run) {
			if o.OK() {
				summary.Trends = append(summary.Trends, *o.Trend)
			} else {
				summary.Rejections = append(summary.Rejections, *o.Rejection)
			}
		}
		summary.Accepted = len(summary.Trends)
	} else {
		summary.Picks, summary.Rejections = r.validator.Validate(snap, synth.Picks, run)
		summary.Accepted = len(summary.Picks)
	}
	summary.Rejected = countReasons(summary.Rejections)
	r.notify(summary, StageValidation, "output validated", map[string]int{
		"accepted": summary.Accepted,
		"rejected": len(summary.Rejections),
	})

	var saved persistence.SaveResult
	if gen.Output == config.OutputTrends {
		saved, err = r.store.SaveTrends(ctx, summary.Trends)
	} else {
		saved, err = r.store.SavePicks(ctx, summary.Picks, persistence.ProvenanceFrom(bundle))
	}
	if err != nil {
		return r.finish(ctx, summary, StatusFailed, err), err
	}
	summary.Saved = saved
	r.notify(summary, StagePersistence, "output saved", saved)

	return r.finish(ctx, summary, StatusCompleted, nil), nil
}

func countReasons(rejections []models.Rejection) map[models.RejectReason]int {
	if len(rejections) == 0 {
		return nil
	}
	out := make(map[models.RejectReason]int)
	for _, rej := range rejections {
		out[rej.Reason]++
	}
	return out
}

func (r *Runner) finish(ctx context.Context, summary *RunSummary, status RunStatus, err error) *RunSummary {
	summary.Status = status
	summary.FinishedAt = time.Now().UTC()
	if err != nil {
		summary.Error = err.Error()
	}

	log := logger.ForRun(r.logger, summary.RunID, summary.Generator, summary.Date, summary.Sport).WithFields(logrus.Fields{
		"status":   status,
		"accepted": summary.Accepted,
		"rejected": len(summary.Rejections),
		"inserted": summary.Saved.Inserted,
		"duration": summary.FinishedAt.Sub(summary.StartedAt).String(),
	})
	if err != nil {
		log.WithError(err).Error("Pipeline run failed")
	} else {
		log.Info("Pipeline run finished")
	}

	r.saveRun(ctx, summary)
	r.notify(summary, StageDone, string(status), nil)
	return summary
}

// saveRun writes the audit row. It is best effort; a lost audit row never
// fails a run.
func (r *Runner) saveRun(ctx context.Context, summary *RunSummary) {
	if r.store == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		r.logger.WithError(err).Warn("Failed to marshal run summary")
		return
	}
	rec := &models.RunRecord{
		ID:         summary.RunID,
		Generator:  summary.Generator,
		GameDate:   summary.Date,
		Sport:      summary.Sport,
		Status:     string(summary.Status),
		Summary:    datatypes.JSON(raw),
		StartedAt:  summary.StartedAt,
		FinishedAt: summary.FinishedAt,
	}
	if err := r.store.SaveRun(context.WithoutCancel(ctx), rec); err != nil {
		logger.ForRun(r.logger, summary.RunID, summary.Generator, "", "").WithError(err).Warn("Failed to save run record")
	}
}

func (r *Runner) notify(summary *RunSummary, stage, message string, data interface{}) {
	if r.notifier == nil {
		return
	}
	r.notifier.Publish(RunEvent{
		RunID:     summary.RunID,
		Generator: summary.Generator,
		Stage:     stage,
		Status:    summary.Status,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

// String renders a one-line summary for CLI output.
func (s *RunSummary) String() string {
	return fmt.Sprintf("run %s generator=%s date=%s status=%s accepted=%d rejected=%d inserted=%d skipped=%d",
		s.RunID, s.Generator, s.Date, s.Status, s.Accepted, len(s.Rejections), s.Saved.Inserted, s.Saved.Skipped)
}
