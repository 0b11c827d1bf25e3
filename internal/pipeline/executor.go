package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/internal/tools"
	"github.com/stitts-dev/pick-research/pkg/config"
)

// MaxToolConcurrency bounds outbound research calls per run.
const MaxToolConcurrency = 5

// maxSnippetsPerQuery keeps web answers short in the synthesis prompt.
const maxSnippetsPerQuery = 3

// Executor runs planned queries through a gateway with bounded concurrency.
type Executor struct {
	concurrency int
	interval    time.Duration
	ceiling     time.Duration
	logger      *logrus.Logger
	now         func() time.Time
}

func NewExecutor(cfg *config.Config, logger *logrus.Logger) *Executor {
	return &Executor{
		concurrency: clamp(positiveOr(cfg.ToolConcurrency, 4), 1, MaxToolConcurrency),
		interval:    cfg.ToolCallInterval,
		ceiling:     cfg.ResearchCeiling,
		logger:      logger,
		now:         time.Now,
	}
}

type queryOutcome struct {
	index     int
	result    *models.ResearchResult
	err       error
	abandoned bool
}

// Execute runs every query at most once and always returns a bundle. Failed
// queries are logged and dropped. When the run ceiling passes, in-flight calls
// are cancelled and the bundle holds whatever finished.
func (e *Executor) Execute(ctx context.Context, gw tools.Gateway, queries []models.ResearchQuery) *models.ResearchBundle {
	bundle := &models.ResearchBundle{Results: []models.ResearchResult{}, Attempted: len(queries)}
	if len(queries) == 0 {
		return bundle
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	limit := rate.Inf
	if e.interval > 0 {
		limit = rate.Every(e.interval)
	}
	limiter := rate.NewLimiter(limit, 1)

	// buffered so workers never block on a coordinator that stopped reading
	outcomes := make(chan queryOutcome, len(queries))

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.concurrency)
	go func() {
		for i, q := range queries {
			i, q := i, q
			g.Go(func() error {
				outcomes <- e.run(gctx, limiter, gw, i, q)
				return nil
			})
		}
		_ = g.Wait()
		close(outcomes)
	}()

	var ceiling <-chan time.Time
	if e.ceiling > 0 {
		timer := time.NewTimer(e.ceiling)
		defer timer.Stop()
		ceiling = timer.C
	}

	received := 0
	var collected []queryOutcome
collect:
	for {
		select {
		case o, ok := <-outcomes:
			if !ok {
				break collect
			}
			received++
			collected = append(collected, o)
		case <-ceiling:
			cancel()
			bundle.Abandoned = len(queries) - received
			e.logger.WithFields(logrus.Fields{
				"ceiling":   e.ceiling.String(),
				"completed": received,
				"abandoned": bundle.Abandoned,
			}).Warn("Research ceiling reached, continuing with partial research")
			break collect
		}
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })
	for _, o := range collected {
		switch {
		case o.result != nil:
			bundle.Results = append(bundle.Results, *o.result)
		case o.abandoned:
			bundle.Abandoned++
		default:
			bundle.Failed++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"attempted": bundle.Attempted,
		"succeeded": len(bundle.Results),
		"failed":    bundle.Failed,
		"abandoned": bundle.Abandoned,
		"stats":     bundle.CountByTool(models.ToolStats),
		"web":       bundle.CountByTool(models.ToolWeb),
	}).Info("Research execution finished")

	return bundle
}

func (e *Executor) run(ctx context.Context, limiter *rate.Limiter, gw tools.Gateway, index int, q models.ResearchQuery) queryOutcome {
	if err := limiter.Wait(ctx); err != nil {
		return queryOutcome{index: index, abandoned: true, err: err}
	}

	var answer string
	var err error
	switch q.Tool {
	case models.ToolStats:
		answer, err = gw.QueryStats(ctx, q.Text, q.Sport)
	case models.ToolWeb:
		var snippets []models.Snippet
		snippets, err = gw.QueryWeb(ctx, q.Text)
		answer = formatSnippets(snippets)
	default:
		err = fmt.Errorf("unknown tool %q", q.Tool)
	}

	if err != nil {
		if ctx.Err() != nil {
			return queryOutcome{index: index, abandoned: true, err: err}
		}
		e.logger.WithFields(logrus.Fields{
			"tool":  q.Tool,
			"query": q.Text,
			"kind":  tools.KindOf(err),
			"error": err.Error(),
		}).Warn("Research query failed, dropping")
		return queryOutcome{index: index, err: err}
	}

	return queryOutcome{index: index, result: &models.ResearchResult{
		Tool:        q.Tool,
		Query:       q.Text,
		Answer:      answer,
		Weight:      models.WeightFor(q.Tool),
		EntityRefs:  q.EntityRefs,
		RetrievedAt: e.now().UTC(),
	}}
}

func formatSnippets(snippets []models.Snippet) string {
	var b strings.Builder
	for i, s := range snippets {
		if i >= maxSnippetsPerQuery {
			break
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s", strings.TrimSpace(s.Title), strings.TrimSpace(s.Snippet))
		if s.URL != "" {
			fmt.Fprintf(&b, " (%s)", s.URL)
		}
	}
	return b.String()
}
