package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/llm"
	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/internal/tools"
	"github.com/stitts-dev/pick-research/pkg/config"
	"github.com/stitts-dev/pick-research/pkg/oddsmath"
)

// Hard caps on planned queries regardless of what the LLM returns.
const (
	MaxStatsQueries = 15
	MaxWebQueries   = 6
)

// ResearchPlan is the planner's output: an unordered work queue.
type ResearchPlan struct {
	Queries  []models.ResearchQuery `json:"queries"`
	Sampled  int                    `json:"sampled"`
	Fallback bool                   `json:"fallback"`
	Reason   string                 `json:"reason,omitempty"` // why the fallback ran
}

// Count returns the number of planned queries for a tool.
func (p *ResearchPlan) Count(tool models.ToolKind) int {
	n := 0
	for _, q := range p.Queries {
		if q.Tool == tool {
			n++
		}
	}
	return n
}

// Planner selects entities worth researching and writes the tool queries.
type Planner struct {
	completer   llm.Completer
	prompts     *PromptBuilder
	sampleCap   int
	statsTarget int
	webTarget   int
	logger      *logrus.Logger
}

func NewPlanner(completer llm.Completer, prompts *PromptBuilder, cfg *config.Config, logger *logrus.Logger) *Planner {
	return &Planner{
		completer:   completer,
		prompts:     prompts,
		sampleCap:   positiveOr(cfg.PlannerSampleCap, 200),
		statsTarget: clamp(positiveOr(cfg.StatsQueryTarget, 12), 1, MaxStatsQueries),
		webTarget:   clamp(positiveOr(cfg.WebQueryTarget, 4), 1, MaxWebQueries),
		logger:      logger,
	}
}

type plannedQuery struct {
	Query      string   `json:"query"`
	EntityRefs []string `json:"entity_refs"`
	Purpose    string   `json:"purpose"`
}

type plannerResponse struct {
	StatsQueries []json.RawMessage `json:"stats_queries"`
	WebQueries   []json.RawMessage `json:"web_queries"`
}

// Plan asks the LLM for research queries. Any LLM or parse failure falls
// back to a deterministic rule, so the plan is never empty.
func (p *Planner) Plan(ctx context.Context, snap *catalog.Snapshot, gen config.GeneratorConfig, date string, targetCount int) *ResearchPlan {
	sample := diverseSample(snap, p.sampleCap, nil, false)
	plan := &ResearchPlan{Sampled: len(sample)}

	queries, err := p.planWithLLM(ctx, snap, sample, gen, date, targetCount)
	if err == nil && len(queries) == 0 {
		err = fmt.Errorf("planner returned no usable queries")
	}
	if err != nil {
		p.logger.WithFields(logrus.Fields{
			"generator": gen.Name,
			"error":     err.Error(),
		}).Warn("Research planning failed, using fallback queries")
		plan.Fallback = true
		plan.Reason = err.Error()
		queries = p.fallback(snap, date)
	}

	plan.Queries = queries
	p.logger.WithFields(logrus.Fields{
		"generator": gen.Name,
		"sampled":   plan.Sampled,
		"stats":     plan.Count(models.ToolStats),
		"web":       plan.Count(models.ToolWeb),
		"fallback":  plan.Fallback,
	}).Info("Research plan ready")
	return plan
}

func (p *Planner) planWithLLM(ctx context.Context, snap *catalog.Snapshot, sample []models.CandidateEntity, gen config.GeneratorConfig, date string, targetCount int) ([]models.ResearchQuery, error) {
	if p.completer == nil {
		return nil, fmt.Errorf("no LLM configured")
	}
	if len(sample) == 0 {
		return nil, fmt.Errorf("no candidate entities to plan from")
	}

	rows := make([]string, len(sample))
	for i, e := range sample {
		rows[i] = formatPlannerRow(e)
	}

	system, prompt := p.prompts.Planner(gen, map[string]string{
		"date":         date,
		"sample_count": strconv.Itoa(len(sample)),
		"event_count":  strconv.Itoa(len(snap.Events)),
		"sports":       strings.Join(snap.Sports(), ", "),
		"candidates":   strings.Join(rows, "\n"),
		"target_count": strconv.Itoa(targetCount),
		"output":       gen.Output,
		"stats_target": strconv.Itoa(p.statsTarget),
		"web_target":   strconv.Itoa(p.webTarget),
	})

	completion, err := p.completer.Complete(ctx, prompt, llm.CompletionOptions{
		System:      system,
		Temperature: 0.2,
		MaxTokens:   positiveOr(gen.PlannerMaxTokens, 3000),
	})
	if err != nil {
		return nil, fmt.Errorf("planner completion failed: %w", err)
	}

	var resp plannerResponse
	if err := llm.DecodeObject(completion, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse planner response: %w", err)
	}

	sports := sportsByRef(snap)
	defaultSport := ""
	if s := snap.Sports(); len(s) == 1 {
		defaultSport = s[0]
	}

	var out []models.ResearchQuery
	seen := make(map[string]bool)
	add := func(raw []json.RawMessage, tool models.ToolKind, limit int) {
		n := 0
		for _, item := range raw {
			if n >= limit {
				return
			}
			q, ok := decodePlannedQuery(item)
			if !ok {
				continue
			}
			text := tools.NormalizeQuery(q.Query)
			key := string(tool) + "|" + strings.ToLower(text)
			if text == "" || seen[key] {
				continue
			}
			seen[key] = true

			rq := models.ResearchQuery{Text: text, Tool: tool, Purpose: q.Purpose, Sport: defaultSport}
			for _, ref := range q.EntityRefs {
				ref = strings.TrimSpace(ref)
				if sport, ok := sports[ref]; ok {
					rq.EntityRefs = append(rq.EntityRefs, ref)
					rq.Sport = sport
				}
			}
			out = append(out, rq)
			n++
		}
	}
	add(resp.StatsQueries, models.ToolStats, MaxStatsQueries)
	add(resp.WebQueries, models.ToolWeb, MaxWebQueries)
	return out, nil
}

// decodePlannedQuery accepts either {"query":...} objects or bare strings.
func decodePlannedQuery(raw json.RawMessage) (plannedQuery, bool) {
	var q plannedQuery
	if err := json.Unmarshal(raw, &q); err == nil && q.Query != "" {
		return q, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return plannedQuery{Query: s}, true
	}
	return plannedQuery{}, false
}

func sportsByRef(snap *catalog.Snapshot) map[string]string {
	out := make(map[string]string, snap.Len())
	for _, e := range snap.Entities {
		out[entityRef(e)] = e.Sport
	}
	return out
}

// fallback writes one stats query for each of the markets priced closest to
// even money, plus an injury or weather search per team.
func (p *Planner) fallback(snap *catalog.Snapshot, date string) []models.ResearchQuery {
	type scored struct {
		entity   models.CandidateEntity
		distance int
	}

	var markets []scored
	seen := make(map[string]bool)
	for _, e := range snap.Entities {
		ref := entityRef(e)
		if seen[ref] {
			continue
		}
		seen[ref] = true
		best := -1
		for _, odds := range e.Odds {
			if !models.OddsInWindow(odds) {
				continue
			}
			if d := oddsmath.DistanceFromEven(odds); best == -1 || d < best {
				best = d
			}
		}
		if best >= 0 {
			markets = append(markets, scored{entity: e, distance: best})
		}
	}
	sort.SliceStable(markets, func(i, j int) bool {
		return markets[i].distance < markets[j].distance
	})

	var queries []models.ResearchQuery
	for i := 0; i < len(markets) && i < p.statsTarget; i++ {
		e := markets[i].entity
		queries = append(queries, models.ResearchQuery{
			Text:       tools.NormalizeQuery(fallbackStatsQuery(e)),
			Tool:       models.ToolStats,
			Sport:      e.Sport,
			EntityRefs: []string{entityRef(e)},
			Purpose:    "closest to even money",
		})
	}

	web := 0
	for _, ev := range snap.Events {
		for _, team := range []string{ev.AwayTeam, ev.HomeTeam} {
			if web >= p.webTarget {
				break
			}
			text := fmt.Sprintf("%s injury report lineup news %s", team, date)
			purpose := "injuries"
			if outdoorSport(ev.Sport) && team == ev.HomeTeam {
				text = fmt.Sprintf("%s home game weather forecast %s", team, date)
				purpose = "weather"
			}
			queries = append(queries, models.ResearchQuery{
				Text:    tools.NormalizeQuery(text),
				Tool:    models.ToolWeb,
				Sport:   ev.Sport,
				Purpose: purpose,
			})
			web++
		}
	}

	if len(queries) == 0 {
		for _, sport := range snap.Sports() {
			queries = append(queries, models.ResearchQuery{
				Text:    tools.NormalizeQuery(fmt.Sprintf("%s injury news %s", sport, date)),
				Tool:    models.ToolWeb,
				Sport:   sport,
				Purpose: "injuries",
			})
		}
	}
	if len(queries) == 0 {
		queries = append(queries, models.ResearchQuery{
			Text:    "sports injury news " + date,
			Tool:    models.ToolWeb,
			Purpose: "injuries",
		})
	}
	return queries
}

func fallbackStatsQuery(e models.CandidateEntity) string {
	if e.Kind == models.KindPlayerProp {
		if e.Line != nil {
			return fmt.Sprintf("%s %s per game over the last 10 games and how often over %s", e.PlayerName, e.PropType, formatLine(e.Line))
		}
		return fmt.Sprintf("%s %s per game over the last 10 games", e.PlayerName, e.PropType)
	}
	return fmt.Sprintf("%s vs %s last 10 games results and %s record", e.AwayTeam, e.HomeTeam, e.BetType)
}

func outdoorSport(sport string) bool {
	switch strings.ToUpper(sport) {
	case "NFL", "MLB", "NCAAF", "MLS", "SOCCER", "GOLF":
		return true
	}
	return false
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
