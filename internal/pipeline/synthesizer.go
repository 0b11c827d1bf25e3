package pipeline

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/llm"
	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/config"
)

// Synthesis is the untrusted synthesizer output for one run.
type Synthesis struct {
	Picks     []models.CandidatePick
	Trends    []models.CandidateTrend
	Rows      int  // candidate rows shown to the LLM
	Elements  int  // array elements recovered from the completion
	Skipped   int  // elements that were not JSON objects
	Salvaged  bool // completion was truncated; only complete elements kept
	NoOutput  bool // no JSON array could be recovered
	Truncated bool // candidate list was cut to the row cap
}

// Synthesizer turns catalog plus research into candidate picks or trends.
type Synthesizer struct {
	completer llm.Completer
	prompts   *PromptBuilder
	rowCap    int
	logger    *logrus.Logger
}

func NewSynthesizer(completer llm.Completer, prompts *PromptBuilder, cfg *config.Config, logger *logrus.Logger) *Synthesizer {
	return &Synthesizer{
		completer: completer,
		prompts:   prompts,
		rowCap:    positiveOr(cfg.SynthesisRowCap, 500),
		logger:    logger,
	}
}

// Synthesize never fails: an LLM error or unparseable completion is a
// normal "nothing this run" outcome reported through NoOutput.
func (s *Synthesizer) Synthesize(ctx context.Context, snap *catalog.Snapshot, bundle *models.ResearchBundle, gen config.GeneratorConfig, date string, targetCount int) *Synthesis {
	out := &Synthesis{}

	priority := make(map[string]bool)
	if bundle != nil {
		for _, r := range bundle.Results {
			for _, ref := range r.EntityRefs {
				priority[ref] = true
			}
		}
	}
	rows := diverseSample(snap, s.rowCap, priority, true)
	out.Rows = len(rows)
	out.Truncated = len(rows) < snap.Len()

	lines := make([]string, len(rows))
	for i, e := range rows {
		lines[i] = formatCandidateRow(e)
	}

	system, prompt := s.prompts.Synthesis(gen, map[string]string{
		"date":         date,
		"target_count": strconv.Itoa(targetCount),
		"row_count":    strconv.Itoa(len(rows)),
		"candidates":   strings.Join(lines, "\n"),
		"research":     formatResearch(bundle),
	})

	log := s.logger.WithFields(logrus.Fields{
		"generator": gen.Name,
		"rows":      out.Rows,
		"research":  len(bundleResults(bundle)),
	})

	completion, err := s.completer.Complete(ctx, prompt, llm.CompletionOptions{
		System:      system,
		Temperature: gen.Temperature,
		MaxTokens:   positiveOr(gen.SynthesisMaxTokens, 8000),
	})
	if err != nil {
		log.WithError(err).Warn("Synthesis completion failed, no output this run")
		out.NoOutput = true
		return out
	}

	key := "picks"
	if gen.Output == config.OutputTrends {
		key = "trends"
	}
	items, salvaged, err := llm.DecodeArray(completion, key)
	if err != nil {
		log.WithField("completion_length", len(completion)).Warn("No JSON array in synthesis completion")
		out.NoOutput = true
		return out
	}
	out.Elements = len(items)
	out.Salvaged = salvaged
	if salvaged {
		log.WithField("recovered", len(items)).Warn("Synthesis completion truncated, salvaged complete elements")
	}

	for _, raw := range items {
		fields, ok := decodeFields(raw)
		if !ok {
			out.Skipped++
			continue
		}
		if gen.Output == config.OutputTrends {
			out.Trends = append(out.Trends, trendFromFields(fields))
		} else {
			out.Picks = append(out.Picks, pickFromFields(fields))
		}
	}

	log.WithFields(logrus.Fields{
		"elements": out.Elements,
		"skipped":  out.Skipped,
		"picks":    len(out.Picks),
		"trends":   len(out.Trends),
	}).Info("Synthesis parsed")
	return out
}

func bundleResults(b *models.ResearchBundle) []models.ResearchResult {
	if b == nil {
		return nil
	}
	return b.Results
}

// decodeFields reads one element as a JSON object; nothing else is a candidate.
func decodeFields(raw json.RawMessage) (map[string]interface{}, bool) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, false
	}
	return fields, true
}

// str renders scalar JSON values as text; numeric ids become "401585".
func str(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func pickFromFields(f map[string]interface{}) models.CandidatePick {
	return models.CandidatePick{
		EventID:            str(f["event_id"]),
		Kind:               str(f["kind"]),
		PlayerName:         str(f["player_name"]),
		PropType:           str(f["prop_type"]),
		BetType:            str(f["bet_type"]),
		Team:               str(f["team"]),
		Line:               f["line"],
		Side:               str(f["side"]),
		Recommendation:     str(f["recommendation"]),
		Odds:               f["odds"],
		Bookmaker:          str(f["bookmaker"]),
		Confidence:         f["confidence"],
		Reasoning:          str(f["reasoning"]),
		ROIEstimate:        f["roi_estimate"],
		ValuePercentage:    f["value_percentage"],
		ImpliedProbability: f["implied_probability"],
		FairOdds:           f["fair_odds"],
		RiskLevel:          str(f["risk_level"]),
	}
}

func trendFromFields(f map[string]interface{}) models.CandidateTrend {
	t := models.CandidateTrend{
		Subject:     str(f["subject"]),
		SubjectType: str(f["subject_type"]),
		Sport:       str(f["sport"]),
		EventID:     str(f["event_id"]),
		TrendType:   str(f["trend_type"]),
		Title:       str(f["title"]),
		Narrative:   str(f["narrative"]),
		Confidence:  f["confidence"],
	}
	if data, ok := f["supporting_data"]; ok && data != nil {
		if raw, err := json.Marshal(data); err == nil {
			t.SupportingData = raw
		}
	}
	return t
}
