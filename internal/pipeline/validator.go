package pipeline

import (
	"fmt"
	"math"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/oddsmath"
)

// Match types recorded on validated picks
const (
	MatchExact   = "exact"
	MatchRelaxed = "relaxed"
)

// RunInfo stamps validated output with its run.
type RunInfo struct {
	RunID     string
	Generator string
	GameDate  string
}

// Validator reconciles LLM output against the run's catalog.
type Validator struct {
	logger *logrus.Logger
}

func NewValidator(logger *logrus.Logger) *Validator {
	return &Validator{logger: logger}
}

// Validate returns the accepted picks in input order plus every rejection.
func (v *Validator) Validate(snap *catalog.Snapshot, picks []models.CandidatePick, run RunInfo) ([]models.ValidatedPick, []models.Rejection) {
	var accepted []models.ValidatedPick
	var rejected []models.Rejection
	for _, o := range v.Evaluate(snap, picks, run) {
		if o.OK() {
			accepted = append(accepted, *o.Pick)
		} else {
			rejected = append(rejected, *o.Rejection)
		}
	}
	return accepted, rejected
}

// Evaluate returns one outcome per candidate, in input order. The first
// occurrence of a (event, entity, side, line, bookmaker) tuple wins.
func (v *Validator) Evaluate(snap *catalog.Snapshot, picks []models.CandidatePick, run RunInfo) []models.PickOutcome {
	outcomes := make([]models.PickOutcome, len(picks))
	seen := make(map[string]bool)

	for i, p := range picks {
		pick, rej := v.resolve(snap, p)
		if rej == nil {
			key := pick.DedupKey()
			if seen[key] {
				rej = &models.Rejection{Reason: models.RejectDuplicate, Detail: key}
			} else {
				seen[key] = true
			}
		}

		if rej != nil {
			rej.Index = i
			outcomes[i] = models.PickOutcome{Rejection: rej}
			v.logger.WithFields(logrus.Fields{
				"run_id":   run.RunID,
				"index":    i,
				"event_id": p.EventID,
				"reason":   rej.Reason,
				"detail":   rej.Detail,
			}).Info("Dropped candidate pick")
			continue
		}

		pick.RunID = run.RunID
		pick.Generator = run.Generator
		pick.GameDate = run.GameDate
		outcomes[i] = models.PickOutcome{Pick: pick}
	}
	return outcomes
}

func reject(reason models.RejectReason, format string, args ...interface{}) *models.Rejection {
	return &models.Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (v *Validator) resolve(snap *catalog.Snapshot, p models.CandidatePick) (*models.ValidatedPick, *models.Rejection) {
	kind := p.ResolvedKind()
	eventID := strings.TrimSpace(p.EventID)
	if eventID == "" {
		return nil, reject(models.RejectMalformed, "missing event_id")
	}
	if kind == models.KindPlayerProp && (p.PlayerName == "" || p.PropType == "") {
		return nil, reject(models.RejectMalformed, "player prop missing player_name or prop_type")
	}
	if kind == models.KindTeamBet && p.BetType == "" {
		return nil, reject(models.RejectMalformed, "team bet missing bet_type")
	}

	line, ok := CoerceLine(p.Line)
	if !ok {
		return nil, reject(models.RejectMalformed, "unreadable line %v", p.Line)
	}
	betType := models.NormalizeToken(p.BetType)
	if kind == models.KindTeamBet && isMoneyline(betType) {
		line = nil
	}

	claimed, oddsKnown := CoerceOdds(p.Odds)
	if oddsKnown && !models.OddsInWindow(claimed) {
		return nil, reject(models.RejectOddsOutOfRange, "claimed odds %+d outside %d..%+d", claimed, models.MinOdds, models.MaxOdds)
	}

	event, ok := snap.Event(eventID)
	if !ok {
		return nil, reject(models.RejectEntityNotFound, "unknown event %s", eventID)
	}

	side := normalizeSide(p.SideText(), p.Team, kind, betType, event)
	if side == "" {
		return nil, reject(models.RejectMalformed, "unrecognized side %q", p.SideText())
	}

	entityKey := models.EntityKeyFor(kind, p.PlayerName, p.PropType, p.BetType)
	market := snap.Market(eventID, entityKey)
	candidates := matchLine(market, line)
	if len(candidates) == 0 && line != nil && betType == "spread" && side == models.SideAway {
		// away spreads are quoted as the negated home line
		flipped := -*line
		candidates = matchLine(market, &flipped)
	}
	if len(candidates) == 0 {
		return nil, reject(models.RejectEntityNotFound, "no %s line %s for event %s", entityKey, models.LineKey(line), eventID)
	}

	entity, matchType, found := pickEntity(candidates, side, claimed, oddsKnown, p.Bookmaker)
	if !found {
		if odds, ok := offeredOutsideWindow(candidates, side); ok {
			return nil, reject(models.RejectOddsOutOfRange, "catalog odds %+d outside %d..%+d", odds, models.MinOdds, models.MaxOdds)
		}
		return nil, reject(models.RejectSideUnknown, "side %s not offered for %s", side, entityKey)
	}
	odds := entity.Odds[side]

	pick := &models.ValidatedPick{
		EventID:    entity.EventID,
		Kind:       entity.Kind,
		Sport:      entity.Sport,
		League:     entity.League,
		HomeTeam:   entity.HomeTeam,
		AwayTeam:   entity.AwayTeam,
		StartTime:  entity.StartTime,
		PlayerName: entity.PlayerName,
		PropType:   entity.PropType,
		BetType:    entity.BetType,
		Line:       entity.Line,
		Side:       side,
		Odds:       odds,
		Bookmaker:  entity.Bookmaker,
		IsAlt:      entity.IsAlt,
		Reasoning:  strings.TrimSpace(p.Reasoning),
		MatchType:  matchType,
	}
	applyMetrics(pick, p)
	return pick, nil
}

func isMoneyline(betType string) bool {
	return betType == "moneyline" || betType == "h2h" || betType == "ml"
}

func matchLine(market []models.CandidateEntity, line *float64) []models.CandidateEntity {
	var out []models.CandidateEntity
	for _, e := range market {
		if models.LinesEqual(e.Line, line) {
			out = append(out, e)
		}
	}
	return out
}

// pickEntity tries an exact (bookmaker, odds) match first, then relaxes to any
// entity offering the side: same bookmaker, closest odds, main line, first.
// Sides priced outside the odds window are never chosen.
func pickEntity(candidates []models.CandidateEntity, side string, claimed int, oddsKnown bool, bookmaker string) (models.CandidateEntity, string, bool) {
	book := models.NormalizeToken(bookmaker)

	if oddsKnown {
		for _, e := range candidates {
			odds, ok := e.OddsFor(side)
			if ok && models.OddsInWindow(odds) && odds == claimed && models.NormalizeToken(e.Bookmaker) == book {
				return e, MatchExact, true
			}
		}
	}

	best := -1
	var bestScore [3]int
	for i, e := range candidates {
		odds, ok := e.OddsFor(side)
		if !ok || !models.OddsInWindow(odds) {
			continue
		}
		score := [3]int{1, 0, 1}
		if book != "" && models.NormalizeToken(e.Bookmaker) == book {
			score[0] = 0
		}
		if oddsKnown {
			score[1] = int(math.Abs(float64(odds - claimed)))
		}
		if !e.IsAlt {
			score[2] = 0
		}
		if best == -1 || lessScore(score, bestScore) {
			best, bestScore = i, score
		}
	}
	if best == -1 {
		return models.CandidateEntity{}, "", false
	}
	return candidates[best], MatchRelaxed, true
}

// offeredOutsideWindow returns the first price for side that exists but
// falls outside the odds window.
func offeredOutsideWindow(candidates []models.CandidateEntity, side string) (int, bool) {
	for _, e := range candidates {
		if odds, ok := e.OddsFor(side); ok && !models.OddsInWindow(odds) {
			return odds, true
		}
	}
	return 0, false
}

func lessScore(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// normalizeSide maps o/u, over/under, home/away or a team name onto a side key.
func normalizeSide(text, team string, kind models.EntityKind, betType string, event models.Event) string {
	s := models.NormalizeName(text)
	switch {
	case s == "over" || s == "o" || strings.HasPrefix(s, "over "):
		return models.SideOver
	case s == "under" || s == "u" || strings.HasPrefix(s, "under "):
		return models.SideUnder
	case s == "home":
		return models.SideHome
	case s == "away":
		return models.SideAway
	}
	if kind == models.KindPlayerProp || betType == "total" || betType == "totals" {
		return ""
	}

	for _, candidate := range []string{s, models.NormalizeName(team)} {
		if candidate == "" {
			continue
		}
		home, away := models.NormalizeName(event.HomeTeam), models.NormalizeName(event.AwayTeam)
		switch {
		case candidate == home || strings.Contains(home, candidate) || strings.Contains(candidate, home):
			return models.SideHome
		case candidate == away || strings.Contains(away, candidate) || strings.Contains(candidate, away):
			return models.SideAway
		}
	}
	return ""
}

// applyMetrics coerces the LLM's numeric fields and fills derived ones.
func applyMetrics(pick *models.ValidatedPick, p models.CandidatePick) {
	pick.Confidence = oddsmath.Round2(NormalizeConfidence(p.Confidence))
	pick.ROIEstimate = oddsmath.Round2(CoercePercent(p.ROIEstimate))
	pick.ValuePercentage = oddsmath.Round2(CoercePercent(p.ValuePercentage))
	pick.ImpliedProbability = oddsmath.Round2(coercePercentOr(p.ImpliedProbability, DefaultImpliedProbability))

	if fair, ok := CoerceOdds(p.FairOdds); ok {
		pick.FairOdds = float64(fair)
	} else if fair, err := oddsmath.FairAmericanOdds(pick.ImpliedProbability); err == nil {
		pick.FairOdds = float64(fair)
	}

	if market, err := oddsmath.ImpliedProbabilityPercent(pick.Odds); err == nil {
		pick.MarketImpliedProbability = oddsmath.Round2(market)
	}

	pick.RiskLevel = normalizeRisk(p.RiskLevel)
	if pick.RiskLevel == "" {
		pick.RiskLevel = DeriveRiskLevel(pick.Confidence, pick.Odds)
	}
}

func normalizeRisk(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return models.RiskLow
	case "medium", "med":
		return models.RiskMedium
	case "high":
		return models.RiskHigh
	}
	return ""
}

// DeriveRiskLevel is the fixed rule table used when the LLM omits risk_level.
func DeriveRiskLevel(confidence float64, odds int) string {
	switch {
	case confidence >= 70 && odds <= -110:
		return models.RiskLow
	case confidence >= 60 && odds >= -150 && odds <= 150:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// ValidateTrends keeps trends whose subject is a team or player in the
// catalog. Duplicates by (subject, title) keep the first.
func (v *Validator) ValidateTrends(snap *catalog.Snapshot, trends []models.CandidateTrend, run RunInfo) []models.TrendOutcome {
	outcomes := make([]models.TrendOutcome, len(trends))
	seen := make(map[string]bool)

	for i, t := range trends {
		trend, rej := resolveTrend(snap, t)
		if rej == nil {
			key := trend.DedupKey()
			if seen[key] {
				rej = &models.Rejection{Reason: models.RejectDuplicate, Detail: key}
			} else {
				seen[key] = true
			}
		}
		if rej != nil {
			rej.Index = i
			outcomes[i] = models.TrendOutcome{Rejection: rej}
			v.logger.WithFields(logrus.Fields{
				"run_id":  run.RunID,
				"index":   i,
				"subject": t.Subject,
				"reason":  rej.Reason,
				"detail":  rej.Detail,
			}).Info("Dropped candidate trend")
			continue
		}
		trend.RunID = run.RunID
		trend.Generator = run.Generator
		trend.GameDate = run.GameDate
		outcomes[i] = models.TrendOutcome{Trend: trend}
	}
	return outcomes
}

func resolveTrend(snap *catalog.Snapshot, t models.CandidateTrend) (*models.ValidatedTrend, *models.Rejection) {
	if strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.Title) == "" || strings.TrimSpace(t.Narrative) == "" {
		return nil, reject(models.RejectMalformed, "trend missing subject, title or narrative")
	}
	subject, ok := snap.ResolveSubject(t.Subject)
	if !ok {
		return nil, reject(models.RejectEntityNotFound, "subject %q not playing today", t.Subject)
	}

	eventID := subject.EventID
	if id := strings.TrimSpace(t.EventID); id != "" {
		if _, ok := snap.Event(id); ok {
			eventID = id
		}
	}

	return &models.ValidatedTrend{
		Subject:        subject.Name,
		SubjectType:    subject.Type,
		Sport:          subject.Sport,
		EventID:        eventID,
		TrendType:      models.NormalizeToken(t.TrendType),
		Title:          strings.TrimSpace(t.Title),
		Narrative:      strings.TrimSpace(t.Narrative),
		Confidence:     oddsmath.Round2(NormalizeConfidence(t.Confidence)),
		SupportingData: t.SupportingData,
	}, nil
}
