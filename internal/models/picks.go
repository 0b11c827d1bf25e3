package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Risk levels
const (
	RiskLow    = "Low"
	RiskMedium = "Medium"
	RiskHigh   = "High"
)

// CandidatePick is a pick exactly as the LLM emitted it. Numeric fields are
// left as decoded JSON values (float64, string or nil) and are untrusted.
type CandidatePick struct {
	EventID            string `json:"event_id"`
	Kind               string `json:"kind,omitempty"`
	PlayerName         string `json:"player_name,omitempty"`
	PropType           string `json:"prop_type,omitempty"`
	BetType            string `json:"bet_type,omitempty"`
	Team               string `json:"team,omitempty"`
	Line               any    `json:"line"`
	Side               string `json:"side,omitempty"`
	Recommendation     string `json:"recommendation,omitempty"`
	Odds               any    `json:"odds"`
	Bookmaker          string `json:"bookmaker,omitempty"`
	Confidence         any    `json:"confidence"`
	Reasoning          string `json:"reasoning"`
	ROIEstimate        any    `json:"roi_estimate"`
	ValuePercentage    any    `json:"value_percentage"`
	ImpliedProbability any    `json:"implied_probability"`
	FairOdds           any    `json:"fair_odds"`
	RiskLevel          string `json:"risk_level,omitempty"`
}

// SideText returns the side as emitted, preferring "side" over "recommendation".
func (p CandidatePick) SideText() string {
	if strings.TrimSpace(p.Side) != "" {
		return p.Side
	}
	return p.Recommendation
}

// ResolvedKind infers the entity kind from the fields present.
func (p CandidatePick) ResolvedKind() EntityKind {
	switch EntityKind(NormalizeToken(p.Kind)) {
	case KindPlayerProp:
		return KindPlayerProp
	case KindTeamBet:
		return KindTeamBet
	}
	if strings.TrimSpace(p.PlayerName) != "" || strings.TrimSpace(p.PropType) != "" {
		return KindPlayerProp
	}
	return KindTeamBet
}

// PickMetadata is static display data attached at persistence time
type PickMetadata struct {
	BookmakerLogo    string `json:"bookmaker_logo,omitempty"`
	BookmakerDisplay string `json:"bookmaker_display,omitempty"`
	LeagueLogo       string `json:"league_logo,omitempty"`
	HeadshotURL      string `json:"headshot_url,omitempty"`
}

// ValidatedPick is a pick grounded 1:1 on a catalog entity with clean numerics.
type ValidatedPick struct {
	RunID     string `json:"run_id"`
	Generator string `json:"generator"`
	GameDate  string `json:"game_date"`

	EventID    string     `json:"event_id"`
	Kind       EntityKind `json:"kind"`
	Sport      string     `json:"sport"`
	League     string     `json:"league,omitempty"`
	HomeTeam   string     `json:"home_team"`
	AwayTeam   string     `json:"away_team"`
	StartTime  time.Time  `json:"start_time"`
	PlayerName string     `json:"player_name,omitempty"`
	PropType   string     `json:"prop_type,omitempty"`
	BetType    string     `json:"bet_type,omitempty"`
	Line       *float64   `json:"line,omitempty"`
	Side       string     `json:"side"`
	Odds       int        `json:"odds"`
	Bookmaker  string     `json:"bookmaker"`
	IsAlt      bool       `json:"is_alt"`

	Confidence               float64 `json:"confidence"`
	Reasoning                string  `json:"reasoning"`
	ROIEstimate              float64 `json:"roi_estimate"`
	ValuePercentage          float64 `json:"value_percentage"`
	ImpliedProbability       float64 `json:"implied_probability"`
	FairOdds                 float64 `json:"fair_odds"`
	MarketImpliedProbability float64 `json:"market_implied_probability"`
	RiskLevel                string  `json:"risk_level"`
	MatchType                string  `json:"match_type"` // "exact" or "relaxed"

	Metadata PickMetadata `json:"metadata"`
}

// EntityKey mirrors CandidateEntity.EntityKey for the matched entity.
func (p ValidatedPick) EntityKey() string {
	return EntityKeyFor(p.Kind, p.PlayerName, p.PropType, p.BetType)
}

// DedupKey is (event_id, entity key, side, line, bookmaker).
func (p ValidatedPick) DedupKey() string {
	return strings.Join([]string{p.EventID, p.EntityKey(), p.Side, LineKey(p.Line), NormalizeToken(p.Bookmaker)}, "#")
}

// RejectReason classifies why a candidate was dropped
type RejectReason string

const (
	RejectMalformed      RejectReason = "malformed"
	RejectOddsOutOfRange RejectReason = "odds_out_of_range"
	RejectEntityNotFound RejectReason = "entity_not_found"
	RejectSideUnknown    RejectReason = "side_unavailable"
	RejectDuplicate      RejectReason = "duplicate"
)

// Rejection records one dropped candidate; Index is its position in the LLM output.
type Rejection struct {
	Index  int          `json:"index"`
	Reason RejectReason `json:"reason"`
	Detail string       `json:"detail"`
}

// PickOutcome is Ok(ValidatedPick) or Rejected(reason); exactly one field is set.
type PickOutcome struct {
	Pick      *ValidatedPick
	Rejection *Rejection
}

// OK reports whether the outcome carries an accepted pick.
func (o PickOutcome) OK() bool { return o.Pick != nil }

// CandidateTrend is a trend insight as emitted by the LLM
type CandidateTrend struct {
	Subject        string          `json:"subject"`
	SubjectType    string          `json:"subject_type"` // "team" or "player"
	Sport          string          `json:"sport,omitempty"`
	EventID        string          `json:"event_id,omitempty"`
	TrendType      string          `json:"trend_type,omitempty"`
	Title          string          `json:"title"`
	Narrative      string          `json:"narrative"`
	Confidence     any             `json:"confidence"`
	SupportingData json.RawMessage `json:"supporting_data,omitempty"`
}

// ValidatedTrend is a trend grounded on a team or player present in the catalog.
type ValidatedTrend struct {
	RunID          string          `json:"run_id"`
	Generator      string          `json:"generator"`
	GameDate       string          `json:"game_date"`
	Subject        string          `json:"subject"`
	SubjectType    string          `json:"subject_type"`
	Sport          string          `json:"sport"`
	EventID        string          `json:"event_id"`
	TrendType      string          `json:"trend_type"`
	Title          string          `json:"title"`
	Narrative      string          `json:"narrative"`
	Confidence     float64         `json:"confidence"`
	SupportingData json.RawMessage `json:"supporting_data,omitempty"`
	Metadata       PickMetadata    `json:"metadata"`
}

// DedupKey is (subject, title) folded for comparison.
func (t ValidatedTrend) DedupKey() string {
	return NormalizeName(t.Subject) + "#" + NormalizeName(t.Title)
}

// TrendOutcome is Ok(ValidatedTrend) or Rejected(reason).
type TrendOutcome struct {
	Trend     *ValidatedTrend
	Rejection *Rejection
}

// OK reports whether the outcome carries an accepted trend.
func (o TrendOutcome) OK() bool { return o.Trend != nil }
