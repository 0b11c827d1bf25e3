package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

// EntityKind distinguishes team markets from player props
type EntityKind string

const (
	KindTeamBet    EntityKind = "team_bet"
	KindPlayerProp EntityKind = "player_prop"
)

// Canonical side keys used in CandidateEntity.Odds
const (
	SideOver  = "over"
	SideUnder = "under"
	SideHome  = "home"
	SideAway  = "away"
)

// Hard acceptance window for American odds, inclusive on both ends.
const (
	MinOdds = -300
	MaxOdds = 300
)

// OddsInWindow reports whether an American price is inside the acceptance window.
func OddsInWindow(odds int) bool {
	return odds >= MinOdds && odds <= MaxOdds
}

// CandidateEntity is one bettable line for an event, materialized fresh for every run.
type CandidateEntity struct {
	EventID    string         `json:"event_id"`
	Kind       EntityKind     `json:"kind"`
	Sport      string         `json:"sport"`
	League     string         `json:"league,omitempty"`
	HomeTeam   string         `json:"home_team"`
	AwayTeam   string         `json:"away_team"`
	StartTime  time.Time      `json:"start_time"`
	PlayerName string         `json:"player_name,omitempty"`
	PropType   string         `json:"prop_type,omitempty"`
	BetType    string         `json:"bet_type,omitempty"`
	Line       *float64       `json:"line,omitempty"`
	Odds       map[string]int `json:"odds"` // side -> American odds; a missing side is null
	Bookmaker  string         `json:"bookmaker"`
	StoreTS    time.Time      `json:"store_ts"`
	IsAlt      bool           `json:"is_alt"`
}

// EntityKey identifies the market independent of line and bookmaker.
func (e CandidateEntity) EntityKey() string {
	return EntityKeyFor(e.Kind, e.PlayerName, e.PropType, e.BetType)
}

// EntityKeyFor builds the entity key from raw identifying fields.
func EntityKeyFor(kind EntityKind, playerName, propType, betType string) string {
	if kind == KindPlayerProp {
		return "prop:" + NormalizeName(playerName) + "|" + NormalizeToken(propType)
	}
	return "team:" + NormalizeToken(betType)
}

// UniqueKey is the catalog uniqueness key: event, entity, line and bookmaker.
func (e CandidateEntity) UniqueKey() string {
	return strings.Join([]string{e.EventID, e.EntityKey(), LineKey(e.Line), NormalizeToken(e.Bookmaker)}, "#")
}

// OddsFor returns the price for a side, if the side is offered.
func (e CandidateEntity) OddsFor(side string) (int, bool) {
	odds, ok := e.Odds[side]
	return odds, ok
}

// AnySideInWindow reports whether at least one offered side is inside the odds window.
func (e CandidateEntity) AnySideInWindow() bool {
	for _, odds := range e.Odds {
		if OddsInWindow(odds) {
			return true
		}
	}
	return false
}

// Matchup renders "Away @ Home".
func (e CandidateEntity) Matchup() string {
	return fmt.Sprintf("%s @ %s", e.AwayTeam, e.HomeTeam)
}

// MarketLabel is the prop type for props and the bet type for team bets.
func (e CandidateEntity) MarketLabel() string {
	if e.Kind == KindPlayerProp {
		return e.PropType
	}
	return e.BetType
}

// Sides returns offered sides in a fixed display order.
func (e CandidateEntity) Sides() []string {
	var sides []string
	for _, s := range []string{SideOver, SideUnder, SideHome, SideAway} {
		if _, ok := e.Odds[s]; ok {
			sides = append(sides, s)
		}
	}
	return sides
}

// LineKey renders a nullable line for keys; nil lines (moneyline) render as "-".
func LineKey(line *float64) string {
	if line == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *line)
}

// LinesEqual compares nullable lines at two-decimal precision.
func LinesEqual(a, b *float64) bool {
	return LineKey(a) == LineKey(b)
}

// NormalizeName folds a person or team name for matching:
// lowercase, punctuation dropped, hyphens as spaces, whitespace collapsed.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r == '-' || r == '_':
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeToken folds enumerated values such as prop or bet types.
func NormalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.Join(strings.Fields(s), "_")
}
