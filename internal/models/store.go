package models

import (
	"time"

	"gorm.io/datatypes"
)

// Event is a scheduled game
type Event struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Sport     string    `gorm:"size:20;index;not null" json:"sport"`
	League    string    `gorm:"size:50" json:"league"`
	HomeTeam  string    `gorm:"size:100;not null" json:"home_team"`
	AwayTeam  string    `gorm:"size:100;not null" json:"away_team"`
	StartTime time.Time `gorm:"index;not null" json:"start_time"` // UTC
	Status    string    `gorm:"size:20;default:scheduled" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Event) TableName() string {
	return "events"
}

// PlayerPropLine is an over/under player prop quote from one bookmaker
type PlayerPropLine struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	EventID    string    `gorm:"size:64;index;not null" json:"event_id"`
	PlayerName string    `gorm:"size:100;not null" json:"player_name"`
	PropType   string    `gorm:"size:50;not null" json:"prop_type"`
	Line       float64   `gorm:"not null" json:"line"`
	OverOdds   *int      `json:"over_odds"`
	UnderOdds  *int      `json:"under_odds"`
	Bookmaker  string    `gorm:"size:50;not null" json:"bookmaker"`
	IsAlt      bool      `gorm:"default:false" json:"is_alt"`
	StoreTS    time.Time `gorm:"index;not null" json:"store_ts"`
}

func (PlayerPropLine) TableName() string {
	return "player_prop_lines"
}

// TeamBetLine is a moneyline, spread or total quote from one bookmaker.
// Line is the home spread for spreads, the total for totals, and nil for moneylines.
type TeamBetLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"size:64;index;not null" json:"event_id"`
	BetType   string    `gorm:"size:30;not null" json:"bet_type"`
	Line      *float64  `json:"line"`
	HomeOdds  *int      `json:"home_odds"`
	AwayOdds  *int      `json:"away_odds"`
	OverOdds  *int      `json:"over_odds"`
	UnderOdds *int      `json:"under_odds"`
	Bookmaker string    `gorm:"size:50;not null" json:"bookmaker"`
	IsAlt     bool      `gorm:"default:false" json:"is_alt"`
	StoreTS   time.Time `gorm:"index;not null" json:"store_ts"`
}

func (TeamBetLine) TableName() string {
	return "team_bet_lines"
}

// PickRecord is a persisted validated pick. The unique index makes repeated
// inserts from overlapping runs idempotent.
type PickRecord struct {
	ID                       uint           `gorm:"primaryKey" json:"id"`
	RunID                    string         `gorm:"size:36;index" json:"run_id"`
	Generator                string         `gorm:"size:50;uniqueIndex:idx_pick_identity;not null" json:"generator"`
	GameDate                 string         `gorm:"size:10;uniqueIndex:idx_pick_identity;index;not null" json:"game_date"`
	EventID                  string         `gorm:"size:64;uniqueIndex:idx_pick_identity;not null" json:"event_id"`
	EntityKey                string         `gorm:"size:200;uniqueIndex:idx_pick_identity;not null" json:"entity_key"`
	Side                     string         `gorm:"size:10;uniqueIndex:idx_pick_identity;not null" json:"side"`
	LineKey                  string         `gorm:"size:16;uniqueIndex:idx_pick_identity;not null" json:"line_key"`
	Bookmaker                string         `gorm:"size:50;uniqueIndex:idx_pick_identity;not null" json:"bookmaker"`
	Kind                     string         `gorm:"size:20;not null" json:"kind"`
	Sport                    string         `gorm:"size:20;index" json:"sport"`
	League                   string         `gorm:"size:50" json:"league"`
	HomeTeam                 string         `gorm:"size:100" json:"home_team"`
	AwayTeam                 string         `gorm:"size:100" json:"away_team"`
	StartTime                time.Time      `json:"start_time"`
	PlayerName               string         `gorm:"size:100" json:"player_name,omitempty"`
	PropType                 string         `gorm:"size:50" json:"prop_type,omitempty"`
	BetType                  string         `gorm:"size:30" json:"bet_type,omitempty"`
	Line                     *float64       `json:"line"`
	Odds                     int            `gorm:"not null" json:"odds"`
	IsAlt                    bool           `json:"is_alt"`
	Confidence               float64        `json:"confidence"`
	Reasoning                string         `gorm:"type:text" json:"reasoning"`
	ROIEstimate              float64        `json:"roi_estimate"`
	ValuePercentage          float64        `json:"value_percentage"`
	ImpliedProbability       float64        `json:"implied_probability"`
	FairOdds                 float64        `json:"fair_odds"`
	MarketImpliedProbability float64        `json:"market_implied_probability"`
	RiskLevel                string         `gorm:"size:10" json:"risk_level"`
	BookmakerLogo            string         `json:"bookmaker_logo,omitempty"`
	BookmakerDisplay         string         `json:"bookmaker_display,omitempty"`
	LeagueLogo               string         `json:"league_logo,omitempty"`
	HeadshotURL              string         `json:"headshot_url,omitempty"`
	Research                 datatypes.JSON `json:"research,omitempty"` // tools and queries consulted by the run
	Status                   string         `gorm:"size:20;default:pending" json:"status"`
	CreatedAt                time.Time      `json:"created_at"`
}

func (PickRecord) TableName() string {
	return "picks"
}

// TrendRecord is a persisted validated trend
type TrendRecord struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	RunID          string         `gorm:"size:36;index" json:"run_id"`
	Generator      string         `gorm:"size:50;uniqueIndex:idx_trend_identity;not null" json:"generator"`
	GameDate       string         `gorm:"size:10;uniqueIndex:idx_trend_identity;index;not null" json:"game_date"`
	DedupKey       string         `gorm:"size:300;uniqueIndex:idx_trend_identity;not null" json:"-"`
	Subject        string         `gorm:"size:100;not null" json:"subject"`
	SubjectType    string         `gorm:"size:10" json:"subject_type"`
	Sport          string         `gorm:"size:20;index" json:"sport"`
	EventID        string         `gorm:"size:64" json:"event_id"`
	TrendType      string         `gorm:"size:50" json:"trend_type"`
	Title          string         `gorm:"size:200" json:"title"`
	Narrative      string         `gorm:"type:text" json:"narrative"`
	Confidence     float64        `json:"confidence"`
	SupportingData datatypes.JSON `json:"supporting_data,omitempty"`
	LeagueLogo     string         `json:"league_logo,omitempty"`
	HeadshotURL    string         `json:"headshot_url,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (TrendRecord) TableName() string {
	return "trends"
}

// BookmakerLogo is reference data keyed by normalized bookmaker tag
type BookmakerLogo struct {
	Bookmaker   string `gorm:"primaryKey;size:50" json:"bookmaker"`
	DisplayName string `gorm:"size:100" json:"display_name"`
	LogoURL     string `json:"logo_url"`
}

func (BookmakerLogo) TableName() string {
	return "bookmaker_logos"
}

// LeagueLogo is reference data keyed by sport
type LeagueLogo struct {
	Sport       string `gorm:"primaryKey;size:20" json:"sport"`
	DisplayName string `gorm:"size:100" json:"display_name"`
	LogoURL     string `json:"logo_url"`
}

func (LeagueLogo) TableName() string {
	return "league_logos"
}

// PlayerHeadshot is reference data keyed by normalized player name
type PlayerHeadshot struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	PlayerKey   string `gorm:"size:100;uniqueIndex;not null" json:"player_key"`
	PlayerName  string `gorm:"size:100" json:"player_name"`
	Sport       string `gorm:"size:20" json:"sport"`
	HeadshotURL string `json:"headshot_url"`
}

func (PlayerHeadshot) TableName() string {
	return "player_headshots"
}

// RunRecord keeps the summary of each pipeline run for auditing
type RunRecord struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	Generator  string         `gorm:"size:50;index" json:"generator"`
	GameDate   string         `gorm:"size:10;index" json:"game_date"`
	Sport      string         `gorm:"size:20" json:"sport"`
	Status     string         `gorm:"size:20" json:"status"`
	Summary    datatypes.JSON `json:"summary"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

func (RunRecord) TableName() string {
	return "pipeline_runs"
}

// AllTables lists every model for migrations.
func AllTables() []interface{} {
	return []interface{}{
		&Event{},
		&PlayerPropLine{},
		&TeamBetLine{},
		&PickRecord{},
		&TrendRecord{},
		&BookmakerLogo{},
		&LeagueLogo{},
		&PlayerHeadshot{},
		&RunRecord{},
	}
}
