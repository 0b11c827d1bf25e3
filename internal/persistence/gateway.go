package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stitts-dev/pick-research/internal/models"
)

// SaveResult counts what a save actually wrote.
type SaveResult struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"` // already present from an earlier run
}

// Provenance is the research a run consulted, stored with each pick.
type Provenance struct {
	Tool   models.ToolKind `json:"tool"`
	Query  string          `json:"query"`
	Weight float64         `json:"weight"`
}

// ProvenanceFrom lists the bundle's successful queries.
func ProvenanceFrom(bundle *models.ResearchBundle) []Provenance {
	if bundle == nil {
		return nil
	}
	out := make([]Provenance, 0, len(bundle.Results))
	for _, r := range bundle.Results {
		out = append(out, Provenance{Tool: r.Tool, Query: r.Query, Weight: r.Weight})
	}
	return out
}

// Gateway writes validated output to the picks and trends tables.
type Gateway struct {
	db          *gorm.DB
	logger      *logrus.Logger
	maxAttempts int
	backoff     time.Duration
}

func NewGateway(db *gorm.DB, logger *logrus.Logger) *Gateway {
	return &Gateway{
		db:          db,
		logger:      logger,
		maxAttempts: 3,
		backoff:     250 * time.Millisecond,
	}
}

// SavePicks inserts picks with display metadata attached; the metadata is
// also written back into picks. Rows that collide with the pick identity
// index are skipped, so reruns never duplicate.
func (g *Gateway) SavePicks(ctx context.Context, picks []models.ValidatedPick, research []Provenance) (SaveResult, error) {
	var result SaveResult
	if len(picks) == 0 {
		return result, nil
	}

	var researchJSON datatypes.JSON
	if len(research) > 0 {
		raw, err := json.Marshal(research)
		if err != nil {
			return result, fmt.Errorf("failed to marshal research provenance: %w", err)
		}
		researchJSON = raw
	}

	meta := g.loadMetadata(ctx)
	records := make([]models.PickRecord, len(picks))
	for i := range picks {
		picks[i].Metadata = meta.forPick(picks[i])
		records[i] = pickRecord(picks[i], researchJSON)
	}

	err := g.withRetry(ctx, "save_picks", func() error {
		result = SaveResult{}
		return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range records {
				rec := records[i]
				res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					result.Skipped++
				} else {
					result.Inserted++
				}
			}
			return nil
		})
	})
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to save picks: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"run_id":   picks[0].RunID,
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Info("Picks saved")
	return result, nil
}

// SaveTrends inserts trends, skipping any already stored for the same
// generator, date, subject and title. Metadata is written back into trends.
func (g *Gateway) SaveTrends(ctx context.Context, trends []models.ValidatedTrend) (SaveResult, error) {
	var result SaveResult
	if len(trends) == 0 {
		return result, nil
	}

	meta := g.loadMetadata(ctx)
	records := make([]models.TrendRecord, len(trends))
	for i := range trends {
		trends[i].Metadata = meta.forTrend(trends[i])
		records[i] = trendRecord(trends[i])
	}

	err := g.withRetry(ctx, "save_trends", func() error {
		result = SaveResult{}
		return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for i := range records {
				rec := records[i]
				res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					result.Skipped++
				} else {
					result.Inserted++
				}
			}
			return nil
		})
	})
	if err != nil {
		return SaveResult{}, fmt.Errorf("failed to save trends: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"run_id":   trends[0].RunID,
		"inserted": result.Inserted,
		"skipped":  result.Skipped,
	}).Info("Trends saved")
	return result, nil
}

// SaveRun upserts the audit row for a run.
func (g *Gateway) SaveRun(ctx context.Context, run *models.RunRecord) error {
	return g.withRetry(ctx, "save_run", func() error {
		return g.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(run).Error
	})
}

// GetRun loads a run by id; gorm.ErrRecordNotFound when absent.
func (g *Gateway) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	var run models.RunRecord
	if err := g.db.WithContext(ctx).First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// PickQuery filters stored picks
type PickQuery struct {
	Date      string
	Generator string
	Sport     string
	Limit     int
}

func (q PickQuery) apply(db *gorm.DB) *gorm.DB {
	if q.Date != "" {
		db = db.Where("game_date = ?", q.Date)
	}
	if q.Generator != "" {
		db = db.Where("generator = ?", q.Generator)
	}
	if q.Sport != "" {
		db = db.Where("LOWER(sport) = ?", strings.ToLower(q.Sport))
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return db.Limit(limit)
}

// ListPicks returns stored picks, highest confidence first.
func (g *Gateway) ListPicks(ctx context.Context, q PickQuery) ([]models.PickRecord, error) {
	var out []models.PickRecord
	err := q.apply(g.db.WithContext(ctx)).Order("confidence DESC, id ASC").Find(&out).Error
	return out, err
}

// ListTrends returns stored trends, highest confidence first.
func (g *Gateway) ListTrends(ctx context.Context, q PickQuery) ([]models.TrendRecord, error) {
	var out []models.TrendRecord
	err := q.apply(g.db.WithContext(ctx)).Order("confidence DESC, id ASC").Find(&out).Error
	return out, err
}

func (g *Gateway) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == g.maxAttempts {
			break
		}
		g.logger.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"error":     err.Error(),
		}).Warn("Store write failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(g.backoff * time.Duration(attempt)):
		}
	}
	return err
}

func pickRecord(p models.ValidatedPick, research datatypes.JSON) models.PickRecord {
	return models.PickRecord{
		RunID:                    p.RunID,
		Generator:                p.Generator,
		GameDate:                 p.GameDate,
		EventID:                  p.EventID,
		EntityKey:                p.EntityKey(),
		Side:                     p.Side,
		LineKey:                  models.LineKey(p.Line),
		Bookmaker:                p.Bookmaker,
		Kind:                     string(p.Kind),
		Sport:                    p.Sport,
		League:                   p.League,
		HomeTeam:                 p.HomeTeam,
		AwayTeam:                 p.AwayTeam,
		StartTime:                p.StartTime,
		PlayerName:               p.PlayerName,
		PropType:                 p.PropType,
		BetType:                  p.BetType,
		Line:                     p.Line,
		Odds:                     p.Odds,
		IsAlt:                    p.IsAlt,
		Confidence:               p.Confidence,
		Reasoning:                p.Reasoning,
		ROIEstimate:              p.ROIEstimate,
		ValuePercentage:          p.ValuePercentage,
		ImpliedProbability:       p.ImpliedProbability,
		FairOdds:                 p.FairOdds,
		MarketImpliedProbability: p.MarketImpliedProbability,
		RiskLevel:                p.RiskLevel,
		BookmakerLogo:            p.Metadata.BookmakerLogo,
		BookmakerDisplay:         p.Metadata.BookmakerDisplay,
		LeagueLogo:               p.Metadata.LeagueLogo,
		HeadshotURL:              p.Metadata.HeadshotURL,
		Research:                 research,
		Status:                   "pending",
	}
}

func trendRecord(t models.ValidatedTrend) models.TrendRecord {
	rec := models.TrendRecord{
		RunID:       t.RunID,
		Generator:   t.Generator,
		GameDate:    t.GameDate,
		DedupKey:    t.DedupKey(),
		Subject:     t.Subject,
		SubjectType: t.SubjectType,
		Sport:       t.Sport,
		EventID:     t.EventID,
		TrendType:   t.TrendType,
		Title:       t.Title,
		Narrative:   t.Narrative,
		Confidence:  t.Confidence,
		LeagueLogo:  t.Metadata.LeagueLogo,
		HeadshotURL: t.Metadata.HeadshotURL,
	}
	if len(t.SupportingData) > 0 && json.Valid(t.SupportingData) {
		rec.SupportingData = datatypes.JSON(t.SupportingData)
	}
	return rec
}
