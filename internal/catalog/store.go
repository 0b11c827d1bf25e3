package catalog

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/stitts-dev/pick-research/internal/models"
)

// Store is the read side of the data store used to build a catalog. Line
// rows may come back in any order; the catalog picks the newest store_ts.
type Store interface {
	LoadEvents(ctx context.Context, from, to time.Time, sport string) ([]models.Event, error)
	LoadProps(ctx context.Context, eventIDs []string) ([]models.PlayerPropLine, error)
	LoadTeamBets(ctx context.Context, eventIDs []string) ([]models.TeamBetLine, error)
}

// GormStore reads events and lines through gorm
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// LoadEvents returns scheduled events with from <= start_time < to, both in UTC.
func (s *GormStore) LoadEvents(ctx context.Context, from, to time.Time, sport string) ([]models.Event, error) {
	var events []models.Event
	query := s.db.WithContext(ctx).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).
		Where("status = ?", "scheduled")
	if sport != "" {
		query = query.Where("LOWER(sport) = ?", strings.ToLower(sport))
	}
	if err := query.Order("start_time ASC, id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// LoadProps returns prop lines newest first so callers can keep the first seen row.
func (s *GormStore) LoadProps(ctx context.Context, eventIDs []string) ([]models.PlayerPropLine, error) {
	var rows []models.PlayerPropLine
	if len(eventIDs) == 0 {
		return rows, nil
	}
	err := s.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Order("store_ts DESC, id DESC").
		Find(&rows).Error
	return rows, err
}

// LoadTeamBets returns team lines newest first.
func (s *GormStore) LoadTeamBets(ctx context.Context, eventIDs []string) ([]models.TeamBetLine, error) {
	var rows []models.TeamBetLine
	if len(eventIDs) == 0 {
		return rows, nil
	}
	err := s.db.WithContext(ctx).
		Where("event_id IN ?", eventIDs).
		Order("store_ts DESC, id DESC").
		Find(&rows).Error
	return rows, err
}
