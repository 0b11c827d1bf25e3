package persistence

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/database"
	"github.com/stitts-dev/pick-research/pkg/logger"
)

func newTestGateway(t *testing.T) (*Gateway, *database.DB) {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.AllTables()...))
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Create(&models.BookmakerLogo{Bookmaker: "fanduel", DisplayName: "FanDuel", LogoURL: "https://logos/fanduel.png"}).Error)
	require.NoError(t, db.Create(&models.LeagueLogo{Sport: "NBA", DisplayName: "NBA", LogoURL: "https://logos/nba.png"}).Error)
	require.NoError(t, db.Create(&models.PlayerHeadshot{PlayerKey: models.NormalizeName("Nikola Jokic"), PlayerName: "Nikola Jokic", Sport: "NBA", HeadshotURL: "https://headshots/jokic.png"}).Error)

	g := NewGateway(db.DB, logger.Discard())
	g.backoff = time.Millisecond
	return g, db
}

func testPick(runID, book string, confidence float64) models.ValidatedPick {
	line := 12.5
	return models.ValidatedPick{
		RunID:      runID,
		Generator:  "props",
		GameDate:   "2025-01-14",
		EventID:    "evt2",
		Kind:       models.KindPlayerProp,
		Sport:      "nba",
		HomeTeam:   "Denver Nuggets",
		AwayTeam:   "Utah Jazz",
		StartTime:  time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC),
		PlayerName: "Nikola Jokic",
		PropType:   "rebounds",
		Line:       &line,
		Side:       models.SideOver,
		Odds:       -120,
		Bookmaker:  book,
		Confidence: confidence,
		Reasoning:  "13.4 boards per game",
		RiskLevel:  models.RiskMedium,
	}
}

func TestGateway_SavePicks(t *testing.T) {
	g, db := newTestGateway(t)
	ctx := context.Background()

	research := []Provenance{{Tool: models.ToolStats, Query: "jokic rebounds last 10", Weight: 1.0}}
	picks := []models.ValidatedPick{testPick("run-1", "fanduel", 71), testPick("run-1", "betmgm", 64)}

	result, err := g.SavePicks(ctx, picks, research)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Inserted: 2}, result)
	assert.Equal(t, models.PickMetadata{
		BookmakerLogo:    "https://logos/fanduel.png",
		BookmakerDisplay: "FanDuel",
		LeagueLogo:       "https://logos/nba.png",
		HeadshotURL:      "https://headshots/jokic.png",
	}, picks[0].Metadata)

	// an overlapping run writing the same picks adds nothing
	result, err = g.SavePicks(ctx, []models.ValidatedPick{testPick("run-2", "fanduel", 75)}, nil)
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Skipped: 1}, result)

	var count int64
	require.NoError(t, db.Model(&models.PickRecord{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	stored, err := g.ListPicks(ctx, PickQuery{Date: "2025-01-14", Sport: "NBA"})
	require.NoError(t, err)
	require.Len(t, stored, 2)

	first := stored[0]
	assert.Equal(t, "fanduel", first.Bookmaker)
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, 71.0, first.Confidence)
	assert.Equal(t, "FanDuel", first.BookmakerDisplay)
	assert.Equal(t, "https://logos/fanduel.png", first.BookmakerLogo)
	assert.Equal(t, "https://logos/nba.png", first.LeagueLogo)
	assert.Equal(t, "https://headshots/jokic.png", first.HeadshotURL)

	var prov []Provenance
	require.NoError(t, json.Unmarshal(first.Research, &prov))
	assert.Equal(t, research, prov)

	// missing reference data leaves the fields empty
	assert.Empty(t, stored[1].BookmakerLogo)
	assert.Equal(t, "https://logos/nba.png", stored[1].LeagueLogo)
}

func TestGateway_SaveTrends(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	trend := models.ValidatedTrend{
		RunID:          "run-1",
		Generator:      "trends",
		GameDate:       "2025-01-14",
		Subject:        "Nikola Jokic",
		SubjectType:    "player",
		Sport:          "nba",
		EventID:        "evt2",
		Title:          "Triple-double streak",
		Narrative:      "Five straight",
		Confidence:     68,
		SupportingData: json.RawMessage(`{"games":5}`),
	}

	trends := []models.ValidatedTrend{trend}
	result, err := g.SaveTrends(ctx, trends)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, "https://headshots/jokic.png", trends[0].Metadata.HeadshotURL)

	// title casing does not make a new trend
	again := trend
	again.RunID = "run-2"
	again.Title = "TRIPLE-DOUBLE STREAK"
	result, err = g.SaveTrends(ctx, []models.ValidatedTrend{again})
	require.NoError(t, err)
	assert.Equal(t, SaveResult{Skipped: 1}, result)

	stored, err := g.ListTrends(ctx, PickQuery{Generator: "trends"})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "https://headshots/jokic.png", stored[0].HeadshotURL)
	assert.JSONEq(t, `{"games":5}`, string(stored[0].SupportingData))
}

func TestGateway_EmptySaveIsNoop(t *testing.T) {
	g, _ := newTestGateway(t)

	result, err := g.SavePicks(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Zero(t, result)

	result, err = g.SaveTrends(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result)
}

func TestGateway_StoreFailureAfterRetries(t *testing.T) {
	g, db := newTestGateway(t)
	require.NoError(t, db.Close())

	_, err := g.SavePicks(context.Background(), []models.ValidatedPick{testPick("run-1", "fanduel", 71)}, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save picks")
}

func TestGateway_Runs(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	run := &models.RunRecord{ID: "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d", Generator: "props", GameDate: "2025-01-14", Status: "running", StartedAt: time.Now().UTC()}
	require.NoError(t, g.SaveRun(ctx, run))

	run.Status = "completed"
	run.FinishedAt = time.Now().UTC()
	require.NoError(t, g.SaveRun(ctx, run))

	got, err := g.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", got.Status)

	_, err = g.GetRun(ctx, "missing")
	assert.Error(t, err)
}
