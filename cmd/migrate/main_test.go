package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/database"
)

func TestMigrateSeedDrop(t *testing.T) {
	db, err := database.NewInMemory()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, runMigrations(db))
	// idempotent
	require.NoError(t, runMigrations(db))
	for _, table := range models.AllTables() {
		assert.True(t, db.Migrator().HasTable(table), "%T", table)
	}

	require.NoError(t, seedData(db))
	require.NoError(t, seedData(db))

	var books int64
	require.NoError(t, db.Model(&models.BookmakerLogo{}).Count(&books).Error)
	assert.Equal(t, int64(7), books)

	var shot models.PlayerHeadshot
	require.NoError(t, db.First(&shot, "player_key = ?", "shai gilgeous alexander").Error)
	assert.Equal(t, "https://assets.pick-research.dev/headshots/shai-gilgeous-alexander.png", shot.HeadshotURL)

	var shots int64
	require.NoError(t, db.Model(&models.PlayerHeadshot{}).Count(&shots).Error)
	assert.Equal(t, int64(10), shots)

	require.NoError(t, dropTables(db))
	for _, table := range models.AllTables() {
		assert.False(t, db.Migrator().HasTable(table), "%T", table)
	}
}
