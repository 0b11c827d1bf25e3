package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/clause"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/config"
	"github.com/stitts-dev/pick-research/pkg/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate [up|down|seed]")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment(), logrus.StandardLogger())
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	command := os.Args[1]

	switch command {
	case "up":
		if err := runMigrations(db); err != nil {
			logrus.Fatalf("Failed to run migrations: %v", err)
		}
		logrus.Info("Migrations completed successfully")

	case "down":
		if err := dropTables(db); err != nil {
			logrus.Fatalf("Failed to drop tables: %v", err)
		}
		logrus.Info("Tables dropped successfully")

	case "seed":
		if err := seedData(db); err != nil {
			logrus.Fatalf("Failed to seed data: %v", err)
		}
		logrus.Info("Data seeded successfully")

	default:
		log.Fatalf("Unknown command: %s", command)
	}
}

func runMigrations(db *database.DB) error {
	if err := db.AutoMigrate(models.AllTables()...); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	// Read paths used by the catalog and the output endpoints
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_events_start_sport ON events(start_time, sport)",
		"CREATE INDEX IF NOT EXISTS idx_prop_lines_event ON player_prop_lines(event_id, store_ts DESC)",
		"CREATE INDEX IF NOT EXISTS idx_team_lines_event ON team_bet_lines(event_id, store_ts DESC)",
		"CREATE INDEX IF NOT EXISTS idx_picks_date_confidence ON picks(game_date, confidence DESC)",
		"CREATE INDEX IF NOT EXISTS idx_trends_date_confidence ON trends(game_date, confidence DESC)",
	}

	for _, index := range indexes {
		if err := db.Exec(index).Error; err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

func dropTables(db *database.DB) error {
	tables := models.AllTables()
	// Drop in reverse registration order
	for i := len(tables) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(tables[i]); err != nil {
			return fmt.Errorf("failed to drop table %T: %w", tables[i], err)
		}
	}
	return nil
}

func seedData(db *database.DB) error {
	bookmakers := []models.BookmakerLogo{
		{Bookmaker: "draftkings", DisplayName: "DraftKings", LogoURL: "https://assets.pick-research.dev/books/draftkings.png"},
		{Bookmaker: "fanduel", DisplayName: "FanDuel", LogoURL: "https://assets.pick-research.dev/books/fanduel.png"},
		{Bookmaker: "betmgm", DisplayName: "BetMGM", LogoURL: "https://assets.pick-research.dev/books/betmgm.png"},
		{Bookmaker: "caesars", DisplayName: "Caesars", LogoURL: "https://assets.pick-research.dev/books/caesars.png"},
		{Bookmaker: "espnbet", DisplayName: "ESPN BET", LogoURL: "https://assets.pick-research.dev/books/espnbet.png"},
		{Bookmaker: "betrivers", DisplayName: "BetRivers", LogoURL: "https://assets.pick-research.dev/books/betrivers.png"},
		{Bookmaker: "fanatics", DisplayName: "Fanatics", LogoURL: "https://assets.pick-research.dev/books/fanatics.png"},
	}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&bookmakers).Error; err != nil {
		return fmt.Errorf("failed to seed bookmaker logos: %w", err)
	}

	leagues := []models.LeagueLogo{
		{Sport: "NBA", DisplayName: "NBA", LogoURL: "https://assets.pick-research.dev/leagues/nba.png"},
		{Sport: "NFL", DisplayName: "NFL", LogoURL: "https://assets.pick-research.dev/leagues/nfl.png"},
		{Sport: "MLB", DisplayName: "MLB", LogoURL: "https://assets.pick-research.dev/leagues/mlb.png"},
		{Sport: "NHL", DisplayName: "NHL", LogoURL: "https://assets.pick-research.dev/leagues/nhl.png"},
		{Sport: "NCAAB", DisplayName: "NCAA Basketball", LogoURL: "https://assets.pick-research.dev/leagues/ncaab.png"},
		{Sport: "NCAAF", DisplayName: "NCAA Football", LogoURL: "https://assets.pick-research.dev/leagues/ncaaf.png"},
		{Sport: "WNBA", DisplayName: "WNBA", LogoURL: "https://assets.pick-research.dev/leagues/wnba.png"},
	}
	if err := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&leagues).Error; err != nil {
		return fmt.Errorf("failed to seed league logos: %w", err)
	}

	players := []struct{ name, sport string }{
		{"Jayson Tatum", "NBA"},
		{"Jalen Brunson", "NBA"},
		{"Nikola Jokic", "NBA"},
		{"Kevin Durant", "NBA"},
		{"Luka Doncic", "NBA"},
		{"Giannis Antetokounmpo", "NBA"},
		{"Shai Gilgeous-Alexander", "NBA"},
		{"Patrick Mahomes", "NFL"},
		{"Josh Allen", "NFL"},
		{"Christian McCaffrey", "NFL"},
	}
	headshots := make([]models.PlayerHeadshot, 0, len(players))
	for _, p := range players {
		key := models.NormalizeName(p.name)
		headshots = append(headshots, models.PlayerHeadshot{
			PlayerKey:   key,
			PlayerName:  p.name,
			Sport:       p.sport,
			HeadshotURL: fmt.Sprintf("https://assets.pick-research.dev/headshots/%s.png", slug(key)),
		})
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "player_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"player_name", "sport", "headshot_url"}),
	}).Create(&headshots).Error; err != nil {
		return fmt.Errorf("failed to seed player headshots: %w", err)
	}

	logrus.Infof("Seeded %d bookmakers, %d leagues, %d headshots", len(bookmakers), len(leagues), len(headshots))
	return nil
}

func slug(key string) string {
	out := []byte(key)
	for i, c := range out {
		if c == ' ' {
			out[i] = '-'
		}
	}
	return string(out)
}
