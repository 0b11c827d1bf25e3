package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/llm"
	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/internal/tools"
	"github.com/stitts-dev/pick-research/pkg/config"
)

var tipoff = time.Date(2025, 1, 15, 0, 30, 0, 0, time.UTC)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func testEvents() []models.Event {
	return []models.Event{
		{ID: "evt1", Sport: "NBA", League: "NBA", HomeTeam: "Boston Celtics", AwayTeam: "New York Knicks", StartTime: tipoff, Status: "scheduled"},
		{ID: "evt2", Sport: "NBA", League: "NBA", HomeTeam: "Denver Nuggets", AwayTeam: "Phoenix Suns", StartTime: tipoff.Add(2 * time.Hour), Status: "scheduled"},
	}
}

func prop(eventID, player, propType string, line float64, over, under int, book string, alt bool) models.CandidateEntity {
	ev := eventByID(eventID)
	odds := map[string]int{}
	if over != 0 {
		odds[models.SideOver] = over
	}
	if under != 0 {
		odds[models.SideUnder] = under
	}
	return models.CandidateEntity{
		EventID: eventID, Kind: models.KindPlayerProp, Sport: ev.Sport, League: ev.League,
		HomeTeam: ev.HomeTeam, AwayTeam: ev.AwayTeam, StartTime: ev.StartTime,
		PlayerName: player, PropType: propType, Line: floatPtr(line),
		Odds: odds, Bookmaker: book, IsAlt: alt,
	}
}

func teamBet(eventID, betType string, line *float64, odds map[string]int, book string) models.CandidateEntity {
	ev := eventByID(eventID)
	return models.CandidateEntity{
		EventID: eventID, Kind: models.KindTeamBet, Sport: ev.Sport, League: ev.League,
		HomeTeam: ev.HomeTeam, AwayTeam: ev.AwayTeam, StartTime: ev.StartTime,
		BetType: betType, Line: line, Odds: odds, Bookmaker: book,
	}
}

func eventByID(id string) models.Event {
	for _, e := range testEvents() {
		if e.ID == id {
			return e
		}
	}
	panic("unknown test event " + id)
}

// testSnapshot is a two-game slate with props on several books and the three
// team markets on the first game.
func testSnapshot() *catalog.Snapshot {
	return catalog.NewSnapshot(testEvents(), []models.CandidateEntity{
		prop("evt1", "Jayson Tatum", "points", 27.5, -115, -105, "draftkings", false),
		prop("evt1", "Jayson Tatum", "points", 27.5, -110, -110, "fanduel", false),
		prop("evt1", "Jayson Tatum", "points", 30.5, 180, 0, "draftkings", true),
		prop("evt1", "Jalen Brunson", "assists", 6.5, 120, -150, "draftkings", false),
		teamBet("evt1", "moneyline", nil, map[string]int{models.SideHome: -160, models.SideAway: 140}, "draftkings"),
		teamBet("evt1", "spread", floatPtr(-3.5), map[string]int{models.SideHome: -110, models.SideAway: -110}, "draftkings"),
		teamBet("evt1", "total", floatPtr(220.5), map[string]int{models.SideOver: -108, models.SideUnder: -112}, "draftkings"),
		prop("evt2", "Nikola Jokic", "rebounds", 12.5, -120, 100, "fanduel", false),
		prop("evt2", "Kevin Durant", "points", 26.5, 105, -125, "fanduel", false),
	})
}

func testConfig() *config.Config {
	return &config.Config{
		ToolConcurrency:  3,
		ResearchCeiling:  5 * time.Second,
		PlannerSampleCap: 200,
		SynthesisRowCap:  500,
		StatsQueryTarget: 4,
		WebQueryTarget:   2,
		Timezone:         "America/New_York",
	}
}

func testGenerator(output string) config.GeneratorConfig {
	gens := config.DefaultGenerators()
	if output == config.OutputTrends {
		return gens["trends"]
	}
	g := gens["props"]
	g.EntityKinds = []string{"player_prop", "team_bet"}
	return g
}

// fakeCompleter returns scripted completions in order; the last one repeats.
type fakeCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ llm.CompletionOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	var err error
	if i < len(f.errs) {
		err = f.errs[i]
	}
	if err != nil {
		return "", err
	}
	if len(f.responses) == 0 {
		return "", nil
	}
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	return f.responses[i], nil
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// fakeGateway answers through per-tool functions and tracks concurrency.
type fakeGateway struct {
	stats func(ctx context.Context, text, sport string) (string, error)
	web   func(ctx context.Context, text string) ([]models.Snippet, error)

	calls    int32
	inFlight int32
	peak     int32
}

func (g *fakeGateway) enter() func() {
	atomic.AddInt32(&g.calls, 1)
	n := atomic.AddInt32(&g.inFlight, 1)
	for {
		p := atomic.LoadInt32(&g.peak)
		if n <= p || atomic.CompareAndSwapInt32(&g.peak, p, n) {
			break
		}
	}
	return func() { atomic.AddInt32(&g.inFlight, -1) }
}

func (g *fakeGateway) QueryStats(ctx context.Context, text, sport string) (string, error) {
	defer g.enter()()
	if g.stats == nil {
		return "stats for " + text, nil
	}
	return g.stats(ctx, text, sport)
}

func (g *fakeGateway) QueryWeb(ctx context.Context, text string) ([]models.Snippet, error) {
	defer g.enter()()
	if g.web == nil {
		return []models.Snippet{{Title: "News", Snippet: "news for " + text, URL: "https://example.com"}}, nil
	}
	return g.web(ctx, text)
}

func statsQueries(n int) []models.ResearchQuery {
	out := make([]models.ResearchQuery, n)
	for i := range out {
		out[i] = models.ResearchQuery{Text: fmt.Sprintf("query %d", i), Tool: models.ToolStats, Sport: "NBA"}
	}
	return out
}

func unavailable(tool models.ToolKind) error {
	return &tools.ToolError{Kind: tools.KindUnavailable, Tool: tool, Err: fmt.Errorf("connection refused")}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
