package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/logger"
)

var testRun = RunInfo{RunID: "run-1", Generator: "props", GameDate: "2025-01-14"}

func tatumOver() models.CandidatePick {
	return models.CandidatePick{
		EventID:     "evt1",
		PlayerName:  "Jayson Tatum",
		PropType:    "points",
		Line:        27.5,
		Side:        "over",
		Odds:        -115.0,
		Bookmaker:   "draftkings",
		Confidence:  72.0,
		Reasoning:   "Averaging 30 over last 10",
		ROIEstimate: "8.5%",
	}
}

func TestValidator_ExactMatch(t *testing.T) {
	v := NewValidator(logger.Discard())

	picks, rejected := v.Validate(testSnapshot(), []models.CandidatePick{tatumOver()}, testRun)
	require.Empty(t, rejected)
	require.Len(t, picks, 1)

	want := models.ValidatedPick{
		RunID:                    "run-1",
		Generator:                "props",
		GameDate:                 "2025-01-14",
		EventID:                  "evt1",
		Kind:                     models.KindPlayerProp,
		Sport:                    "NBA",
		League:                   "NBA",
		HomeTeam:                 "Boston Celtics",
		AwayTeam:                 "New York Knicks",
		StartTime:                tipoff,
		PlayerName:               "Jayson Tatum",
		PropType:                 "points",
		Line:                     floatPtr(27.5),
		Side:                     models.SideOver,
		Odds:                     -115,
		Bookmaker:                "draftkings",
		Confidence:               72,
		Reasoning:                "Averaging 30 over last 10",
		ROIEstimate:              8.5,
		ValuePercentage:          0,
		ImpliedProbability:       50,
		FairOdds:                 100,
		MarketImpliedProbability: 53.49,
		RiskLevel:                models.RiskLow,
		MatchType:                MatchExact,
	}
	if diff := cmp.Diff(want, picks[0]); diff != "" {
		t.Errorf("validated pick mismatch (-want +got):\n%s", diff)
	}
}

func TestValidator_Evaluate(t *testing.T) {
	lebron := tatumOver()
	lebron.PlayerName = "LeBron James"

	longshot := tatumOver()
	longshot.Odds = 450.0

	relaxed := tatumOver()
	relaxed.Side = "U"
	relaxed.Odds = "-108"
	relaxed.Bookmaker = "caesars"

	moneyline := models.CandidatePick{
		EventID: "evt1", BetType: "moneyline", Team: "Boston Celtics",
		Side: "Boston Celtics", Odds: -160.0, Bookmaker: "draftkings", Confidence: 65.0,
	}

	awaySpread := models.CandidatePick{
		EventID: "evt1", BetType: "spread", Recommendation: "Knicks",
		Line: "+3.5", Odds: -110.0, Bookmaker: "draftkings", Confidence: 0.61,
	}

	altUnder := tatumOver()
	altUnder.Line = 30.5
	altUnder.Side = "under"
	altUnder.Odds = nil

	badSide := models.CandidatePick{
		EventID: "evt1", BetType: "total", Line: 220.5, Side: "maybe", Odds: -108.0, Bookmaker: "draftkings",
	}

	noEvent := tatumOver()
	noEvent.EventID = ""

	unknownEvent := tatumOver()
	unknownEvent.EventID = "evt999"

	input := []models.CandidatePick{
		tatumOver(),  // 0 exact
		lebron,       // 1 hallucinated player
		longshot,     // 2 claimed odds outside window
		tatumOver(),  // 3 duplicate of 0
		relaxed,      // 4 repaired to the closest book
		moneyline,    // 5 team name as side
		awaySpread,   // 6 away spread quoted positive
		altUnder,     // 7 side not offered
		badSide,      // 8 unreadable side
		noEvent,      // 9 missing id
		unknownEvent, // 10 event not in catalog
	}

	outcomes := NewValidator(logger.Discard()).Evaluate(testSnapshot(), input, testRun)
	require.Len(t, outcomes, len(input))

	expectReject := map[int]models.RejectReason{
		1:  models.RejectEntityNotFound,
		2:  models.RejectOddsOutOfRange,
		3:  models.RejectDuplicate,
		7:  models.RejectSideUnknown,
		8:  models.RejectMalformed,
		9:  models.RejectMalformed,
		10: models.RejectEntityNotFound,
	}
	for i, o := range outcomes {
		if reason, ok := expectReject[i]; ok {
			require.False(t, o.OK(), "index %d should be rejected", i)
			assert.Equal(t, reason, o.Rejection.Reason, "index %d", i)
			assert.Equal(t, i, o.Rejection.Index)
			assert.NotEmpty(t, o.Rejection.Detail)
			continue
		}
		require.True(t, o.OK(), "index %d should be accepted: %+v", i, o.Rejection)
	}

	t.Run("relaxed repair adopts the closest catalog price", func(t *testing.T) {
		p := outcomes[4].Pick
		assert.Equal(t, MatchRelaxed, p.MatchType)
		assert.Equal(t, models.SideUnder, p.Side)
		assert.Equal(t, "fanduel", p.Bookmaker)
		assert.Equal(t, -110, p.Odds)
	})

	t.Run("team name maps to home side", func(t *testing.T) {
		p := outcomes[5].Pick
		assert.Equal(t, models.SideHome, p.Side)
		assert.Nil(t, p.Line)
		assert.Equal(t, -160, p.Odds)
		assert.Equal(t, MatchExact, p.MatchType)
		assert.Equal(t, models.RiskHigh, p.RiskLevel)
	})

	t.Run("away spread matches the home line", func(t *testing.T) {
		p := outcomes[6].Pick
		assert.Equal(t, models.SideAway, p.Side)
		require.NotNil(t, p.Line)
		assert.Equal(t, -3.5, *p.Line)
		assert.Equal(t, 61.0, p.Confidence)
		assert.Equal(t, models.RiskMedium, p.RiskLevel)
	})
}

func TestValidator_RelaxedMatchSkipsOutOfWindowSides(t *testing.T) {
	snap := catalog.NewSnapshot(testEvents(), []models.CandidateEntity{
		prop("evt1", "Jayson Tatum", "points", 30.5, -350, 260, "draftkings", true),
		prop("evt1", "Jayson Tatum", "points", 30.5, -125, 105, "fanduel", true),
		prop("evt1", "Jalen Brunson", "assists", 8.5, -400, 290, "draftkings", true),
	})

	claimed := tatumOver()
	claimed.Line = 30.5
	claimed.Odds = -120.0

	brunson := models.CandidatePick{
		EventID: "evt1", PlayerName: "Jalen Brunson", PropType: "assists",
		Line: 8.5, Side: "over", Odds: -150.0, Bookmaker: "draftkings", Confidence: 66.0,
	}

	outcomes := NewValidator(logger.Discard()).Evaluate(snap, []models.CandidatePick{claimed, brunson}, testRun)
	require.Len(t, outcomes, 2)

	// the same-book quote is out of window, so the in-window book is used
	require.True(t, outcomes[0].OK(), "%+v", outcomes[0].Rejection)
	assert.Equal(t, "fanduel", outcomes[0].Pick.Bookmaker)
	assert.Equal(t, -125, outcomes[0].Pick.Odds)
	assert.Equal(t, MatchRelaxed, outcomes[0].Pick.MatchType)

	// every quote for the side is out of window
	require.False(t, outcomes[1].OK())
	assert.Equal(t, models.RejectOddsOutOfRange, outcomes[1].Rejection.Reason)
}

func TestValidator_AcceptedPicksAreGroundedAndUnique(t *testing.T) {
	snap := testSnapshot()
	var input []models.CandidatePick
	for _, e := range snap.Entities {
		for _, side := range e.Sides() {
			input = append(input, models.CandidatePick{
				EventID:    e.EventID,
				PlayerName: e.PlayerName,
				PropType:   e.PropType,
				BetType:    e.BetType,
				Line:       lineValue(e.Line),
				Side:       side,
				Odds:       float64(e.Odds[side]),
				Bookmaker:  e.Bookmaker,
				Confidence: 60.0,
			})
		}
	}
	// every pick twice
	input = append(input, input...)

	picks, rejected := NewValidator(logger.Discard()).Validate(snap, input, testRun)
	require.NotEmpty(t, picks)

	seen := make(map[string]bool)
	for _, p := range picks {
		assert.True(t, models.OddsInWindow(p.Odds), "odds %d outside window", p.Odds)

		found := false
		for _, e := range snap.Market(p.EventID, p.EntityKey()) {
			if models.LinesEqual(e.Line, p.Line) && e.Bookmaker == p.Bookmaker && e.Odds[p.Side] == p.Odds {
				found = true
			}
		}
		assert.True(t, found, "pick %s not grounded in catalog", p.DedupKey())

		assert.False(t, seen[p.DedupKey()], "duplicate pick %s", p.DedupKey())
		seen[p.DedupKey()] = true
	}
	assert.Len(t, rejected, len(input)/2)
	for _, r := range rejected {
		assert.Equal(t, models.RejectDuplicate, r.Reason)
	}
}

func lineValue(line *float64) interface{} {
	if line == nil {
		return nil
	}
	return *line
}

func TestDeriveRiskLevel(t *testing.T) {
	tests := []struct {
		confidence float64
		odds       int
		expected   string
	}{
		{confidence: 75, odds: -120, expected: models.RiskLow},
		{confidence: 70, odds: -110, expected: models.RiskLow},
		{confidence: 70, odds: -105, expected: models.RiskMedium},
		{confidence: 65, odds: 150, expected: models.RiskMedium},
		{confidence: 60, odds: -150, expected: models.RiskMedium},
		{confidence: 60, odds: -155, expected: models.RiskHigh},
		{confidence: 59, odds: 100, expected: models.RiskHigh},
		{confidence: 90, odds: 200, expected: models.RiskHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, DeriveRiskLevel(tt.confidence, tt.odds), "conf=%v odds=%d", tt.confidence, tt.odds)
	}
}

func TestValidator_RiskFromModelWins(t *testing.T) {
	p := tatumOver()
	p.RiskLevel = "HIGH"
	picks, _ := NewValidator(logger.Discard()).Validate(testSnapshot(), []models.CandidatePick{p}, testRun)
	require.Len(t, picks, 1)
	assert.Equal(t, models.RiskHigh, picks[0].RiskLevel)
}

func TestValidator_FairOdds(t *testing.T) {
	p := tatumOver()
	p.ImpliedProbability = "60%"
	picks, _ := NewValidator(logger.Discard()).Validate(testSnapshot(), []models.CandidatePick{p}, testRun)
	require.Len(t, picks, 1)
	assert.Equal(t, 60.0, picks[0].ImpliedProbability)
	assert.Equal(t, -150.0, picks[0].FairOdds)

	p.FairOdds = "+120"
	picks, _ = NewValidator(logger.Discard()).Validate(testSnapshot(), []models.CandidatePick{p}, testRun)
	require.Len(t, picks, 1)
	assert.Equal(t, 120.0, picks[0].FairOdds)
}

func TestValidator_Trends(t *testing.T) {
	input := []models.CandidateTrend{
		{Subject: "jayson tatum", Title: "Scoring surge", Narrative: "30+ in five straight", Confidence: 80.0,
			SupportingData: json.RawMessage(`{"last5":[31,33,30,35,32]}`)},
		{Subject: "New York Knicks", SubjectType: "team", Title: "Road overs", Narrative: "Over hit in 7 of 9 road games", Confidence: "0.7"},
		{Subject: "Michael Jordan", Title: "Legend", Narrative: "Not playing", Confidence: 99.0},
		{Subject: "Jayson Tatum", Title: "scoring surge", Narrative: "dupe", Confidence: 50.0},
		{Subject: "Boston Celtics", Title: "", Narrative: "no title"},
	}

	outcomes := NewValidator(logger.Discard()).ValidateTrends(testSnapshot(), input, testRun)
	require.Len(t, outcomes, len(input))

	require.True(t, outcomes[0].OK())
	assert.Equal(t, "Jayson Tatum", outcomes[0].Trend.Subject)
	assert.Equal(t, "player", outcomes[0].Trend.SubjectType)
	assert.Equal(t, "evt1", outcomes[0].Trend.EventID)
	assert.JSONEq(t, `{"last5":[31,33,30,35,32]}`, string(outcomes[0].Trend.SupportingData))

	require.True(t, outcomes[1].OK())
	assert.Equal(t, "team", outcomes[1].Trend.SubjectType)
	assert.Equal(t, 70.0, outcomes[1].Trend.Confidence)

	assert.Equal(t, models.RejectEntityNotFound, outcomes[2].Rejection.Reason)
	assert.Equal(t, models.RejectDuplicate, outcomes[3].Rejection.Reason)
	assert.Equal(t, models.RejectMalformed, outcomes[4].Rejection.Reason)
}
