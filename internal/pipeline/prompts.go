package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stitts-dev/pick-research/internal/models"
	"github.com/stitts-dev/pick-research/pkg/config"
)

const plannerSystemPrompt = `You are a sports betting research planner. You decide which statistics and news lookups give the most edge for today's slate. Respond with a single JSON object and nothing else.`

const defaultPlannerTemplate = `Today is {{date}}. Below are {{sample_count}} candidate markets sampled from {{event_count}} scheduled games ({{sports}}).
Each row is: ref | matchup | market | line | odds by side | bookmaker.

{{candidates}}

Choose the markets most worth researching for about {{target_count}} {{output}}.
Write {{stats_target}} statistics queries (natural-language questions for a sports statistics service, e.g. recent averages, hit rates versus a line, head-to-head results) and {{web_target}} web search queries (injuries, lineup news, weather, motivation).

Return exactly:
{"stats_queries":[{"query":"...","entity_refs":["<ref>"],"purpose":"..."}],"web_queries":[{"query":"...","entity_refs":["<ref>"],"purpose":"..."}]}

Copy refs verbatim from the rows above. Keep every query specific to one player or one game.`

const picksSystemPrompt = `You are a disciplined sports betting analyst. You only recommend bets that appear in the provided candidate list, copying identifiers exactly. Respond with a JSON array and nothing else.`

const defaultPicksTemplate = `Date: {{date}}. Generate up to {{target_count}} picks.

CANDIDATE MARKETS ({{row_count}} rows). Only these exist; never invent a player, prop type, bet type, line, odds or bookmaker:
{{candidates}}

RESEARCH:
{{research}}

RULES:
- Copy event_id, player_name, prop_type, bet_type, line, odds and bookmaker exactly as listed.
- side is one of: over, under, home, away.
- odds is a signed integer American price between -300 and +300.
- confidence is an integer from 0 to 100.
- roi_estimate, value_percentage and implied_probability are numbers (percent).
- Returning fewer than {{target_count}} picks is better than fabricating one.
{{policy}}

Respond with a JSON array of objects with exactly these fields:
[{"event_id":"","kind":"player_prop|team_bet","player_name":"","prop_type":"","bet_type":"","line":0,"side":"","odds":0,"bookmaker":"","confidence":0,"reasoning":"","roi_estimate":0,"value_percentage":0,"implied_probability":0,"fair_odds":0,"risk_level":"Low|Medium|High"}]`

const trendsSystemPrompt = `You are a sports data analyst who writes short, factual trend insights grounded in the research provided. Respond with a JSON array and nothing else.`

const defaultTrendsTemplate = `Date: {{date}}. Write up to {{target_count}} trend insights about teams and players playing today.

PLAYING TODAY ({{row_count}} markets):
{{candidates}}

RESEARCH:
{{research}}

RULES:
- subject must be a team or player name exactly as listed above; subject_type is "team" or "player".
- Base every trend on the research; do not invent statistics.
- confidence is an integer from 0 to 100.
- Returning fewer than {{target_count}} trends is better than fabricating one.
{{policy}}

Respond with a JSON array of objects with exactly these fields:
[{"subject":"","subject_type":"team|player","event_id":"","trend_type":"","title":"","narrative":"","confidence":0,"supporting_data":{}}]`

// noResearchMarker replaces the research section when every tool call failed.
const noResearchMarker = "NO RESEARCH AVAILABLE: every research query failed or timed out. Rely only on the candidate market data above and lower confidence accordingly."

// PromptBuilder renders generator prompts from {{var}} templates
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// Planner returns the system prompt and user prompt for research planning.
func (pb *PromptBuilder) Planner(gen config.GeneratorConfig, vars map[string]string) (string, string) {
	tmpl := gen.PlannerTemplate
	if tmpl == "" {
		tmpl = defaultPlannerTemplate
	}
	return plannerSystemPrompt, render(tmpl, vars)
}

// Synthesis returns the system prompt and user prompt for the generator's output schema.
func (pb *PromptBuilder) Synthesis(gen config.GeneratorConfig, vars map[string]string) (string, string) {
	system, tmpl := picksSystemPrompt, defaultPicksTemplate
	if gen.Output == config.OutputTrends {
		system, tmpl = trendsSystemPrompt, defaultTrendsTemplate
	}
	if gen.SynthesisTemplate != "" {
		tmpl = gen.SynthesisTemplate
	}
	if gen.Policy != "" {
		vars["policy"] = "- " + gen.Policy
	} else {
		vars["policy"] = ""
	}
	return system, render(tmpl, vars)
}

func render(tmpl string, vars map[string]string) string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		tmpl = strings.ReplaceAll(tmpl, "{{"+k+"}}", vars[k])
	}
	return tmpl
}

// entityRef is the identifier the LLM copies back in entity_refs.
func entityRef(e models.CandidateEntity) string {
	return e.EventID + "#" + e.EntityKey()
}

// formatPlannerRow renders the minimal fields the planner needs.
func formatPlannerRow(e models.CandidateEntity) string {
	return fmt.Sprintf("%s | %s | %s | %s | %s | %s",
		entityRef(e), e.Matchup(), marketName(e), formatLine(e.Line), formatOdds(e), e.Bookmaker)
}

// formatCandidateRow renders every identifying field the synthesizer must copy.
func formatCandidateRow(e models.CandidateEntity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "event_id=%s | %s | %s", e.EventID, e.Sport, e.Matchup())
	if e.Kind == models.KindPlayerProp {
		fmt.Fprintf(&b, " | kind=player_prop | player_name=%s | prop_type=%s", e.PlayerName, e.PropType)
	} else {
		fmt.Fprintf(&b, " | kind=team_bet | bet_type=%s", e.BetType)
	}
	fmt.Fprintf(&b, " | line=%s | %s | bookmaker=%s", formatLine(e.Line), formatOdds(e), e.Bookmaker)
	if e.IsAlt {
		b.WriteString(" | alt")
	}
	return b.String()
}

func marketName(e models.CandidateEntity) string {
	if e.Kind == models.KindPlayerProp {
		return e.PlayerName + " " + e.PropType
	}
	return e.BetType
}

func formatLine(line *float64) string {
	if line == nil {
		return "null"
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", *line), "0"), ".")
}

func formatOdds(e models.CandidateEntity) string {
	parts := make([]string, 0, len(e.Odds))
	for _, side := range e.Sides() {
		parts = append(parts, fmt.Sprintf("%s %+d", side, e.Odds[side]))
	}
	return strings.Join(parts, " / ")
}

// formatResearch renders the bundle tagged by source, or the no-research marker.
func formatResearch(bundle *models.ResearchBundle) string {
	if bundle.Empty() {
		return noResearchMarker
	}
	var b strings.Builder
	for _, r := range bundle.Results {
		tag := "STATS"
		if r.Tool == models.ToolWeb {
			tag = "WEB"
		}
		fmt.Fprintf(&b, "[%s weight=%.1f] Q: %s\nA: %s\n\n", tag, r.Weight, r.Query, r.Answer)
	}
	return strings.TrimSpace(b.String())
}
