package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Output schemas a generator can request from the synthesizer.
const (
	OutputPicks  = "picks"
	OutputTrends = "trends"
)

// GeneratorConfig describes one pick/trend generator. Every generator runs the
// same pipeline; only the candidate filter, prompts and output schema differ.
type GeneratorConfig struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Output      string `yaml:"output" json:"output"`

	// Candidate loading strategy
	EntityKinds     []string `yaml:"entity_kinds" json:"entity_kinds"`
	IncludeAltLines bool     `yaml:"include_alt_lines" json:"include_alt_lines"`

	TargetCount        int     `yaml:"target_count" json:"target_count"`
	Temperature        float64 `yaml:"temperature" json:"temperature"`
	PlannerMaxTokens   int     `yaml:"planner_max_tokens" json:"planner_max_tokens"`
	SynthesisMaxTokens int     `yaml:"synthesis_max_tokens" json:"synthesis_max_tokens"`

	// Optional prompt overrides; empty means the built-in template for Output.
	PlannerTemplate   string `yaml:"planner_template" json:"-"`
	SynthesisTemplate string `yaml:"synthesis_template" json:"-"`

	// Free-text distribution policy appended to the synthesis prompt,
	// e.g. "about 70% of picks between -150 and +150".
	Policy string `yaml:"policy" json:"policy"`
}

type generatorsFile struct {
	Generators []GeneratorConfig `yaml:"generators"`
}

// DefaultGenerators returns the built-in generator set.
func DefaultGenerators() map[string]GeneratorConfig {
	return map[string]GeneratorConfig{
		"props": {
			Name:               "props",
			Description:        "Player prop picks from main and alternate lines",
			Output:             OutputPicks,
			EntityKinds:        []string{"player_prop"},
			IncludeAltLines:    true,
			TargetCount:        10,
			Temperature:        0.4,
			PlannerMaxTokens:   3000,
			SynthesisMaxTokens: 8000,
			Policy:             "Aim for roughly 70% of picks priced between -150 and +150.",
		},
		"teams": {
			Name:               "teams",
			Description:        "Moneyline, spread and total picks",
			Output:             OutputPicks,
			EntityKinds:        []string{"team_bet"},
			TargetCount:        8,
			Temperature:        0.4,
			PlannerMaxTokens:   3000,
			SynthesisMaxTokens: 6000,
			Policy:             "Prefer main lines; use alternate lines only with strong research support.",
		},
		"trends": {
			Name:               "trends",
			Description:        "Statistical team and player trend insights",
			Output:             OutputTrends,
			EntityKinds:        []string{"team_bet", "player_prop"},
			TargetCount:        12,
			Temperature:        0.6,
			PlannerMaxTokens:   3000,
			SynthesisMaxTokens: 6000,
		},
	}
}

// LoadGenerators merges generator definitions from a YAML file over the
// built-in defaults. An empty path returns the defaults.
func LoadGenerators(path string) (map[string]GeneratorConfig, error) {
	gens := DefaultGenerators()
	if path == "" {
		return gens, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read generators file: %w", err)
	}
	return mergeGeneratorsYAML(gens, data)
}

func mergeGeneratorsYAML(gens map[string]GeneratorConfig, data []byte) (map[string]GeneratorConfig, error) {
	var file generatorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse generators file: %w", err)
	}

	for _, g := range file.Generators {
		if g.Name == "" {
			return nil, fmt.Errorf("generator definition missing name")
		}
		merged := mergeGenerator(gens[g.Name], g)
		if err := merged.validate(); err != nil {
			return nil, err
		}
		gens[g.Name] = merged
	}
	return gens, nil
}

func mergeGenerator(base, over GeneratorConfig) GeneratorConfig {
	out := base
	out.Name = over.Name
	if over.Description != "" {
		out.Description = over.Description
	}
	if over.Output != "" {
		out.Output = over.Output
	}
	if len(over.EntityKinds) > 0 {
		out.EntityKinds = over.EntityKinds
	}
	if over.IncludeAltLines {
		out.IncludeAltLines = true
	}
	if over.TargetCount > 0 {
		out.TargetCount = over.TargetCount
	}
	if over.Temperature > 0 {
		out.Temperature = over.Temperature
	}
	if over.PlannerMaxTokens > 0 {
		out.PlannerMaxTokens = over.PlannerMaxTokens
	}
	if over.SynthesisMaxTokens > 0 {
		out.SynthesisMaxTokens = over.SynthesisMaxTokens
	}
	if over.PlannerTemplate != "" {
		out.PlannerTemplate = over.PlannerTemplate
	}
	if over.SynthesisTemplate != "" {
		out.SynthesisTemplate = over.SynthesisTemplate
	}
	if over.Policy != "" {
		out.Policy = over.Policy
	}
	return out
}

func (g GeneratorConfig) validate() error {
	if g.Output != OutputPicks && g.Output != OutputTrends {
		return fmt.Errorf("generator %s: output must be %q or %q", g.Name, OutputPicks, OutputTrends)
	}
	for _, k := range g.EntityKinds {
		if k != "team_bet" && k != "player_prop" {
			return fmt.Errorf("generator %s: unknown entity kind %q", g.Name, k)
		}
	}
	if len(g.EntityKinds) == 0 {
		return fmt.Errorf("generator %s: entity_kinds is required", g.Name)
	}
	return nil
}

// GeneratorNames returns generator names in stable order.
func GeneratorNames(gens map[string]GeneratorConfig) []string {
	names := make([]string, 0, len(gens))
	for name := range gens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
