package models

import "time"

// ToolKind names one of the two research tools
type ToolKind string

const (
	ToolStats ToolKind = "stats"
	ToolWeb   ToolKind = "web"
)

// Fixed confidence weights per tool: statistics answers outrank web snippets.
const (
	StatsResultWeight = 1.0
	WebResultWeight   = 0.6
)

// WeightFor returns the fixed confidence weight for a tool.
func WeightFor(tool ToolKind) float64 {
	if tool == ToolStats {
		return StatsResultWeight
	}
	return WebResultWeight
}

// ResearchQuery is one planned external call
type ResearchQuery struct {
	Text       string   `json:"query"`
	Tool       ToolKind `json:"tool"`
	Sport      string   `json:"sport,omitempty"`
	EntityRefs []string `json:"entity_refs,omitempty"`
	Purpose    string   `json:"purpose,omitempty"`
}

// Snippet is one ranked web-search hit
type Snippet struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// ResearchResult is a successful tool answer
type ResearchResult struct {
	Tool        ToolKind  `json:"tool"`
	Query       string    `json:"query"`
	Answer      string    `json:"answer"`
	Weight      float64   `json:"weight"`
	EntityRefs  []string  `json:"entity_refs,omitempty"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// ResearchBundle collects the successful answers of one run
type ResearchBundle struct {
	Results   []ResearchResult `json:"results"`
	Attempted int              `json:"attempted"`
	Failed    int              `json:"failed"`
	Abandoned int              `json:"abandoned"` // still in flight when the run ceiling hit
}

// Empty reports whether no research succeeded.
func (b *ResearchBundle) Empty() bool {
	return b == nil || len(b.Results) == 0
}

// CountByTool returns how many results came from a tool.
func (b *ResearchBundle) CountByTool(tool ToolKind) int {
	if b == nil {
		return 0
	}
	n := 0
	for _, r := range b.Results {
		if r.Tool == tool {
			n++
		}
	}
	return n
}
