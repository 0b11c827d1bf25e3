package pipeline

import (
	"github.com/stitts-dev/pick-research/internal/catalog"
	"github.com/stitts-dev/pick-research/internal/models"
)

// diverseSample picks up to limit entities, taking the first-seen entity per
// distinct (event, entity key) and rotating across events so one game cannot
// monopolize the sample. Entities whose ref appears in priority go first.
// With withRepeats, other lines and bookmakers of sampled markets fill any
// room left under limit.
func diverseSample(snap *catalog.Snapshot, limit int, priority map[string]bool, withRepeats bool) []models.CandidateEntity {
	if limit <= 0 || snap.Len() == 0 {
		return nil
	}

	var out []models.CandidateEntity
	taken := make(map[int]bool)

	if len(priority) > 0 {
		for i, e := range snap.Entities {
			if len(out) >= limit {
				return out
			}
			if priority[entityRef(e)] {
				out = append(out, e)
				taken[i] = true
			}
		}
	}

	// per-event queues of entity indexes, one per distinct market first
	var order []string
	queues := make(map[string][]int)
	seenMarket := make(map[string]bool)
	var repeats []int
	for i, e := range snap.Entities {
		if taken[i] {
			continue
		}
		ref := entityRef(e)
		if seenMarket[ref] {
			repeats = append(repeats, i)
			continue
		}
		seenMarket[ref] = true
		if _, ok := queues[e.EventID]; !ok {
			order = append(order, e.EventID)
		}
		queues[e.EventID] = append(queues[e.EventID], i)
	}

	for len(out) < limit {
		progressed := false
		for _, eventID := range order {
			q := queues[eventID]
			if len(q) == 0 {
				continue
			}
			out = append(out, snap.Entities[q[0]])
			queues[eventID] = q[1:]
			progressed = true
			if len(out) >= limit {
				return out
			}
		}
		if !progressed {
			break
		}
	}

	if !withRepeats {
		return out
	}
	for _, i := range repeats {
		if len(out) >= limit {
			break
		}
		out = append(out, snap.Entities[i])
	}
	return out
}
