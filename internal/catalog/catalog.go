package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/pick-research/internal/models"
)

// ErrNoGamesFound means no scheduled events matched the date and sport.
// It is an expected outcome (off-season, bad date) rather than a failure.
var ErrNoGamesFound = errors.New("no games found")

const dateLayout = "2006-01-02"

// Filter selects which entity kinds a generator wants.
type Filter struct {
	Kinds      []models.EntityKind
	IncludeAlt bool
}

func (f Filter) wants(kind models.EntityKind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Catalog loads the bounded universe of bettable entities for one date.
type Catalog struct {
	store    Store
	location *time.Location
	logger   *logrus.Logger

	maxAttempts int
	backoff     time.Duration
}

func New(store Store, location *time.Location, logger *logrus.Logger) *Catalog {
	if location == nil {
		location = time.UTC
	}
	return &Catalog{
		store:       store,
		location:    location,
		logger:      logger,
		maxAttempts: 3,
		backoff:     200 * time.Millisecond,
	}
}

// DayBounds converts a local calendar date into a UTC [from, to) range.
func (c *Catalog) DayBounds(date string) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, date, c.location)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// Load builds a read-only snapshot for date (YYYY-MM-DD, local timezone).
// Store errors are retried before being returned; an unparseable date and a
// day with no events both yield ErrNoGamesFound.
func (c *Catalog) Load(ctx context.Context, date, sport string, filter Filter) (*Snapshot, error) {
	from, to, err := c.DayBounds(date)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrNoGamesFound, date)
	}

	var events []models.Event
	err = c.withRetry(ctx, "load_events", func() error {
		var loadErr error
		events, loadErr = c.store.LoadEvents(ctx, from, to, sport)
		return loadErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("%w for %s (sport=%q)", ErrNoGamesFound, date, sport)
	}

	eventIDs := make([]string, len(events))
	for i, e := range events {
		eventIDs[i] = e.ID
	}

	var props []models.PlayerPropLine
	if filter.wants(models.KindPlayerProp) {
		err = c.withRetry(ctx, "load_props", func() error {
			var loadErr error
			props, loadErr = c.store.LoadProps(ctx, eventIDs)
			return loadErr
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load props: %w", err)
		}
	}

	var teamBets []models.TeamBetLine
	if filter.wants(models.KindTeamBet) {
		err = c.withRetry(ctx, "load_team_bets", func() error {
			var loadErr error
			teamBets, loadErr = c.store.LoadTeamBets(ctx, eventIDs)
			return loadErr
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load team bets: %w", err)
		}
	}

	snap := build(events, props, teamBets, filter)

	c.logger.WithFields(logrus.Fields{
		"date":      date,
		"sport":     sport,
		"events":    len(events),
		"props":     len(props),
		"team_bets": len(teamBets),
		"entities":  len(snap.Entities),
		"filtered":  snap.Filtered,
		"dupes":     snap.Duplicates,
	}).Info("Candidate catalog loaded")

	return snap, nil
}

func (c *Catalog) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == c.maxAttempts {
			break
		}
		c.logger.WithFields(logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"error":     err.Error(),
		}).Warn("Data store call failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(attempt)):
		}
	}
	return err
}

// build turns store rows into deduplicated, odds-filtered entities. Rows are
// ordered newest store_ts first here, whatever order the store used, so the
// latest quote for a key wins.
func build(events []models.Event, props []models.PlayerPropLine, teamBets []models.TeamBetLine, filter Filter) *Snapshot {
	props = append([]models.PlayerPropLine(nil), props...)
	sort.SliceStable(props, func(i, j int) bool { return props[i].StoreTS.After(props[j].StoreTS) })
	teamBets = append([]models.TeamBetLine(nil), teamBets...)
	sort.SliceStable(teamBets, func(i, j int) bool { return teamBets[i].StoreTS.After(teamBets[j].StoreTS) })

	snap := newSnapshot(events)
	seen := make(map[string]bool)

	add := func(e models.CandidateEntity) {
		key := e.UniqueKey()
		if seen[key] {
			snap.Duplicates++
			return
		}
		seen[key] = true
		if e.IsAlt && !filter.IncludeAlt {
			return
		}
		if !e.AnySideInWindow() {
			snap.Filtered++
			return
		}
		snap.add(e)
	}

	for _, row := range props {
		ev, ok := snap.events[row.EventID]
		if !ok {
			continue
		}
		line := row.Line
		add(models.CandidateEntity{
			EventID:    row.EventID,
			Kind:       models.KindPlayerProp,
			Sport:      ev.Sport,
			League:     ev.League,
			HomeTeam:   ev.HomeTeam,
			AwayTeam:   ev.AwayTeam,
			StartTime:  ev.StartTime,
			PlayerName: row.PlayerName,
			PropType:   row.PropType,
			Line:       &line,
			Odds:       sideOdds(models.SideOver, row.OverOdds, models.SideUnder, row.UnderOdds),
			Bookmaker:  row.Bookmaker,
			StoreTS:    row.StoreTS,
			IsAlt:      row.IsAlt,
		})
	}

	for _, row := range teamBets {
		ev, ok := snap.events[row.EventID]
		if !ok {
			continue
		}
		odds := sideOdds(models.SideHome, row.HomeOdds, models.SideAway, row.AwayOdds)
		for side, v := range sideOdds(models.SideOver, row.OverOdds, models.SideUnder, row.UnderOdds) {
			odds[side] = v
		}
		add(models.CandidateEntity{
			EventID:   row.EventID,
			Kind:      models.KindTeamBet,
			Sport:     ev.Sport,
			League:    ev.League,
			HomeTeam:  ev.HomeTeam,
			AwayTeam:  ev.AwayTeam,
			StartTime: ev.StartTime,
			BetType:   row.BetType,
			Line:      row.Line,
			Odds:      odds,
			Bookmaker: row.Bookmaker,
			StoreTS:   row.StoreTS,
			IsAlt:     row.IsAlt,
		})
	}

	snap.sortByEvent()
	return snap
}

func sideOdds(sideA string, a *int, sideB string, b *int) map[string]int {
	odds := make(map[string]int, 2)
	if a != nil {
		odds[sideA] = *a
	}
	if b != nil {
		odds[sideB] = *b
	}
	return odds
}

// Snapshot is the run's catalog. It is owned by one run and never mutated
// after Load returns.
type Snapshot struct {
	Entities   []models.CandidateEntity
	Events     []models.Event
	Filtered   int
	Duplicates int

	events     map[string]models.Event
	eventOrder map[string]int
	byMarket   map[string][]int // event_id#entity_key -> entity indexes
	subjects   map[string]Subject
}

// Subject is a team or player known to the catalog.
type Subject struct {
	Name    string
	Type    string // "team" or "player"
	Sport   string
	EventID string
}

func newSnapshot(events []models.Event) *Snapshot {
	s := &Snapshot{
		Events:     events,
		events:     make(map[string]models.Event, len(events)),
		eventOrder: make(map[string]int, len(events)),
		byMarket:   make(map[string][]int),
		subjects:   make(map[string]Subject),
	}
	for i, e := range events {
		s.events[e.ID] = e
		s.eventOrder[e.ID] = i
		s.addSubject(e.HomeTeam, "team", e.Sport, e.ID)
		s.addSubject(e.AwayTeam, "team", e.Sport, e.ID)
	}
	return s
}

func (s *Snapshot) add(e models.CandidateEntity) {
	s.Entities = append(s.Entities, e)
	if e.Kind == models.KindPlayerProp {
		s.addSubject(e.PlayerName, "player", e.Sport, e.EventID)
	}
}

func (s *Snapshot) addSubject(name, kind, sport, eventID string) {
	key := models.NormalizeName(name)
	if key == "" {
		return
	}
	if _, ok := s.subjects[key]; !ok {
		s.subjects[key] = Subject{Name: name, Type: kind, Sport: sport, EventID: eventID}
	}
}

// sortByEvent orders entities by event start and rebuilds the market index.
func (s *Snapshot) sortByEvent() {
	sort.SliceStable(s.Entities, func(i, j int) bool {
		return s.eventOrder[s.Entities[i].EventID] < s.eventOrder[s.Entities[j].EventID]
	})
	s.byMarket = make(map[string][]int)
	for i, e := range s.Entities {
		k := marketKey(e.EventID, e.EntityKey())
		s.byMarket[k] = append(s.byMarket[k], i)
	}
}

func marketKey(eventID, entityKey string) string {
	return strings.TrimSpace(eventID) + "#" + entityKey
}

// NewSnapshot builds a snapshot directly from entities, for callers that
// already hold materialized lines.
func NewSnapshot(events []models.Event, entities []models.CandidateEntity) *Snapshot {
	s := newSnapshot(events)
	for _, e := range entities {
		s.add(e)
	}
	s.sortByEvent()
	return s
}

// Len returns the number of entities.
func (s *Snapshot) Len() int {
	return len(s.Entities)
}

// Event looks up an event by id.
func (s *Snapshot) Event(id string) (models.Event, bool) {
	e, ok := s.events[strings.TrimSpace(id)]
	return e, ok
}

// Market returns every entity for (event_id, entity key) across lines and bookmakers.
func (s *Snapshot) Market(eventID, entityKey string) []models.CandidateEntity {
	idx := s.byMarket[marketKey(eventID, entityKey)]
	out := make([]models.CandidateEntity, len(idx))
	for i, n := range idx {
		out[i] = s.Entities[n]
	}
	return out
}

// ResolveSubject finds a team or player by normalized name.
func (s *Snapshot) ResolveSubject(name string) (Subject, bool) {
	sub, ok := s.subjects[models.NormalizeName(name)]
	return sub, ok
}

// Teams returns distinct team names in event order.
func (s *Snapshot) Teams() []string {
	var teams []string
	seen := make(map[string]bool)
	for _, e := range s.Events {
		for _, t := range []string{e.AwayTeam, e.HomeTeam} {
			if !seen[t] {
				seen[t] = true
				teams = append(teams, t)
			}
		}
	}
	return teams
}

// Sports returns distinct sports in event order.
func (s *Snapshot) Sports() []string {
	var sports []string
	seen := make(map[string]bool)
	for _, e := range s.Events {
		if !seen[e.Sport] {
			seen[e.Sport] = true
			sports = append(sports, e.Sport)
		}
	}
	return sports
}
