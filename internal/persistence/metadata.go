package persistence

import (
	"context"
	"strings"

	"github.com/stitts-dev/pick-research/internal/models"
)

// metadata is the reference data used to decorate output. Lookups that miss
// leave the field empty; a missing logo never blocks a save.
type metadata struct {
	bookmakers map[string]models.BookmakerLogo
	leagues    map[string]models.LeagueLogo
	headshots  map[string]string
}

func (g *Gateway) loadMetadata(ctx context.Context) metadata {
	m := metadata{
		bookmakers: make(map[string]models.BookmakerLogo),
		leagues:    make(map[string]models.LeagueLogo),
		headshots:  make(map[string]string),
	}

	var books []models.BookmakerLogo
	if err := g.db.WithContext(ctx).Find(&books).Error; err != nil {
		g.logger.WithError(err).Warn("Failed to load bookmaker logos")
	}
	for _, b := range books {
		m.bookmakers[models.NormalizeToken(b.Bookmaker)] = b
	}

	var leagues []models.LeagueLogo
	if err := g.db.WithContext(ctx).Find(&leagues).Error; err != nil {
		g.logger.WithError(err).Warn("Failed to load league logos")
	}
	for _, l := range leagues {
		m.leagues[strings.ToUpper(l.Sport)] = l
	}

	var shots []models.PlayerHeadshot
	if err := g.db.WithContext(ctx).Find(&shots).Error; err != nil {
		g.logger.WithError(err).Warn("Failed to load player headshots")
	}
	for _, h := range shots {
		m.headshots[models.NormalizeName(h.PlayerKey)] = h.HeadshotURL
	}
	return m
}

func (m metadata) forPick(p models.ValidatedPick) models.PickMetadata {
	var out models.PickMetadata
	if b, ok := m.bookmakers[models.NormalizeToken(p.Bookmaker)]; ok {
		out.BookmakerLogo = b.LogoURL
		out.BookmakerDisplay = b.DisplayName
	}
	if l, ok := m.leagues[strings.ToUpper(p.Sport)]; ok {
		out.LeagueLogo = l.LogoURL
	}
	if p.PlayerName != "" {
		out.HeadshotURL = m.headshots[models.NormalizeName(p.PlayerName)]
	}
	return out
}

func (m metadata) forTrend(t models.ValidatedTrend) models.PickMetadata {
	var out models.PickMetadata
	if l, ok := m.leagues[strings.ToUpper(t.Sport)]; ok {
		out.LeagueLogo = l.LogoURL
	}
	if t.SubjectType == "player" {
		out.HeadshotURL = m.headshots[models.NormalizeName(t.Subject)]
	}
	return out
}
