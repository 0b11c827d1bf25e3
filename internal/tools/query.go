package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/stitts-dev/pick-research/internal/models"
)

// NormalizeQuery trims and collapses whitespace so every caller sends
// identical text for identical questions.
func NormalizeQuery(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// CacheKey builds a stable answer-cache key for a tool query.
func CacheKey(tool models.ToolKind, text, sport string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(NormalizeQuery(text)) + "|" + strings.ToLower(strings.TrimSpace(sport))))
	return "pick-research:tool:" + string(tool) + ":" + hex.EncodeToString(sum[:12])
}
