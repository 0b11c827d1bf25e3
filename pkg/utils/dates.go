package utils

import "regexp"

var dateShape = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// IsDateShape reports whether s is written as YYYY-MM-DD. Calendar validity
// is not checked here: an impossible day such as 2025-02-30 is a day with no
// games, not a malformed request.
func IsDateShape(s string) bool {
	return dateShape.MatchString(s)
}
