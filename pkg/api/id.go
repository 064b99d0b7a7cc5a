package api

import (
	"strconv"
)

// ParseID parses a survey or response identifier taken from a URL path.
// Identifiers are positive 64-bit integers assigned by the database.
func ParseID(s string) (int64, bool) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
