// Package leaderboard derives the single lexicographically-sortable
// key the store needs to serve a multi-criteria ranking with only
// single-field range queries.
package leaderboard

import "fmt"

// Declared field maxima. Values beyond these clamp so the fixed field
// widths can never overflow.
const (
	MaxPoints   = 999_999_999
	MaxWins     = 999_999_999
	MaxLosses   = 999_999_999
	MaxActivity = 9_999_999_999_999 // 13-digit ms epoch
)

// SortKey encodes (points desc, wins desc, losses asc, lastActivity
// desc, uid asc) into one string whose ascending lexicographic order is
// best-first. Descending fields are inverted against their maximum;
// every numeric field is zero-padded to a fixed width, without which
// lexicographic comparison of numbers would be wrong ("9" > "10").
func SortKey(uid string, points, wins, losses, lastActivity int64) string {
	p := clamp(points, MaxPoints)
	w := clamp(wins, MaxWins)
	l := clamp(losses, MaxLosses)
	t := clamp(lastActivity, MaxActivity)

	return fmt.Sprintf("%09d_%09d_%09d_%013d_%s",
		MaxPoints-p, MaxWins-w, l, MaxActivity-t, uid)
}

func clamp(v, max int64) int64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
