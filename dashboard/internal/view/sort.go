package view

import (
	"sort"
	"time"

	"av-ops-console/shared/issues"
)

const (
	SortKeyRoom       = "room"
	SortKeyAlertCount = "alertCount"
	SortKeyAge        = "age"
)

const (
	DirectionNone = ""
	DirectionAsc  = "asc"
	DirectionDesc = "desc"
)

// Sort orders issues by the given column. An empty key or direction
// returns the input untouched. Unknown keys compare everything equal,
// which with a stable sort is also a no-op. Missing values always sort
// last regardless of direction. The input slice is not modified.
func Sort(in []issues.Issue, key string, direction string) []issues.Issue {
	out := make([]issues.Issue, len(in))
	copy(out, in)
	if key == "" || direction == DirectionNone {
		return out
	}

	sign := 1
	if direction == DirectionDesc {
		sign = -1
	}

	sort.SliceStable(out, func(i, j int) bool {
		var c int
		switch key {
		case SortKeyRoom:
			c = compareOptionalString(out[i].Room.Name, out[j].Room.Name, sign)
		case SortKeyAlertCount:
			c = ActiveAlertCount(out[i]) - ActiveAlertCount(out[j])
			c *= sign
		case SortKeyAge:
			c = compareOptionalTime(out[i].Start, out[j].Start, sign)
		default:
			c = 0
		}
		return c < 0
	})
	return out
}

// Absent values (empty string, zero time) sort after present ones in
// both directions; only present-present comparisons flip with sign.

func compareOptionalString(a, b string, sign int) int {
	if a == "" && b == "" {
		return 0
	}
	if b == "" {
		return -1
	}
	if a == "" {
		return 1
	}
	switch {
	case a < b:
		return -sign
	case a > b:
		return sign
	default:
		return 0
	}
}

func compareOptionalTime(a, b time.Time, sign int) int {
	if a.IsZero() && b.IsZero() {
		return 0
	}
	if b.IsZero() {
		return -1
	}
	if a.IsZero() {
		return 1
	}
	switch {
	case a.Before(b):
		return -sign
	case a.After(b):
		return sign
	default:
		return 0
	}
}
