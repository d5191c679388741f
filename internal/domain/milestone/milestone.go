// Package milestone defines the fixed vote-count thresholds that trigger
// insight generation.
package milestone

// Milestones is the ordered, immutable set of vote-count thresholds.
// Do not mutate.
var Milestones = [...]int{5, 10, 20, 50}

// IsMilestone reports whether votes matches a threshold exactly.
func IsMilestone(votes int) bool {
	for _, m := range Milestones {
		if votes == m {
			return true
		}
	}
	return false
}

// Passed returns all thresholds less than or equal to votes, in ascending
// order. Used by the backfill reconciler.
func Passed(votes int) []int {
	var out []int
	for _, m := range Milestones {
		if votes >= m {
			out = append(out, m)
		}
	}
	return out
}

// InsightCount returns how many insights to request at a milestone.
func InsightCount(m int) int {
	switch m {
	case 5:
		return 2
	case 10:
		return 3
	case 20:
		return 4
	default:
		return 5
	}
}
