// Package stage catalogs the production stages a track can be submitted in.
// The stage informs how insight generation weighs production-related scores.
package stage

// Stage describes one production stage.
type Stage struct {
	ID          string
	Label       string
	Description string
}

// Stages is the fixed catalog, ordered from roughest to most polished.
var Stages = []Stage{
	{
		ID:          "demo",
		Label:       "Demo",
		Description: "A rough recording, early idea, minimal production. Raters: focus on the core song, not polish.",
	},
	{
		ID:          "mixed",
		Label:       "Mixed",
		Description: "Mixed but not mastered, balanced levels and EQ, but no final loudness or polish pass.",
	},
	{
		ID:          "mastered",
		Label:       "Mastered",
		Description: "Fully mastered and release-ready, final loudness, clarity, and polish applied.",
	},
}

// ByID looks up a stage by identifier. Returns false when unknown.
func ByID(id string) (Stage, bool) {
	for _, s := range Stages {
		if s.ID == id {
			return s, true
		}
	}
	return Stage{}, false
}

// Valid reports whether id names a known stage. The empty id is allowed;
// tracks may be created before a stage is chosen.
func Valid(id string) bool {
	if id == "" {
		return true
	}
	_, ok := ByID(id)
	return ok
}
