// Package scoring computes dimension averages, overall scores, and the
// completion percentile for tracks.
package scoring

import (
	"math"

	"github.com/danielmerja/music-virality-rater/internal/domain/model"
)

// DimensionNames label the four fixed rating axes, in storage order.
var DimensionNames = [model.DimensionCount]string{
	"First Impression",
	"Production Quality",
	"Originality",
	"Viral Potential",
}

// DefaultPercentile is used when no other completed tracks exist yet.
const DefaultPercentile = 50

// Summary holds the aggregate result for one track's ratings.
type Summary struct {
	DimensionMeans [model.DimensionCount]float64
	// Overall is the mean of the dimension means rounded
	// half-away-from-zero to one fractional digit.
	Overall float64
	Count   int
}

// Summarize computes per-dimension means and the overall score for a set of
// ratings. Returns a zero Summary when ratings is empty.
func Summarize(ratings []model.Rating) Summary {
	var s Summary
	if len(ratings) == 0 {
		return s
	}
	s.Count = len(ratings)
	for _, r := range ratings {
		for d, v := range r.Dimensions {
			s.DimensionMeans[d] += float64(v)
		}
	}
	var total float64
	for d := range s.DimensionMeans {
		s.DimensionMeans[d] /= float64(s.Count)
		total += s.DimensionMeans[d]
	}
	s.Overall = RoundScore(total / model.DimensionCount)
	return s
}

// RoundScore rounds to one fractional digit, half away from zero.
func RoundScore(x float64) float64 {
	return math.Round(x*10) / 10
}

// Percentile ranks overall against the scores of other completed tracks:
// the percentage of the population scoring strictly lower, rounded to the
// nearest integer. An empty population yields DefaultPercentile.
func Percentile(overall float64, population []float64) int {
	if len(population) == 0 {
		return DefaultPercentile
	}
	below := 0
	for _, s := range population {
		if s < overall {
			below++
		}
	}
	return int(math.Round(float64(below) / float64(len(population)) * 100))
}
