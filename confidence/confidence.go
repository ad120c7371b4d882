package confidence

import (
	"math"

	"github.com/flarexio/docrag/vector"
)

const (
	// corroboration reaches its full bonus at this many hits
	fullCorroboration = 5.0
	maxBonus          = 0.2
)

// Score rewards strong matches and corroboration by several sources:
// min(avg * (1 + min(n/5, 1) * 0.2), 1). No hits score exactly 0.
func Score(hits []vector.SearchHit) float64 {
	if len(hits) == 0 {
		return 0
	}

	sum := 0.0
	for _, hit := range hits {
		sum += vector.ClampScore(hit.Score)
	}

	n := float64(len(hits))
	avg := sum / n
	bonus := math.Min(n/fullCorroboration, 1)

	return vector.ClampScore(math.Min(avg*(1+bonus*maxBonus), 1))
}
