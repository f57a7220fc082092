package iar

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"

	"atlasqc/pkg/scoring"
)

// BestCount is the size of the best-scoring subset used for the threshold:
// max(minBest, n-3), capped at n and at least 1
func BestCount(n, minBest int) int {
	k := max(minBest, n-3)
	return max(1, min(k, n))
}

// Threshold computes the removal limit from the lowest BestCount scores
func Threshold(scores []float64, rule OutlierRule, factor float64, minBest int) (float64, error) {
	if len(scores) == 0 {
		return 0, fmt.Errorf("no scores")
	}
	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)
	best := sorted[:BestCount(len(sorted), minBest)]

	switch rule {
	case IQR:
		p75 := scoring.Percentile(best, 75)
		p25 := scoring.Percentile(best, 25)
		return p75 + factor*(p75-p25), nil
	case MeanStd:
		mean, std := stat.PopMeanStdDev(best, nil)
		return mean + factor*std, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownOutlierRule, rule)
	}
}
