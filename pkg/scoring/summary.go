package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Percentile returns the p-th percentile (0-100) of sorted using linear
// interpolation between closest ranks, the default of most numerical
// libraries. sorted must be ascending and non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := p / 100 * float64(n-1)
	lo := int(math.Floor(pos))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// ZSummary is the five-number summary plus mean of a Z-score field
type ZSummary struct {
	Min, Q1, Mean, Median, Q3, Max float64
}

// Summarize computes a ZSummary. An empty input gives NaN fields.
func Summarize(z []float64) ZSummary {
	if len(z) == 0 {
		nan := math.NaN()
		return ZSummary{nan, nan, nan, nan, nan, nan}
	}
	sorted := make([]float64, len(z))
	copy(sorted, z)
	sort.Float64s(sorted)

	mean, _ := stats.Mean(sorted)
	return ZSummary{
		Min:    sorted[0],
		Q1:     Percentile(sorted, 25),
		Mean:   mean,
		Median: Percentile(sorted, 50),
		Q3:     Percentile(sorted, 75),
		Max:    sorted[len(sorted)-1],
	}
}

// Lines renders the summary for debug output
func (s ZSummary) Lines() []string {
	return []string{
		fmt.Sprintf("Min(Z)    = %.2f", s.Min),
		fmt.Sprintf("Q1(Z)     = %.2f", s.Q1),
		fmt.Sprintf("Mean(Z)   = %.2f", s.Mean),
		fmt.Sprintf("Median(Z) = %.2f", s.Median),
		fmt.Sprintf("Q3(Z)     = %.2f", s.Q3),
		fmt.Sprintf("Max(Z)    = %.2f", s.Max),
	}
}
