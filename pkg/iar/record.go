package iar

import (
	"context"

	"atlasqc/internal/models"
	"atlasqc/pkg/scoring"
)

// IterationRecord captures one evaluation round
type IterationRecord struct {
	Iteration int
	// Resolution of the angular grids in degrees
	Resolution float64

	// AtlasIDs is the pool in evaluation order; Scores is aligned with it
	AtlasIDs  []string
	Scores    []float64
	Threshold float64

	Removed []string
	Kept    []string

	// Grids and Summaries are keyed by atlas id
	Grids     map[string]*models.AngularGrid
	Summaries map[string]scoring.ZSummary

	// Consensus is the reduced reference volume of this round. Grids and
	// Consensus are nil in Result.Iterations unless Params.KeepIterationData
	// is set.
	Consensus *models.Volume
}

// Score returns the Q-value of id, if it was evaluated
func (rec *IterationRecord) Score(id string) (float64, bool) {
	for i, a := range rec.AtlasIDs {
		if a == id {
			return rec.Scores[i], true
		}
	}
	return 0, false
}

// Result is the outcome of a run
type Result struct {
	// RunID identifies the run in published outputs
	RunID     string
	Structure string

	// Atlases is the surviving pool
	Atlases    *models.AtlasSet
	Iterations []IterationRecord

	LogFile string
}

// Observer is notified as a run progresses. Observer errors are reported as
// warnings and never abort the run.
type Observer interface {
	IterationCompleted(ctx context.Context, runID, structure string, rec *IterationRecord) error
	RunCompleted(ctx context.Context, res *Result) error
}
