// Package iar implements Iterative Atlas Removal: atlases whose surface
// disagreement with the pool consensus is statistically anomalous are
// removed round after round until no further atlas is flagged.
package iar

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"atlasqc/internal/models"
	"atlasqc/pkg/consensus"
	"atlasqc/pkg/distance"
	"atlasqc/pkg/morphology"
	"atlasqc/pkg/scoring"
	"atlasqc/pkg/spherical"
	"atlasqc/pkg/surface"
)

// Remover runs IAR over atlas pools
type Remover struct {
	params *Params
	out    *log.Logger
}

// NewRemover creates a remover. Methods are validated when Run starts so
// that a bad name still leaves a header-only log behind.
func NewRemover(params *Params) *Remover {
	out := params.Logger
	if out == nil {
		out = log.New(os.Stdout, "", 0)
	}
	return &Remover{params: params, out: out}
}

// Run evaluates the pool until no atlas is flagged and returns the survivors.
// A configuration error aborts before the first iteration and wraps
// ErrConfig.
func (r *Remover) Run(ctx context.Context, set *models.AtlasSet) (*Result, error) {
	p := r.params
	if p.Structure == "" {
		return nil, fmt.Errorf("%w: structure name is required", ErrConfig)
	}

	r.out.Println("Iterative atlas removal: ")
	r.out.Println("  Beginning process")

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	logPath := p.logPath(now())
	runlog, err := openRunLog(logPath)
	if err != nil {
		return nil, err
	}
	defer runlog.Close()

	dispersion, rule, err := p.methods()
	if err != nil {
		return nil, err
	}
	engine := scoring.NewEngine(dispersion, p.SmoothMaps, p.SmoothSigma)

	res := &Result{
		RunID:     uuid.NewString(),
		Structure: p.Structure,
		Atlases:   set,
		LogFile:   logPath,
	}

	if set.Len() < MinPoolSize {
		r.out.Printf("Warning: %d atlas(es) in the pool, at least %d are needed; nothing to evaluate\n", set.Len(), MinPoolSize)
		if err := runlog.Close(); err != nil {
			return nil, fmt.Errorf("failed to close log: %w", err)
		}
		r.notifyRun(ctx, res)
		return res, nil
	}

	pool := set
	for iteration := 0; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := r.evaluate(ctx, pool, iteration, engine, rule)
		if err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration, err)
		}
		if err := runlog.writeIteration(rec); err != nil {
			return nil, err
		}
		r.notifyIteration(ctx, res.RunID, rec)
		if !p.KeepIterationData {
			rec.Grids = nil
			rec.Consensus = nil
		}
		res.Iterations = append(res.Iterations, *rec)

		if len(rec.Removed) == 0 {
			r.out.Printf("  End point reached. Keeping:\n   %v\n", rec.Kept)
			res.Atlases = pool
			break
		}

		r.out.Printf("\n  Step %d Complete\n", iteration)
		r.out.Printf("   Num. Removed = %d --\n\n", len(rec.Removed))
		next := pool.Without(rec.Removed...)
		if p.SingleStep {
			res.Atlases = next
			break
		}
		if next.Len() < MinPoolSize {
			r.out.Printf("Warning: only %d atlas(es) remain, stopping\n", next.Len())
			res.Atlases = next
			break
		}
		pool = next
	}

	if err := runlog.Close(); err != nil {
		return nil, fmt.Errorf("failed to close log: %w", err)
	}
	r.notifyRun(ctx, res)
	return res, nil
}

// evaluate performs one round: consensus, per-atlas projection, leave-one-out
// scoring and the removal decision
func (r *Remover) evaluate(ctx context.Context, pool *models.AtlasSet, iteration int, engine *scoring.Engine, rule OutlierRule) (*IterationRecord, error) {
	p := r.params
	ids := pool.IDs()
	n := len(ids)

	resolution := p.Resolution.For(n)
	r.out.Printf("  %d atlases, resolution set: %gx%g sqr deg\n", n, resolution, resolution)

	labels, err := pool.Labels(p.Structure)
	if err != nil {
		return nil, err
	}

	combiner := p.Combiner
	if combiner == nil {
		combiner = consensus.Mean
	}
	probability, err := combiner.Combine(pool, p.Structure)
	if err != nil {
		return nil, fmt.Errorf("failed to combine labels: %w", err)
	}
	reference := morphology.ReduceProbability(probability, p.ConsensusThreshold)
	if reference.CountNonZero() == 0 {
		r.out.Printf("Warning: consensus for %s is empty, distances are zero\n", p.Structure)
	}
	distanceMap := distance.Absolute(reference)

	if p.Verbose {
		r.out.Println("  Calculating surface distance maps: ")
	}
	grids := make([]*models.AngularGrid, n)
	gridStats := make([]spherical.Stats, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.NumCores))
	for i := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			test := morphology.ReduceProbability(labels[i], p.TestThreshold)
			proj, err := surface.Project(distanceMap, test)
			if err != nil {
				return fmt.Errorf("atlas %s: %w", ids[i], err)
			}
			grids[i], gridStats[i] = spherical.Regrid(proj.Samples(), resolution)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, st := range gridStats {
		if st.Samples == 0 {
			r.out.Printf("Warning: atlas %s has an empty %s surface, using a zero grid\n", ids[i], p.Structure)
		}
		if p.Verbose {
			r.out.Printf("    %s: %d surface samples, %d cells from nearest neighbour\n", ids[i], st.Samples, st.NearestFilled)
		}
	}

	results := make([]*scoring.Result, n)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(max(1, p.NumCores))
	for i := range ids {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			refs := make([]*models.AngularGrid, 0, n-1)
			for k, grid := range grids {
				if k != i {
					refs = append(refs, grid)
				}
			}
			res, err := engine.Score(grids[i], refs)
			if err != nil {
				return fmt.Errorf("atlas %s: %w", ids[i], err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rec := &IterationRecord{
		Iteration:  iteration,
		Resolution: resolution,
		AtlasIDs:   ids,
		Scores:     make([]float64, n),
		Grids:      make(map[string]*models.AngularGrid, n),
		Summaries:  make(map[string]scoring.ZSummary, n),
		Consensus:  reference,
	}
	for i, res := range results {
		rec.Scores[i] = res.Q
		rec.Grids[ids[i]] = grids[i]
		if res.ReplacedCells > 0 {
			r.out.Printf("    %s zero count: %d (replaced by %.4g)\n", engine.Dispersion, res.ReplacedCells, res.Fallback)
		}
		if res.InRange == 0 {
			r.out.Printf("Warning: atlas %s has no Z-scores inside [-%g, %g]\n", ids[i], scoring.HistogramLimit, scoring.HistogramLimit)
		}
		if p.Debug {
			summary := scoring.Summarize(res.Z)
			rec.Summaries[ids[i]] = summary
			r.out.Printf("      [%s] Statistics of Z-scores\n        %s\n", ids[i], strings.Join(summary.Lines(), "\n        "))
		}
	}

	rec.Threshold, err = Threshold(rec.Scores, rule, p.OutlierFactor, p.MinBestAtlases)
	if err != nil {
		return nil, err
	}

	r.out.Println("  Analysing results")
	r.out.Printf("   Outlier limit: %06.3f\n", rec.Threshold)
	for i, id := range ids {
		keep := !(rec.Scores[i] > rec.Threshold)
		verdict := "KEEP"
		if keep {
			rec.Kept = append(rec.Kept, id)
		} else {
			verdict = "REMOVE"
			rec.Removed = append(rec.Removed, id)
		}
		r.out.Printf("      %s: Q = %06.3f [%s]\n", id, rec.Scores[i], verdict)
	}
	return rec, nil
}

func (r *Remover) notifyIteration(ctx context.Context, runID string, rec *IterationRecord) {
	for _, o := range r.params.Observers {
		if err := o.IterationCompleted(ctx, runID, r.params.Structure, rec); err != nil {
			r.out.Printf("Warning: observer failed on iteration %d: %v\n", rec.Iteration, err)
		}
	}
}

func (r *Remover) notifyRun(ctx context.Context, res *Result) {
	for _, o := range r.params.Observers {
		if err := o.RunCompleted(ctx, res); err != nil {
			r.out.Printf("Warning: observer failed on run completion: %v\n", err)
		}
	}
}
