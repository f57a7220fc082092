package visualization

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"atlasqc/pkg/iar"
)

// IntermediaryWriter saves per-iteration charts, angular grids and consensus
// slices below Dir/<structure>/
type IntermediaryWriter struct {
	Dir string
	// CellSize of the grid heatmaps in pixels
	CellSize int
}

var _ iar.Observer = (*IntermediaryWriter)(nil)

// NewIntermediaryWriter creates a writer rooted at dir
func NewIntermediaryWriter(dir string) *IntermediaryWriter {
	return &IntermediaryWriter{Dir: dir, CellSize: 3}
}

// IterationDir is where the results of one iteration are written
func (w *IntermediaryWriter) IterationDir(structure string, iteration int) string {
	return filepath.Join(w.Dir, structure, fmt.Sprintf("iter_%02d", iteration))
}

// IterationCompleted writes qvalues.svg, grid_<id>.png for every evaluated
// atlas and consensus_<axis>.png mid-slices
func (w *IntermediaryWriter) IterationCompleted(ctx context.Context, _ string, structure string, rec *iar.IterationRecord) error {
	dir := w.IterationDir(structure, rec.Iteration)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating intermediary directory: %w", err)
	}

	chart, err := NewQChart(rec.AtlasIDs, rec.Scores, rec.Threshold, rec.Removed)
	if err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "qvalues.svg"), chart.RenderSVG); err != nil {
		return err
	}

	ids := make([]string, 0, len(rec.Grids))
	for id := range rec.Grids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		q, _ := rec.Score(id)
		opts := GridOptions{
			CellSize: w.CellSize,
			Caption:  fmt.Sprintf("%s Q=%.4g res=%g", id, q, rec.Resolution),
		}
		grid := rec.Grids[id]
		err := writeFile(filepath.Join(dir, "grid_"+id+".png"), func(f io.Writer) error {
			return RenderGridPNG(f, grid, opts)
		})
		if err != nil {
			return err
		}
	}

	if rec.Consensus != nil {
		viewer := NewViewer(rec.Consensus)
		for _, axis := range []string{"x", "y", "z"} {
			img, err := viewer.MidSlice(axis)
			if err != nil {
				return err
			}
			if err := viewer.SaveSlice(img, filepath.Join(dir, "consensus_"+axis+".png")); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunCompleted writes removal.svg: the first iteration's scores with every
// atlas removed during the run highlighted
func (w *IntermediaryWriter) RunCompleted(_ context.Context, res *iar.Result) error {
	if len(res.Iterations) == 0 {
		return nil
	}
	var removed []string
	for _, rec := range res.Iterations {
		removed = append(removed, rec.Removed...)
	}
	first := res.Iterations[0]
	chart, err := NewQChart(first.AtlasIDs, first.Scores, first.Threshold, removed)
	if err != nil {
		return err
	}
	dir := filepath.Join(w.Dir, res.Structure)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating intermediary directory: %w", err)
	}
	return writeFile(filepath.Join(dir, "removal.svg"), chart.RenderSVG)
}

func writeFile(path string, render func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		return fmt.Errorf("rendering %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
