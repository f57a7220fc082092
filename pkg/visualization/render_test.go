package visualization

import (
	"bytes"
	"context"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"atlasqc/internal/models"
	"atlasqc/internal/phantom"
	"atlasqc/pkg/iar"
)

func TestRampColor(t *testing.T) {
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, RampColor(0))

	low, high := RampColor(-1), RampColor(1)
	assert.Greater(t, low.B, low.R, "negative end is blue")
	assert.Greater(t, high.R, high.B, "positive end is red")
	assert.Equal(t, high, RampColor(5), "values are clamped")
}

func TestGridImage(t *testing.T) {
	grid := models.NewAngularGrid(30)
	grid.Set(0, 0, 2)
	grid.Set(1, 0, -2)
	grid.Set(2, 0, math.NaN())

	img := GridImage(grid, GridOptions{CellSize: 4})
	assert.Equal(t, grid.NPhi*4, img.Bounds().Dx())
	assert.Equal(t, grid.NTheta*4, img.Bounds().Dy())

	// theta index 0 is the bottom row
	bottom := grid.NTheta*4 - 1
	assert.Equal(t, RampColor(1), img.RGBAAt(0, bottom))
	assert.Equal(t, RampColor(-1), img.RGBAAt(4, bottom))
	assert.Equal(t, color.RGBA{A: 255}, img.RGBAAt(8, bottom))
	assert.Equal(t, RampColor(0), img.RGBAAt(12, 0))

	captioned := GridImage(grid, GridOptions{CellSize: 4, Caption: "atlas01"})
	assert.Equal(t, grid.NTheta*4+headerHeight, captioned.Bounds().Dy())
}

func TestRenderGridPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderGridPNG(&buf, models.NewAngularGrid(60), GridOptions{}))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 12, img.Bounds().Dx())
}

func TestQChart(t *testing.T) {
	_, err := NewQChart([]string{"a"}, []float64{1, 2}, 0, nil)
	assert.Error(t, err)

	chart, err := NewQChart([]string{"a", "b", "c"}, []float64{0.1, 3, 0.2}, 0.5, []string{"b"})
	require.NoError(t, err)
	assert.True(t, chart.Removed["b"])
	assert.InDelta(t, 3.3, chart.scaleMax(), 1e-12)

	var svgBuf bytes.Buffer
	require.NoError(t, chart.RenderSVG(&svgBuf))
	assert.True(t, strings.Contains(svgBuf.String(), "<svg"))

	var pngBuf bytes.Buffer
	require.NoError(t, chart.RenderPNG(&pngBuf))
	_, err = png.Decode(&pngBuf)
	assert.NoError(t, err)
}

func TestQChartDegenerateScale(t *testing.T) {
	chart, err := NewQChart([]string{"a", "b"}, []float64{0, math.Inf(1)}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, chart.scaleMax())
	w, h := chart.Size()
	assert.Equal(t, minPlotWidth+2*chartMargin, w)
	assert.Equal(t, chartHeight, h)
}

func TestIntermediaryWriter(t *testing.T) {
	dir := t.TempDir()
	w := NewIntermediaryWriter(dir)

	sphere := phantom.Sphere{Size: 8, Center: r3.Vec{X: 3.5, Y: 3.5, Z: 3.5}, Radius: 2}
	grid := models.NewAngularGrid(30)
	rec := &iar.IterationRecord{
		Iteration:  0,
		Resolution: 30,
		AtlasIDs:   []string{"a", "b"},
		Scores:     []float64{0.1, 2},
		Threshold:  0.5,
		Removed:    []string{"b"},
		Kept:       []string{"a"},
		Grids:      map[string]*models.AngularGrid{"a": grid, "b": grid},
		Consensus:  sphere.Volume(),
	}
	require.NoError(t, w.IterationCompleted(context.Background(), "run", "heart", rec))

	iterDir := w.IterationDir("heart", 0)
	for _, name := range []string{"qvalues.svg", "grid_a.png", "grid_b.png", "consensus_x.png", "consensus_y.png", "consensus_z.png"} {
		_, err := os.Stat(filepath.Join(iterDir, name))
		assert.NoError(t, err, name)
	}

	set, err := models.NewAtlasSet(&models.Atlas{ID: "a"})
	require.NoError(t, err)
	res := &iar.Result{Structure: "heart", Atlases: set, Iterations: []iar.IterationRecord{*rec}}
	require.NoError(t, w.RunCompleted(context.Background(), res))
	_, err = os.Stat(filepath.Join(dir, "heart", "removal.svg"))
	assert.NoError(t, err)
}
