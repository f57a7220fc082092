package visualization

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// Chart geometry in millimetres
const (
	chartMargin  = 10.0
	chartHeight  = 80.0
	barWidth     = 6.0
	barGap       = 2.0
	minPlotWidth = 40.0
)

var (
	keptColor    = color.RGBA{R: 0x43, G: 0x6e, B: 0xa5, A: 0xff}
	removedColor = color.RGBA{R: 0xb2, G: 0x18, B: 0x2b, A: 0xff}
)

// QChart is a bar chart of Q-values with the removal threshold
type QChart struct {
	IDs       []string
	Scores    []float64
	Threshold float64
	// Removed atlases are drawn in red
	Removed map[string]bool

	Resolution canvas.Resolution
}

// NewQChart creates a chart of scores aligned with ids
func NewQChart(ids []string, scores []float64, threshold float64, removed []string) (*QChart, error) {
	if len(ids) != len(scores) {
		return nil, fmt.Errorf("%d ids for %d scores", len(ids), len(scores))
	}
	c := &QChart{
		IDs:        ids,
		Scores:     scores,
		Threshold:  threshold,
		Removed:    make(map[string]bool, len(removed)),
		Resolution: canvas.DPI(150),
	}
	for _, id := range removed {
		c.Removed[id] = true
	}
	return c, nil
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// Size returns the chart width and height in millimetres
func (c *QChart) Size() (float64, float64) {
	plot := math.Max(minPlotWidth, float64(len(c.Scores))*(barWidth+barGap)+barGap)
	return plot + 2*chartMargin, chartHeight
}

// RenderSVG writes the chart as SVG
func (c *QChart) RenderSVG(w io.Writer) error {
	width, height := c.Size()
	r := svg.New(w, width, height, nil)
	c.render(r)
	return r.Close()
}

// RenderPNG writes the chart as PNG
func (c *QChart) RenderPNG(w io.Writer) error {
	width, height := c.Size()
	rast := rasterizer.New(width, height, c.Resolution, canvas.DefaultColorSpace)
	c.render(rast)
	return png.Encode(w, rast)
}

// scaleMax is the Q-value drawn at the top of the plot area
func (c *QChart) scaleMax() float64 {
	top := c.Threshold
	for _, q := range c.Scores {
		if !math.IsNaN(q) && !math.IsInf(q, 0) {
			top = math.Max(top, q)
		}
	}
	if top <= 0 || math.IsNaN(top) || math.IsInf(top, 0) {
		return 1
	}
	return top * 1.1
}

func (c *QChart) render(r canvasRenderer) {
	width, height := c.Size()
	plotHeight := height - 2*chartMargin
	top := c.scaleMax()
	toY := func(q float64) float64 {
		return chartMargin + plotHeight*math.Max(0, math.Min(1, q/top))
	}

	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: canvas.White}
	r.RenderPath(canvas.Rectangle(width, height), bg, canvas.Identity)

	for i, q := range c.Scores {
		h := toY(q) - chartMargin
		if h <= 0 {
			continue
		}
		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: keptColor}
		if c.Removed[c.IDs[i]] {
			style.Fill = canvas.Paint{Color: removedColor}
		}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		x := chartMargin + barGap + float64(i)*(barWidth+barGap)
		r.RenderPath(canvas.Rectangle(barWidth, h), style, canvas.Identity.Translate(x, chartMargin))
	}

	axis := canvas.DefaultStyle
	axis.Fill = canvas.Paint{Color: canvas.Transparent}
	axis.Stroke = canvas.Paint{Color: canvas.Black}
	axis.StrokeWidth = 0.3
	base := &canvas.Path{}
	base.MoveTo(chartMargin, chartMargin)
	base.LineTo(width-chartMargin, chartMargin)
	base.MoveTo(chartMargin, chartMargin)
	base.LineTo(chartMargin, height-chartMargin)
	r.RenderPath(base, axis, canvas.Identity)

	threshold := canvas.DefaultStyle
	threshold.Fill = canvas.Paint{Color: canvas.Transparent}
	threshold.Stroke = canvas.Paint{Color: canvas.Gray}
	threshold.StrokeWidth = 0.4
	threshold.Dashes = []float64{2.0, 1.5}
	line := &canvas.Path{}
	y := toY(c.Threshold)
	line.MoveTo(chartMargin, y)
	line.LineTo(width-chartMargin, y)
	r.RenderPath(line, threshold, canvas.Identity)
}
