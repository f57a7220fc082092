package visualization

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"atlasqc/internal/models"
)

// headerHeight is the caption band above a heatmap
const headerHeight = 16

var (
	rampLow  = colorful.Color{R: 0.129, G: 0.400, B: 0.675}
	rampMid  = colorful.Color{R: 1, G: 1, B: 1}
	rampHigh = colorful.Color{R: 0.698, G: 0.094, B: 0.169}
)

// GridOptions control heatmap rendering
type GridOptions struct {
	// CellSize is the edge of one grid cell in pixels
	CellSize int
	// Limit is the magnitude mapped to the ends of the colour ramp; zero
	// uses the largest absolute value in the grid
	Limit float64
	// Caption is drawn above the map when non-empty
	Caption string
}

// RampColor maps t in [-1, 1] onto a blue, white, red ramp
func RampColor(t float64) color.RGBA {
	t = math.Max(-1, math.Min(1, t))
	var c colorful.Color
	if t < 0 {
		c = rampMid.BlendLab(rampLow, -t)
	} else {
		c = rampMid.BlendLab(rampHigh, t)
	}
	r, g, b := c.Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// GridImage renders an angular grid as a heatmap. Phi runs left to right and
// theta bottom to top; NaN cells are drawn black.
func GridImage(grid *models.AngularGrid, opts GridOptions) *image.RGBA {
	cell := opts.CellSize
	if cell <= 0 {
		cell = 2
	}
	limit := opts.Limit
	if limit <= 0 {
		for _, v := range grid.Values {
			if !math.IsNaN(v) {
				limit = math.Max(limit, math.Abs(v))
			}
		}
	}
	if limit == 0 {
		limit = 1
	}

	top := 0
	if opts.Caption != "" {
		top = headerHeight
	}
	img := image.NewRGBA(image.Rect(0, 0, grid.NPhi*cell, grid.NTheta*cell+top))
	for i := range img.Pix {
		img.Pix[i] = 255
	}

	for i := 0; i < grid.NPhi; i++ {
		for j := 0; j < grid.NTheta; j++ {
			v := grid.At(i, j)
			c := color.RGBA{A: 255}
			if !math.IsNaN(v) {
				c = RampColor(v / limit)
			}
			y0 := top + (grid.NTheta-1-j)*cell
			for dy := 0; dy < cell; dy++ {
				for dx := 0; dx < cell; dx++ {
					img.SetRGBA(i*cell+dx, y0+dy, c)
				}
			}
		}
	}

	if opts.Caption != "" {
		drawText(img, 2, headerHeight-4, opts.Caption, color.RGBA{0, 0, 0, 255})
	}
	return img
}

// RenderGridPNG writes the heatmap of grid as PNG
func RenderGridPNG(w io.Writer, grid *models.AngularGrid, opts GridOptions) error {
	return png.Encode(w, GridImage(grid, opts))
}

// drawText renders text onto an image with its baseline at y
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
