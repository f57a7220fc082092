// Package scoring turns an atlas's angular distance grid into a single
// discrepancy score (the Q-value) against its peers.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"atlasqc/internal/models"
	"atlasqc/pkg/spherical"
)

const (
	// HistogramBins is the number of Z-score bins
	HistogramBins = 500
	// HistogramLimit bounds the binned Z-score range to [-limit, limit]
	HistogramLimit = 15.0
)

// Gaussian is a scaled normal density a*N(x; Mean, Sigma)
type Gaussian struct {
	Amplitude float64
	Mean      float64
	Sigma     float64
}

// At evaluates the curve
func (g Gaussian) At(x float64) float64 {
	return gaussianCurve(x, g.Amplitude, g.Mean, g.Sigma)
}

// Result is the outcome of scoring one atlas
type Result struct {
	// Q is the tail-weighted excess area between the Z density and its fit
	Q float64

	// Z holds the finite Z-scores of every grid cell
	Z []float64

	Centers []float64
	Density []float64
	Fit     Gaussian

	// InRange counts Z-scores that fell inside the histogram range
	InRange int
	// ReplacedCells and Fallback describe the zero-dispersion guard
	ReplacedCells int
	Fallback      float64
}

// Engine scores grids against leave-one-out reference sets
type Engine struct {
	Dispersion Dispersion

	// Smooth enables Gaussian smoothing of the scored grid before Z-scoring
	Smooth      bool
	SmoothSigma float64
}

// NewEngine creates a score engine
func NewEngine(dispersion Dispersion, smooth bool, sigma float64) *Engine {
	return &Engine{Dispersion: dispersion, Smooth: smooth, SmoothSigma: sigma}
}

// Score computes the Q-value of own against refs
func (e *Engine) Score(own *models.AngularGrid, refs []*models.AngularGrid) (*Result, error) {
	ref, err := ReferenceStats(refs, e.Dispersion)
	if err != nil {
		return nil, err
	}
	if len(own.Values) != len(ref.Location) {
		return nil, fmt.Errorf("grid has %d cells, reference set has %d", len(own.Values), len(ref.Location))
	}
	if e.Smooth {
		own = spherical.Smooth(own, e.SmoothSigma)
	}

	z := make([]float64, 0, len(own.Values))
	for c, v := range own.Values {
		s := (v - ref.Location[c]) / ref.Dispersion[c]
		if math.IsNaN(s) || math.IsInf(s, 0) {
			continue
		}
		z = append(z, s)
	}

	res := &Result{
		Z:             z,
		ReplacedCells: ref.Replaced,
		Fallback:      ref.Fallback,
	}
	res.Centers, res.Density, res.InRange = Histogram(z)
	res.Fit = FitGaussian(res.Centers, res.Density, z)
	res.Q = QValue(res.Centers, res.Density, res.Fit)
	return res, nil
}

// Histogram bins z into HistogramBins equal bins over [-HistogramLimit,
// HistogramLimit] and normalises to a density. The last bin is closed and
// values outside the range are ignored. It returns the bin centres, the
// densities and the number of values counted.
func Histogram(z []float64) (centers, density []float64, inRange int) {
	edges := floats.Span(make([]float64, HistogramBins+1), -HistogramLimit, HistogramLimit)
	centers = make([]float64, HistogramBins)
	for i := range centers {
		centers[i] = (edges[i] + edges[i+1]) / 2
	}
	density = make([]float64, HistogramBins)

	sorted := make([]float64, 0, len(z))
	for _, v := range z {
		if v >= -HistogramLimit && v <= HistogramLimit {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return centers, density, 0
	}
	sort.Float64s(sorted)

	dividers := make([]float64, len(edges))
	copy(dividers, edges)
	dividers[len(dividers)-1] = math.Nextafter(HistogramLimit, math.Inf(1))
	stat.Histogram(density, dividers, sorted, nil)

	n := float64(len(sorted))
	for i := range density {
		density[i] /= n * (edges[i+1] - edges[i])
	}
	return centers, density, len(sorted)
}

// FitGaussian least-squares fits a*N(x; m, s) to the density. z seeds the
// mean and width. A fit that does not produce finite parameters yields the
// zero curve.
func FitGaussian(centers, density, z []float64) Gaussian {
	if floats.Sum(density) == 0 {
		return Gaussian{}
	}
	binWidth := centers[1] - centers[0]
	m0, s0 := 0.0, binWidth
	if len(z) > 0 {
		m0, s0 = stat.PopMeanStdDev(z, nil)
		s0 = math.Max(s0, binWidth)
	}

	sse := func(p []float64) float64 {
		var sum float64
		for i, x := range centers {
			r := density[i] - gaussianCurve(x, p[0], p[1], p[2])
			sum += r * r
		}
		return sum
	}
	problem := optimize.Problem{Func: sse}
	result, err := optimize.Minimize(problem, []float64{1, m0, s0}, nil, &optimize.NelderMead{})
	if result == nil || (err != nil && len(result.X) == 0) {
		return Gaussian{}
	}
	g := Gaussian{Amplitude: result.X[0], Mean: result.X[1], Sigma: sigmaFloor(result.X[2])}
	if !finite(g.Amplitude) || !finite(g.Mean) || !finite(g.Sigma) {
		return Gaussian{}
	}
	return g
}

// QValue integrates |density - fit| * x^2 over the bin centres with the
// trapezoid rule
func QValue(centers, density []float64, fit Gaussian) float64 {
	integrand := make([]float64, len(centers))
	for i, x := range centers {
		diff := math.Abs(density[i] - fit.At(x))
		if !finite(diff) {
			diff = density[i]
		}
		integrand[i] = diff * x * x
	}
	return integrate.Trapezoidal(centers, integrand)
}

func gaussianCurve(x, a, m, s float64) float64 {
	s = sigmaFloor(s)
	d := (x - m) / s
	return a * math.Exp(-0.5*d*d) / (s * math.Sqrt(2*math.Pi))
}

func sigmaFloor(s float64) float64 {
	return math.Max(math.Abs(s), 1e-9)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
