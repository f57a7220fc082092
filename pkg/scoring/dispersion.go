package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"atlasqc/internal/models"
)

// Dispersion selects the cell-wise location/dispersion estimator
type Dispersion int

const (
	// StdDev uses the mean and population standard deviation
	StdDev Dispersion = iota + 1
	// MAD uses the median and the scaled median absolute deviation
	MAD
)

// MADScale makes the MAD a consistent estimator of the standard deviation
// for normally distributed data
const MADScale = 1.4826

// ErrUnknownDispersion is returned for an unsupported estimator name
var ErrUnknownDispersion = errors.New("unknown dispersion estimator")

// ParseDispersion accepts "std" or "mad" in any case
func ParseDispersion(name string) (Dispersion, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "std":
		return StdDev, nil
	case "mad":
		return MAD, nil
	default:
		return 0, fmt.Errorf("%w: %q (must be one of: MAD, STD)", ErrUnknownDispersion, name)
	}
}

func (d Dispersion) String() string {
	switch d {
	case StdDev:
		return "STD"
	case MAD:
		return "MAD"
	default:
		return fmt.Sprintf("Dispersion(%d)", int(d))
	}
}

// Valid reports whether d is a known estimator
func (d Dispersion) Valid() bool {
	return d == StdDev || d == MAD
}

// Reference holds cell-wise statistics of a leave-one-out reference set
type Reference struct {
	Location   []float64
	Dispersion []float64

	// Replaced counts cells whose dispersion was zero or not finite
	Replaced int
	// Fallback is the dispersion substituted into replaced cells
	Fallback float64
}

// ReferenceStats computes location and dispersion per grid cell across refs.
// Zero or non-finite dispersions are replaced by the mean (StdDev) or median
// (MAD) of the well-defined ones, or by 1 when no cell is well defined.
func ReferenceStats(refs []*models.AngularGrid, d Dispersion) (*Reference, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnknownDispersion, d)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("empty reference set")
	}
	nCells := len(refs[0].Values)
	for _, g := range refs[1:] {
		if len(g.Values) != nCells {
			return nil, fmt.Errorf("reference grids differ in size: %d and %d cells", nCells, len(g.Values))
		}
	}

	ref := &Reference{
		Location:   make([]float64, nCells),
		Dispersion: make([]float64, nCells),
	}
	column := make([]float64, len(refs))
	for c := 0; c < nCells; c++ {
		for k, g := range refs {
			column[k] = g.Values[c]
		}
		switch d {
		case StdDev:
			ref.Location[c], ref.Dispersion[c] = stat.PopMeanStdDev(column, nil)
		case MAD:
			median, err := stats.Median(column)
			if err != nil {
				return nil, fmt.Errorf("median of cell %d: %w", c, err)
			}
			mad, err := stats.MedianAbsoluteDeviation(column)
			if err != nil {
				return nil, fmt.Errorf("MAD of cell %d: %w", c, err)
			}
			ref.Location[c], ref.Dispersion[c] = median, MADScale*mad
		}
	}

	var good []float64
	for _, v := range ref.Dispersion {
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			good = append(good, v)
		}
	}
	if len(good) == len(ref.Dispersion) {
		return ref, nil
	}

	ref.Fallback = 1
	if len(good) > 0 {
		if d == StdDev {
			ref.Fallback = stat.Mean(good, nil)
		} else {
			ref.Fallback, _ = stats.Median(good)
		}
	}
	for c, v := range ref.Dispersion {
		if !(v > 0) || math.IsInf(v, 0) {
			ref.Dispersion[c] = ref.Fallback
			ref.Replaced++
		}
	}
	return ref, nil
}
