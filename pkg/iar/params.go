package iar

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"atlasqc/pkg/consensus"
	"atlasqc/pkg/scoring"
)

// ErrConfig marks a fatal configuration error. No iteration runs after it.
var ErrConfig = errors.New("iar: configuration error")

// ErrUnknownOutlierRule is returned for an unsupported outlier rule name
var ErrUnknownOutlierRule = errors.New("unknown outlier rule")

// MinPoolSize is the smallest pool that can be scored leave-one-out
const MinPoolSize = 2

// OutlierRule selects how the removal threshold is derived from Q-values
type OutlierRule int

const (
	// IQR sets the threshold at p75 + factor*(p75 - p25)
	IQR OutlierRule = iota + 1
	// MeanStd sets the threshold at mean + factor*std
	MeanStd
)

// ParseOutlierRule accepts "iqr" or "std" in any case
func ParseOutlierRule(name string) (OutlierRule, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "iqr":
		return IQR, nil
	case "std":
		return MeanStd, nil
	default:
		return 0, fmt.Errorf("%w: %q (must be one of: IQR, STD)", ErrUnknownOutlierRule, name)
	}
}

func (r OutlierRule) String() string {
	switch r {
	case IQR:
		return "IQR"
	case MeanStd:
		return "STD"
	default:
		return fmt.Sprintf("OutlierRule(%d)", int(r))
	}
}

// ResolutionSchedule picks the angular grid step from the pool size
type ResolutionSchedule struct {
	// Step sizes in degrees
	Fine, Intermediate, Coarse float64

	// Pools smaller than IntermediateBelow use Intermediate, smaller than
	// CoarseBelow use Coarse
	IntermediateBelow int
	CoarseBelow       int
}

// DefaultResolutionSchedule is 1 degree for 12 or more atlases, 3 degrees
// below 12 and 6 degrees below 7
func DefaultResolutionSchedule() ResolutionSchedule {
	return ResolutionSchedule{
		Fine:              1,
		Intermediate:      3,
		Coarse:            6,
		IntermediateBelow: 12,
		CoarseBelow:       7,
	}
}

// For returns the grid step for a pool of n atlases
func (s ResolutionSchedule) For(n int) float64 {
	switch {
	case n < s.CoarseBelow:
		return s.Coarse
	case n < s.IntermediateBelow:
		return s.Intermediate
	default:
		return s.Fine
	}
}

// Params holds the configuration of one IAR run
type Params struct {
	// Structure is the label name evaluated in every atlas (required)
	Structure string

	// ZScore names the dispersion estimator: "MAD" or "std"
	ZScore string

	// OutlierMethod names the threshold rule: "IQR" or "std"
	OutlierMethod string

	// MinBestAtlases is the minimum size of the best-scoring subset used to
	// estimate the threshold
	MinBestAtlases int

	// OutlierFactor multiplies the IQR or standard deviation
	OutlierFactor float64

	// SmoothMaps enables Gaussian smoothing of each scored grid
	SmoothMaps  bool
	SmoothSigma float64

	// LogFile is the run log path. {time} and {structure} are substituted.
	LogFile string

	// SingleStep returns after the first removal round
	SingleStep bool

	// KeepIterationData retains each round's grids and consensus volume in
	// Result.Iterations. Otherwise they are released once observers return.
	KeepIterationData bool

	Verbose bool
	Debug   bool

	// NumCores bounds per-atlas concurrency
	NumCores int

	// TestThreshold reduces each candidate label; ConsensusThreshold reduces
	// the combined probability
	TestThreshold      float64
	ConsensusThreshold float64

	Resolution ResolutionSchedule

	// Combiner builds the consensus; nil means consensus.Mean
	Combiner consensus.Combiner

	Observers []Observer

	// Logger receives progress output; nil prints to stdout
	Logger *log.Logger

	// Now stamps the log path; nil means time.Now
	Now func() time.Time
}

// DefaultParams returns the standard configuration for structure
func DefaultParams(structure string) *Params {
	return &Params{
		Structure:          structure,
		ZScore:             "MAD",
		OutlierMethod:      "IQR",
		MinBestAtlases:     10,
		OutlierFactor:      1.5,
		SmoothSigma:        1,
		LogFile:            "IAR_{time}.log",
		NumCores:           4,
		TestThreshold:      0.1,
		ConsensusThreshold: 1,
		Resolution:         DefaultResolutionSchedule(),
	}
}

// methods parses the estimator and rule names
func (p *Params) methods() (scoring.Dispersion, OutlierRule, error) {
	d, err := scoring.ParseDispersion(p.ZScore)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	r, err := ParseOutlierRule(p.OutlierMethod)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return d, r, nil
}

// logPath expands the LogFile template
func (p *Params) logPath(now time.Time) string {
	path := p.LogFile
	if path == "" {
		path = "IAR_{time}.log"
	}
	path = strings.ReplaceAll(path, "{time}", now.Format("20060102T150405"))
	return strings.ReplaceAll(path, "{structure}", p.Structure)
}
