// Package consensus combines the labels of an atlas pool into a single
// probability volume.
package consensus

import (
	"fmt"

	"atlasqc/internal/models"
)

// Combiner builds a consensus probability volume for one structure
type Combiner interface {
	Combine(set *models.AtlasSet, structure string) (*models.Volume, error)
}

// CombinerFunc adapts a function to the Combiner interface
type CombinerFunc func(set *models.AtlasSet, structure string) (*models.Volume, error)

// Combine calls f
func (f CombinerFunc) Combine(set *models.AtlasSet, structure string) (*models.Volume, error) {
	return f(set, structure)
}

// Mean averages the label values of every atlas voxel-wise. Where all
// binary labels agree on foreground the result is exactly 1.
var Mean Combiner = CombinerFunc(func(set *models.AtlasSet, structure string) (*models.Volume, error) {
	labels, err := poolLabels(set, structure)
	if err != nil {
		return nil, err
	}
	out := models.NewVolumeLike(labels[0])
	for _, l := range labels {
		for i, v := range l.Data {
			out.Data[i] += v
		}
	}
	n := float64(len(labels))
	for i := range out.Data {
		out.Data[i] /= n
	}
	return out, nil
})

// MajorityVote returns, per voxel, the fraction of atlases whose label is at
// least half of that atlas's maximum
var MajorityVote Combiner = CombinerFunc(func(set *models.AtlasSet, structure string) (*models.Volume, error) {
	labels, err := poolLabels(set, structure)
	if err != nil {
		return nil, err
	}
	out := models.NewVolumeLike(labels[0])
	for _, l := range labels {
		maxVal := l.Max()
		if maxVal <= 0 {
			continue
		}
		for i, v := range l.Data {
			if v/maxVal >= 0.5 {
				out.Data[i]++
			}
		}
	}
	n := float64(len(labels))
	for i := range out.Data {
		out.Data[i] /= n
	}
	return out, nil
})

// ByName returns the combiner registered under name
func ByName(name string) (Combiner, error) {
	switch name {
	case "", "mean":
		return Mean, nil
	case "vote", "majority":
		return MajorityVote, nil
	default:
		return nil, fmt.Errorf("unknown consensus method %q", name)
	}
}

func poolLabels(set *models.AtlasSet, structure string) ([]*models.Volume, error) {
	if set.Len() == 0 {
		return nil, fmt.Errorf("cannot combine an empty atlas pool")
	}
	return set.Labels(structure)
}
