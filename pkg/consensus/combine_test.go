package consensus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"atlasqc/internal/models"
)

func atlasWith(id string, values ...float64) *models.Atlas {
	vol := models.NewVolume(len(values), 1, 1, r3.Vec{X: 1, Y: 1, Z: 1}, r3.Vec{})
	copy(vol.Data, values)
	return &models.Atlas{ID: id, Labels: map[string]*models.Volume{"heart": vol}}
}

func TestMean(t *testing.T) {
	set, err := models.NewAtlasSet(
		atlasWith("a", 1, 1, 0, 0),
		atlasWith("b", 1, 0, 0, 1),
		atlasWith("c", 1, 1, 0, 0),
	)
	require.NoError(t, err)

	got, err := Mean.Combine(set, "heart")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Data[0], "unanimous voxels are exactly one")
	assert.InDelta(t, 2.0/3.0, got.Data[1], 1e-12)
	assert.Equal(t, 0.0, got.Data[2])
	assert.InDelta(t, 1.0/3.0, got.Data[3], 1e-12)
}

func TestMajorityVoteUsesPerAtlasScale(t *testing.T) {
	set, err := models.NewAtlasSet(
		atlasWith("a", 255, 0),
		atlasWith("b", 0.8, 0.2),
	)
	require.NoError(t, err)

	got, err := MajorityVote.Combine(set, "heart")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.Data[0])
	assert.Equal(t, 0.0, got.Data[1])
}

func TestCombineErrors(t *testing.T) {
	_, err := Mean.Combine(&models.AtlasSet{}, "heart")
	assert.Error(t, err)

	set, err := models.NewAtlasSet(atlasWith("a", 1))
	require.NoError(t, err)
	_, err = MajorityVote.Combine(set, "lung")
	assert.Error(t, err)
}

func TestByName(t *testing.T) {
	c, err := ByName("vote")
	require.NoError(t, err)
	assert.NotNil(t, c)

	_, err = ByName("staple")
	assert.Error(t, err)
}
