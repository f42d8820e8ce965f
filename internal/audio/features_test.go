package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeaturesClampRange(t *testing.T) {
	f := Features{SubBass: 1.5, Bass: -0.5, RMS: math.NaN(), BPM: 0.5}
	f.Clamp()
	require.Equal(t, 1.0, f.SubBass)
	require.Equal(t, 0.0, f.Bass)
	require.Equal(t, 0.0, f.RMS, "NaN must clamp to 0, never propagate")
	require.Equal(t, 0.5, f.BPM)
}

func TestFeaturesToArrayOrder(t *testing.T) {
	f := Features{SubBass: 1, Bass: 2, LowMid: 3, BeatStrength: 20}
	arr := f.ToArray()
	require.Len(t, arr, 20)
	require.Equal(t, float32(1), arr[0])
	require.Equal(t, float32(2), arr[1])
	require.Equal(t, float32(3), arr[2])
	require.Equal(t, float32(20), arr[19])
}

func TestParticleSubsetLength(t *testing.T) {
	f := Features{}
	require.Len(t, f.ParticleSubset(), 10)
}
