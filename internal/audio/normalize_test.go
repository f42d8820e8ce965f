package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannelNormalizeFirstSampleIsZero(t *testing.T) {
	var c channel
	require.Equal(t, 0.0, c.normalize(5.0), "first observation seeds [min,max] around itself")
}

func TestChannelNormalizeTracksRange(t *testing.T) {
	var c channel
	c.normalize(0.0)
	for i := 0; i < 500; i++ {
		c.normalize(10.0)
	}
	v := c.normalize(10.0)
	require.InDelta(t, 1.0, v, 0.05, "after the max adapts upward, a repeated peak sample normalizes near 1")
}

func TestChannelNormalizeClampedToUnitRange(t *testing.T) {
	var c channel
	for i := 0; i < 100; i++ {
		c.normalize(float64(i))
	}
	require.GreaterOrEqual(t, c.normalize(-1000), 0.0)
	require.LessOrEqual(t, c.normalize(1000), 1.0)
}

func TestNormalizerAppliesAllChannelsIndependently(t *testing.T) {
	n := newNormalizer()
	var raw [normalizerFieldCount]float64
	raw[fieldSubBass] = 1
	raw[fieldRMS] = 100
	out := n.apply(raw)
	require.Equal(t, 0.0, out[fieldSubBass])
	require.Equal(t, 0.0, out[fieldRMS])
}
