package param

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefineRespectsLaneBudget(t *testing.T) {
	s := NewStore()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Define(ColorDef(fmt(i), [4]float32{0, 0, 0, 1})))
	}
	// four Colors == 16 lanes exactly, a fifth param of any size overflows.
	require.ErrorIs(t, s.Define(BoolDef("overflow", false)), ErrStoreFull)
}

func fmt(i int) string {
	return string(rune('a' + i))
}

func TestSetClampsToDeclaredBounds(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Define(FloatDef("a", 0, 1, 0.5)))

	require.NoError(t, s.SetFloat("a", 5))
	v, err := s.Get("a")
	require.NoError(t, err)
	require.Equal(t, 1.0, v.Float, "invariant 2: value must stay within [min,max]")

	require.NoError(t, s.SetFloat("a", -5))
	v, _ = s.Get("a")
	require.Equal(t, 0.0, v.Float)
}

func TestSetRejectsTypeMismatch(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Define(FloatDef("a", 0, 1, 0.5)))
	err := s.Set("a", Value{Kind: KindBool, Bool: true})
	require.ErrorIs(t, err, ErrParamType)

	// previous value retained
	v, _ := s.Get("a")
	require.Equal(t, 0.5, v.Float)
}

func TestSetUnknownParam(t *testing.T) {
	s := NewStore()
	require.ErrorIs(t, s.SetFloat("nope", 1), ErrUnknownParam)
}

func TestPackDeterministic(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Define(FloatDef("a", 0, 1, 0.5)))
	require.NoError(t, s.Define(ColorDef("c", [4]float32{1, 0, 0, 1})))

	buf1 := make([]float32, MaxLanes*4)
	buf2 := make([]float32, MaxLanes*4)
	require.NoError(t, s.Pack(buf1))
	require.NoError(t, s.Pack(buf2))
	require.Equal(t, buf1, buf2, "invariant 3: packing must be deterministic")

	require.Equal(t, float32(0.5), buf1[0])
	require.Equal(t, float32(1), buf1[1])
	require.Equal(t, float32(0), buf1[2])
	require.Equal(t, float32(0), buf1[3])
	require.Equal(t, float32(1), buf1[4])
	// unused trailing lanes (5 used, 11 free) are zeroed
	require.Equal(t, float32(0), buf1[8])
}

func TestLaneIndexMatchesAccessorContract(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Define(ColorDef("c", [4]float32{})))
	require.NoError(t, s.Define(FloatDef("a", 0, 1, 0.5)))

	v4, lane, ok := s.Lane("a")
	require.True(t, ok)
	require.Equal(t, 1, v4, "a starts at lane 4, vec4 index 1")
	require.Equal(t, 0, lane)
}

func TestPackBufferTooSmall(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Define(FloatDef("a", 0, 1, 0.5)))
	err := s.Pack(make([]float32, 4))
	require.Error(t, err)
}
