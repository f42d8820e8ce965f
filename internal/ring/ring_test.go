package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewBufferRoundsUpToPow2(t *testing.T) {
	b := NewBuffer(100)
	require.Equal(t, 128, b.Cap())
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := NewBuffer(16)
	in := []float32{1, 2, 3, 4, 5}
	dropped := b.Write(in)
	require.Zero(t, dropped)
	require.Equal(t, 5, b.Len())

	out := make([]float32, 5)
	n := b.Read(out)
	require.Equal(t, 5, n)
	require.Equal(t, in, out)
	require.Zero(t, b.Len())
}

func TestWriteOverflowDropsOldest(t *testing.T) {
	b := NewBuffer(4)
	b.Write([]float32{1, 2, 3, 4})
	dropped := b.Write([]float32{5, 6})
	require.Equal(t, 2, dropped)

	out := make([]float32, 4)
	n := b.Read(out)
	require.Equal(t, 4, n)
	require.Equal(t, []float32{3, 4, 5, 6}, out)
}

func TestPeekDoesNotConsume(t *testing.T) {
	b := NewBuffer(8)
	b.Write([]float32{1, 2, 3, 4})

	out := make([]float32, 4)
	n := b.Peek(out)
	require.Equal(t, 4, n)
	require.Equal(t, 4, b.Len(), "peek must not consume")

	n2 := b.Read(out)
	require.Equal(t, 4, n2)
	require.Equal(t, 0, b.Len())
}

func TestPeekReturnsMostRecentWindow(t *testing.T) {
	b := NewBuffer(16)
	b.Write([]float32{1, 2, 3, 4, 5, 6})

	out := make([]float32, 3)
	n := b.Peek(out)
	require.Equal(t, 3, n)
	require.Equal(t, []float32{4, 5, 6}, out, "peek should return the tail-most window")
}

func TestReadPartialWhenLessAvailable(t *testing.T) {
	b := NewBuffer(8)
	b.Write([]float32{1, 2})
	out := make([]float32, 8)
	n := b.Read(out)
	require.Equal(t, 2, n)
}
