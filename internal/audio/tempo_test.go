package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTempoEstimatorNotReadyEarly(t *testing.T) {
	te := NewTempoEstimator(0.01)
	for i := 0; i < 10; i++ {
		te.Push(0.0)
	}
	_, _, ok := te.Estimate()
	require.False(t, ok)
}

func TestTempoEstimatorReturnsWithinValidRange(t *testing.T) {
	te := NewTempoEstimator(0.01)
	// Periodic onset train at roughly 120 BPM (period 0.5s => 50 hops).
	period := 50
	for i := 0; i < tempoWindowFrames; i++ {
		if i%period == 0 {
			te.Push(1.0)
		} else {
			te.Push(0.0)
		}
	}
	bpm, confidence, ok := te.Estimate()
	require.True(t, ok)
	require.GreaterOrEqual(t, bpm, tempoMinBPM)
	require.LessOrEqual(t, bpm, tempoMaxBPM)
	require.GreaterOrEqual(t, confidence, 0.0)
	require.LessOrEqual(t, confidence, 1.0)
}

func TestTempoPriorPeaksAtPriorBPM(t *testing.T) {
	require.Greater(t, tempoPrior(tempoPriorBPM), tempoPrior(tempoPriorBPM*2))
	require.Greater(t, tempoPrior(tempoPriorBPM), tempoPrior(tempoPriorBPM/2))
}
