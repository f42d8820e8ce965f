package audio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPipelineNotReadyBeforeWindowFills(t *testing.T) {
	p := NewPipeline(44100, hopSize)
	require.False(t, p.Ready())
}

func TestPipelineStepOnSilenceStaysInRange(t *testing.T) {
	p := NewPipeline(44100, hopSize)
	silence := make([]float32, hopSize)
	for i := 0; i < (windowLarge/hopSize)+2; i++ {
		p.Push(silence)
	}
	require.True(t, p.Ready())

	f := p.Step()
	val := f.ToArray()
	for _, v := range val {
		require.GreaterOrEqual(t, v, float32(0))
		require.LessOrEqual(t, v, float32(1))
	}
}

func TestPipelineBPMStartsAtPriorAndStaysInRange(t *testing.T) {
	p := NewPipeline(44100, hopSize)
	require.InDelta(t, tempoPriorBPM, p.BPM(), 1e-9)

	silence := make([]float32, hopSize)
	for i := 0; i < (windowLarge/hopSize)+2; i++ {
		p.Push(silence)
		if p.Ready() {
			p.Step()
		}
	}
	require.GreaterOrEqual(t, p.BPM(), tempoMinBPM)
	require.LessOrEqual(t, p.BPM(), tempoMaxBPM)
}

func TestPipelineBPMFeatureNormalizationMatchesBPMOver300(t *testing.T) {
	p := NewPipeline(44100, hopSize)
	silence := make([]float32, hopSize)
	for i := 0; i < (windowLarge/hopSize)+2; i++ {
		p.Push(silence)
	}
	require.True(t, p.Ready())

	// A locked 120 BPM estimate (no tempo change on silent input) must
	// normalize so that bpm*300 lands within [118,122].
	p.lastBPM = 120
	f := p.Step()
	require.InDelta(t, 120.0, f.BPM*300, 2.0)
}
