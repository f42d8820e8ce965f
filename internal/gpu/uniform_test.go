package gpu

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameUniformsPackSize(t *testing.T) {
	var fu FrameUniforms
	buf := make([]byte, FrameUniformSize)
	require.NoError(t, fu.Pack(buf))
	require.Len(t, buf, 256)
}

func TestFrameUniformsPackDeterministic(t *testing.T) {
	fu := FrameUniforms{
		Time:       1.0,
		DeltaTime:  0.016,
		Resolution: [2]float32{1920, 1080},
	}
	for i := range fu.Audio {
		fu.Audio[i] = 0.5
	}
	buf1 := make([]byte, FrameUniformSize)
	buf2 := make([]byte, FrameUniformSize)
	require.NoError(t, fu.Pack(buf1))
	require.NoError(t, fu.Pack(buf2))
	require.Equal(t, buf1, buf2, "invariant 3: pack must be bit-identical for equal inputs")
}

func TestFrameUniformsPackTooSmall(t *testing.T) {
	var fu FrameUniforms
	err := fu.Pack(make([]byte, 10))
	require.Error(t, err)
}

func TestParticleUniformsPackSize(t *testing.T) {
	var pu ParticleUniforms
	buf := make([]byte, ParticleUniformSize)
	require.NoError(t, pu.Pack(buf))
	require.Len(t, buf, 128)
}

func TestParticleUniformsPackDeterministic(t *testing.T) {
	pu := ParticleUniforms{EmitterShape: EmitterRing, Seed: 42, BurstOnBeat: true}
	buf1 := make([]byte, ParticleUniformSize)
	buf2 := make([]byte, ParticleUniformSize)
	require.NoError(t, pu.Pack(buf1))
	require.NoError(t, pu.Pack(buf2))
	require.Equal(t, buf1, buf2)
}
