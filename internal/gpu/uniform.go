// Package gpu packs the per-frame uniform blocks consumed by effect shaders
// and the particle compute shader, and wraps the GPU-side buffer objects
// and bind groups that carry them (§4.3 of the design).
//
// The byte layout below is this engine's own contract, not a reflection of
// any particular WGSL/GLSL compiler's std140 rules: scalar fields are
// packed tightly in declaration order and the block is padded at the end
// to a round, cache-friendly size. That is what "implementer-observable,
// bit-stable" means in the design notes — any two implementations that
// follow this file agree byte-for-byte.
package gpu

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FrameUniformSize is the exact size, in bytes, of the per-layer uniform
// block (§4.3: "Total: 256 bytes exactly").
const FrameUniformSize = 256

// ParticleUniformSize is the exact size, in bytes, of the particle compute
// uniform block (§4.3).
const ParticleUniformSize = 128

// NumAudioFeatures is the number of scalar AudioFeatures fields packed into
// the frame uniform block, in the order fixed by spec §3.
const NumAudioFeatures = 20

// AudioFeatureOrder lists the 20 AudioFeatures fields in packing order.
var AudioFeatureOrder = [NumAudioFeatures]string{
	"sub_bass", "bass", "low_mid", "mid", "upper_mid", "presence", "brilliance",
	"rms", "kick",
	"centroid", "flux", "flatness", "rolloff", "bandwidth", "zcr",
	"onset", "beat", "beat_phase", "bpm", "beat_strength",
}

// Byte offsets within the 256-byte frame uniform block.
const (
	offTime        = 0
	offDeltaTime   = 4
	offResolution  = 8  // vec2, 8 bytes
	offAudio       = 16 // 20 x f32, 80 bytes
	offParams      = 96 // array<vec4f,4>, 64 bytes
	offFeedback    = 160
	offFrameIndex  = 164
	frameUsedBytes = 168
)

// FrameUniforms is the Go-side mirror of the per-layer GPU uniform block.
type FrameUniforms struct {
	Time       float32
	DeltaTime  float32
	Resolution [2]float32

	// Audio holds the 20 AudioFeatures scalars in AudioFeatureOrder.
	Audio [NumAudioFeatures]float32

	// Params is the packed 16-lane parameter block (see internal/param).
	Params [16]float32

	FeedbackDecay float32
	FrameIndex    uint32
}

// Pack writes fu into buf (which must be at least FrameUniformSize bytes)
// using a fixed little-endian layout. Packing is deterministic: the same
// FrameUniforms value always produces the same bytes (spec invariant 3).
func (fu FrameUniforms) Pack(buf []byte) error {
	if len(buf) < FrameUniformSize {
		return errTooSmall(FrameUniformSize, len(buf))
	}
	for i := range buf[:FrameUniformSize] {
		buf[i] = 0
	}
	putF32(buf, offTime, fu.Time)
	putF32(buf, offDeltaTime, fu.DeltaTime)
	putF32(buf, offResolution, fu.Resolution[0])
	putF32(buf, offResolution+4, fu.Resolution[1])
	for i, v := range fu.Audio {
		putF32(buf, offAudio+i*4, v)
	}
	for i, v := range fu.Params {
		putF32(buf, offParams+i*4, v)
	}
	putF32(buf, offFeedback, fu.FeedbackDecay)
	putF32(buf, offFrameIndex, math.Float32frombits(fu.FrameIndex))
	return nil
}

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
}

// ParticleEmitterShape enumerates emitter geometries (§4.5).
type ParticleEmitterShape uint32

const (
	EmitterPoint ParticleEmitterShape = iota
	EmitterRing
	EmitterLine
	EmitterScreen
	EmitterImage
)

// ParticleUniforms is the Go-side mirror of the 128-byte particle compute
// uniform block: a 10-field audio subset plus emitter geometry, seed, and
// resolution for aspect correction.
type ParticleUniforms struct {
	// Audio subset, in this fixed order: sub_bass, bass, mid, rms, kick,
	// onset, centroid, flux, beat, beat_phase.
	Audio [10]float32

	EmitterPos    [2]float32
	EmitterRadius float32
	EmitterShape  ParticleEmitterShape

	Seed       uint32
	Resolution [2]float32

	EmitBudget float32
	DeltaTime  float32
	Time       float32
	FrameIndex uint32

	Gravity            [2]float32
	Drag               float32
	Turbulence         float32
	AttractionStrength float32
	Lifetime           float32
	InitialSpeed       float32
	SizeStart          float32
	SizeEnd            float32
	BurstOnBeat        bool
}

// Particle compute uniform byte offsets.
const (
	pOffAudio       = 0  // 10 x f32, 40 bytes
	pOffEmitterPos  = 40 // vec2, 8 bytes
	pOffEmitterRad  = 48
	pOffEmitterSh   = 52
	pOffSeed        = 56
	pOffResolution  = 60 // vec2, 8 bytes
	pOffEmitBudget  = 68
	pOffDeltaTime   = 72
	pOffTime        = 76
	pOffFrameIndex  = 80
	pOffGravity     = 84 // vec2, 8 bytes
	pOffDrag        = 92
	pOffTurbulence  = 96
	pOffAttraction  = 100
	pOffLifetime    = 104
	pOffInitSpeed   = 108
	pOffSizeStart   = 112
	pOffSizeEnd     = 116
	pOffBurstOnBeat = 120
)

// Pack writes pu into buf (which must be at least ParticleUniformSize
// bytes) using a fixed little-endian layout.
func (pu ParticleUniforms) Pack(buf []byte) error {
	if len(buf) < ParticleUniformSize {
		return errTooSmall(ParticleUniformSize, len(buf))
	}
	for i := range buf[:ParticleUniformSize] {
		buf[i] = 0
	}
	for i, v := range pu.Audio {
		putF32(buf, pOffAudio+i*4, v)
	}
	putF32(buf, pOffEmitterPos, pu.EmitterPos[0])
	putF32(buf, pOffEmitterPos+4, pu.EmitterPos[1])
	putF32(buf, pOffEmitterRad, pu.EmitterRadius)
	binary.LittleEndian.PutUint32(buf[pOffEmitterSh:pOffEmitterSh+4], uint32(pu.EmitterShape))
	binary.LittleEndian.PutUint32(buf[pOffSeed:pOffSeed+4], pu.Seed)
	putF32(buf, pOffResolution, pu.Resolution[0])
	putF32(buf, pOffResolution+4, pu.Resolution[1])
	putF32(buf, pOffEmitBudget, pu.EmitBudget)
	putF32(buf, pOffDeltaTime, pu.DeltaTime)
	putF32(buf, pOffTime, pu.Time)
	binary.LittleEndian.PutUint32(buf[pOffFrameIndex:pOffFrameIndex+4], pu.FrameIndex)
	putF32(buf, pOffGravity, pu.Gravity[0])
	putF32(buf, pOffGravity+4, pu.Gravity[1])
	putF32(buf, pOffDrag, pu.Drag)
	putF32(buf, pOffTurbulence, pu.Turbulence)
	putF32(buf, pOffAttraction, pu.AttractionStrength)
	putF32(buf, pOffLifetime, pu.Lifetime)
	putF32(buf, pOffInitSpeed, pu.InitialSpeed)
	putF32(buf, pOffSizeStart, pu.SizeStart)
	putF32(buf, pOffSizeEnd, pu.SizeEnd)
	if pu.BurstOnBeat {
		putF32(buf, pOffBurstOnBeat, 1)
	}
	return nil
}

func errTooSmall(want, got int) error {
	return fmt.Errorf("gpu: pack buffer too small: want %d bytes, got %d", want, got)
}
