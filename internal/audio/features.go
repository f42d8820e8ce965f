// Package audio implements the capture → multi-resolution spectral
// analysis → adaptive normalization → beat/tempo pipeline (spec §4.1,
// §4.2) and the Front that owns the capture device and publishes
// AudioFeatures snapshots to the engine loop (spec §2 component E).
package audio

// Features is one immutable analysis-frame snapshot: twenty scalar fields
// in [0,1], in the field order fixed by spec §3 / gpu.AudioFeatureOrder.
type Features struct {
	SubBass, Bass, LowMid, Mid, UpperMid, Presence, Brilliance float64
	RMS, Kick                                                  float64
	Centroid, Flux, Flatness, Rolloff, Bandwidth, ZCR          float64
	Onset, Beat, BeatPhase, BPM, BeatStrength                  float64
}

// Clamp clamps every field to [0,1] in place (spec §3 invariant).
func (f *Features) Clamp() {
	f.SubBass = clamp01(f.SubBass)
	f.Bass = clamp01(f.Bass)
	f.LowMid = clamp01(f.LowMid)
	f.Mid = clamp01(f.Mid)
	f.UpperMid = clamp01(f.UpperMid)
	f.Presence = clamp01(f.Presence)
	f.Brilliance = clamp01(f.Brilliance)
	f.RMS = clamp01(f.RMS)
	f.Kick = clamp01(f.Kick)
	f.Centroid = clamp01(f.Centroid)
	f.Flux = clamp01(f.Flux)
	f.Flatness = clamp01(f.Flatness)
	f.Rolloff = clamp01(f.Rolloff)
	f.Bandwidth = clamp01(f.Bandwidth)
	f.ZCR = clamp01(f.ZCR)
	f.Onset = clamp01(f.Onset)
	f.Beat = clamp01(f.Beat)
	f.BeatPhase = clamp01(f.BeatPhase)
	f.BPM = clamp01(f.BPM)
	f.BeatStrength = clamp01(f.BeatStrength)
}

func clamp01(x float64) float64 {
	if x != x { // NaN guard: a feature must never publish NaN (boundary behavior, §8)
		return 0
	}
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// ToArray returns the 20 fields in the fixed packing order (matches
// gpu.AudioFeatureOrder) for uniform packing.
func (f Features) ToArray() [20]float32 {
	return [20]float32{
		float32(f.SubBass), float32(f.Bass), float32(f.LowMid), float32(f.Mid),
		float32(f.UpperMid), float32(f.Presence), float32(f.Brilliance),
		float32(f.RMS), float32(f.Kick),
		float32(f.Centroid), float32(f.Flux), float32(f.Flatness), float32(f.Rolloff),
		float32(f.Bandwidth), float32(f.ZCR),
		float32(f.Onset), float32(f.Beat), float32(f.BeatPhase), float32(f.BPM),
		float32(f.BeatStrength),
	}
}

// ParticleSubset returns the 10-field audio subset used by the particle
// compute uniform block (§4.3): sub_bass, bass, mid, rms, kick, onset,
// centroid, flux, beat, beat_phase.
func (f Features) ParticleSubset() [10]float32 {
	return [10]float32{
		float32(f.SubBass), float32(f.Bass), float32(f.Mid), float32(f.RMS), float32(f.Kick),
		float32(f.Onset), float32(f.Centroid), float32(f.Flux), float32(f.Beat), float32(f.BeatPhase),
	}
}
