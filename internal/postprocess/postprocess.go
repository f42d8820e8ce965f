// Package postprocess implements the four-stage HDR post-processing
// chain every composited frame passes through before reaching the
// window surface: bloom extract, separable blur, and a composite pass
// that layers chromatic aberration, bloom, ACES tonemapping, vignette
// and film grain (§4.7).
//
// Like internal/particle and internal/pass, the audio-reactive math that
// decides *how strong* each stage runs is kept in this file as pure Go
// so it can be unit-tested without a GPU context; render.go performs the
// actual FBO/shader work and is not independently tested.
package postprocess

import "math"

// Settings holds the global post-process configuration, generalized
// from the teacher's per-genre GenrePreset struct (pkg/render/postprocess.go)
// to Phosphor's single always-on chain with per-effect overrides instead
// of a fixed genre switch.
type Settings struct {
	Enabled        bool
	BloomThreshold float64 // soft-knee luminance threshold, modulated by rms
	BloomIntensity float64
	Vignette       float64 // 0 = none, 1 = full strength
}

// DefaultSettings mirrors the teacher's "fantasy" preset's restraint:
// modest bloom, no grain override (grain is always audio-reactive, not
// toggled per preset).
func DefaultSettings() Settings {
	return Settings{
		Enabled:        true,
		BloomThreshold: 1.0,
		BloomIntensity: 0.5,
		Vignette:       0.3,
	}
}

// WithOverride merges a per-effect override (EffectDef's Postprocess
// block) on top of s, returning the effective settings for that layer.
// An override with Enabled=false leaves s untouched (the override is
// additive, not a disable switch — spec §4.2 EffectDef text: "optional
// post-process overrides").
func (s Settings) WithOverride(enabled bool, bloomThreshold, bloomIntensity, vignette float64) Settings {
	if !enabled {
		return s
	}
	out := s
	if bloomThreshold != 0 {
		out.BloomThreshold = bloomThreshold
	}
	if bloomIntensity != 0 {
		out.BloomIntensity = bloomIntensity
	}
	if vignette != 0 {
		out.Vignette = vignette
	}
	return out
}

// EffectiveBloomThreshold returns the bloom extract threshold for one
// frame, soft-knee-modulated by the current rms level (§4.7 stage 1:
// "threshold is modulated by rms"). Louder audio lowers the threshold,
// letting more of the frame bloom.
func EffectiveBloomThreshold(base, rms float64) float64 {
	const kneeStrength = 0.4
	t := base - rms*kneeStrength
	if t < 0.05 {
		t = 0.05
	}
	return t
}

// EffectiveBloomIntensity scales bloom strength by rms (§4.7 stage 3:
// "adds bloom (intensity modulated by rms)").
func EffectiveBloomIntensity(base, rms float64) float64 {
	return base * (0.5 + 0.5*rms)
}

// GaussianWeights9 returns the nine normalized tap weights for the
// separable blur stage (§4.7 stage 2: "nine-tap Gaussian"), built from a
// discrete sigma chosen so the kernel's effective support matches nine
// taps.
func GaussianWeights9() [9]float64 {
	const sigma = 2.0
	var w [9]float64
	var sum float64
	for i := range w {
		x := float64(i - 4)
		w[i] = math.Exp(-(x * x) / (2 * sigma * sigma))
		sum += w[i]
	}
	for i := range w {
		w[i] /= sum
	}
	return w
}

// ChromaticAberrationOffset scales the per-channel pixel offset by the
// current onset strength (§4.7 stage 3: "chromatic aberration driven by
// onset"). onset is expected in [0,1]; maxOffset is in normalized UV
// units.
func ChromaticAberrationOffset(maxOffset, onset float64) float64 {
	return maxOffset * onset
}

// GrainIntensity scales film grain by spectral flatness (§4.7 stage 3:
// "animated film grain whose intensity is driven by flatness"). Flat
// (noise-like) audio produces more visible grain than tonal audio.
func GrainIntensity(base, flatness float64) float64 {
	return base * flatness
}

// ACESFilm applies the Narkowicz ACES filmic tonemap curve to one linear
// HDR channel value, matching the GPU composite shader's tonemap
// function bit-for-bit in shape (not precision) so CPU-side tests can
// assert on expected output ranges without a GPU context.
func ACESFilm(x float64) float64 {
	const a = 2.51
	const b = 0.03
	const c = 2.43
	const d = 0.59
	const e = 0.14
	num := x * (a*x + b)
	den := x*(c*x+d) + e
	v := num / den
	return clamp01(v)
}

// VignetteFactor returns the multiplicative darkening at normalized
// distance-from-center dist (0 at center, 1 at the corner), given the
// configured vignette strength in [0,1]. Mirrors the teacher's
// intensity*vignette + (1-intensity) blend in ApplyVignette, generalized
// from a fixed power-2.0 falloff to the strength-driven curve this
// engine uses.
func VignetteFactor(dist, strength float64) float64 {
	v := 1.0 - dist*dist
	if v < 0 {
		v = 0
	}
	return strength*v + (1.0 - strength)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
