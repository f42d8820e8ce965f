package compositor

import "github.com/phosphor-vj/phosphor/internal/layer"

// LayerSample is one layer's resolved color and coverage for a single
// pixel/fragment, the unit CompositeStack folds into the running
// backdrop. The GPU compositor pass evaluates this per-fragment for
// every pixel of every visible layer; this Go-level version exists so
// the blend math has a host-side reference independent of the shader.
type LayerSample struct {
	Color   RGB
	Opacity float64
	Blend   layer.BlendMode
}

// CompositeStack folds layers onto background in order (back to front),
// skipping fully-transparent layers entirely so an opacity-0 layer never
// perturbs the result (§4.4 invariant: opacity is coverage, not blend
// strength — it gates whether the blend contributes at all).
//
// A single visible layer at full Normal-mode opacity is mathematically
// equivalent to just returning its color. The GPU renderer
// (internal/engine's Renderer) has no separate single-layer path: it
// composites every visible layer, a lone one included, through its
// accumulation buffer before the post-process chain.
func CompositeStack(background RGB, layers []LayerSample) RGB {
	out := background
	for _, l := range layers {
		if l.Opacity <= 0 {
			continue
		}
		opacity := l.Opacity
		if opacity > 1 {
			opacity = 1
		}
		blended := Blend(l.Blend, out, l.Color)
		out = Composite(out, blended, opacity)
	}
	return out
}

// VisibleSamples filters a layer stack snapshot down to the samples
// CompositeStack needs, skipping invisible layers. color is supplied by
// the caller (the GPU pass's per-layer render target content); this
// function only handles the bookkeeping of opacity/blend/visibility.
func VisibleSamples(layers []*layer.Layer, color func(*layer.Layer) RGB) []LayerSample {
	out := make([]LayerSample, 0, len(layers))
	for _, l := range layers {
		if !l.Visible {
			continue
		}
		out = append(out, LayerSample{
			Color:   color(l),
			Opacity: l.Opacity,
			Blend:   l.Blend,
		})
	}
	return out
}
