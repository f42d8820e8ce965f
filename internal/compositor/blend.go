// Package compositor blends the layer stack into a single HDR image each
// frame: ten blend modes, opacity-modulated alpha compositing, and a
// ping-pong accumulation buffer so an arbitrary number of layers can
// composite without each needing its own GPU target (§4.4).
package compositor

import "github.com/phosphor-vj/phosphor/internal/layer"

// RGB is a linear-light, unclamped color triple. Blend formulas operate
// in this space; clamping to a displayable range happens in the
// post-process tonemap stage, not here (§4.4 invariant: blending never
// clips intermediate results to the displayable range). The one cap is
// ColorDodge, which is clamped to the HDR ceiling of 4.0.
type RGB struct {
	R, G, B float64
}

// BlendFunc computes one blend mode's result given the backdrop (layers
// already composited beneath) and the source (the layer being added),
// both straight (non-premultiplied) linear color.
type BlendFunc func(backdrop, src RGB) RGB

var blendFuncs = map[layer.BlendMode]BlendFunc{
	layer.BlendNormal:      func(_, src RGB) RGB { return src },
	layer.BlendAdd:         blendAdd,
	layer.BlendScreen:      blendScreen,
	layer.BlendColorDodge:  blendColorDodge,
	layer.BlendMultiply:    blendMultiply,
	layer.BlendOverlay:     blendOverlay,
	layer.BlendHardLight:   blendHardLight,
	layer.BlendDifference:  blendDifference,
	layer.BlendExclusion:   blendExclusion,
	layer.BlendSubtract:    blendSubtract,
}

// Blend looks up and applies the blend formula for mode. An unknown mode
// falls back to Normal rather than panicking, since a corrupt preset
// naming an invalid mode should degrade gracefully, not crash the show.
func Blend(mode layer.BlendMode, backdrop, src RGB) RGB {
	fn, ok := blendFuncs[mode]
	if !ok {
		return src
	}
	return fn(backdrop, src)
}

func blendAdd(b, s RGB) RGB {
	return RGB{b.R + s.R, b.G + s.G, b.B + s.B}
}

func blendScreen(b, s RGB) RGB {
	return RGB{
		screen(b.R, s.R),
		screen(b.G, s.G),
		screen(b.B, s.B),
	}
}

func screen(b, s float64) float64 {
	return 1 - (1-b)*(1-s)
}

func blendColorDodge(b, s RGB) RGB {
	return RGB{colorDodge(b.R, s.R), colorDodge(b.G, s.G), colorDodge(b.B, s.B)}
}

func colorDodge(b, s float64) float64 {
	if s >= 1 {
		if b <= 0 {
			return 0
		}
		return 4
	}
	v := b / (1 - s)
	if v > 4 {
		return 4
	}
	return v
}

func blendMultiply(b, s RGB) RGB {
	return RGB{b.R * s.R, b.G * s.G, b.B * s.B}
}

func blendOverlay(b, s RGB) RGB {
	return RGB{overlay(b.R, s.R), overlay(b.G, s.G), overlay(b.B, s.B)}
}

func overlay(b, s float64) float64 {
	if b <= 0.5 {
		return 2 * b * s
	}
	return 1 - 2*(1-b)*(1-s)
}

func blendHardLight(b, s RGB) RGB {
	// Hard light is overlay with arguments swapped.
	return RGB{overlay(s.R, b.R), overlay(s.G, b.G), overlay(s.B, b.B)}
}

func blendDifference(b, s RGB) RGB {
	return RGB{abs(b.R - s.R), abs(b.G - s.G), abs(b.B - s.B)}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func blendExclusion(b, s RGB) RGB {
	return RGB{
		b.R + s.R - 2*b.R*s.R,
		b.G + s.G - 2*b.G*s.G,
		b.B + s.B - 2*b.B*s.B,
	}
}

func blendSubtract(b, s RGB) RGB {
	return RGB{b.R - s.R, b.G - s.G, b.B - s.B}
}

// Composite alpha-blends a blended layer result over the backdrop using
// opacity as the layer's coverage, i.e. the standard "over" operator
// applied to the blend-mode output rather than the raw source (§4.4).
func Composite(backdrop, blended RGB, opacity float64) RGB {
	return RGB{
		lerp(backdrop.R, blended.R, opacity),
		lerp(backdrop.G, blended.G, opacity),
		lerp(backdrop.B, blended.B, opacity),
	}
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
