package compositor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phosphor-vj/phosphor/internal/layer"
)

func TestCompositeStackEmptyReturnsBackground(t *testing.T) {
	bg := RGB{0.1, 0.2, 0.3}
	require.Equal(t, bg, CompositeStack(bg, nil))
}

func TestCompositeStackSkipsZeroOpacityLayers(t *testing.T) {
	bg := RGB{0.1, 0.1, 0.1}
	layers := []LayerSample{{Color: RGB{1, 1, 1}, Opacity: 0, Blend: layer.BlendNormal}}
	require.Equal(t, bg, CompositeStack(bg, layers))
}

func TestCompositeStackSingleFullOpacityNormalLayerIsFastPathEquivalent(t *testing.T) {
	bg := RGB{0.1, 0.1, 0.1}
	src := RGB{0.77, 0.22, 0.55}
	layers := []LayerSample{{Color: src, Opacity: 1, Blend: layer.BlendNormal}}
	got := CompositeStack(bg, layers)
	require.Equal(t, src, got, "one full-opacity Normal layer must equal sampling it directly")
}

func TestCompositeStackOpacityOverOneIsClamped(t *testing.T) {
	bg := RGB{0, 0, 0}
	src := RGB{1, 1, 1}
	layers := []LayerSample{{Color: src, Opacity: 2.0, Blend: layer.BlendNormal}}
	got := CompositeStack(bg, layers)
	require.Equal(t, src, got)
}

func TestCompositeStackAppliesLayersInOrder(t *testing.T) {
	bg := RGB{0, 0, 0}
	layers := []LayerSample{
		{Color: RGB{0.5, 0.5, 0.5}, Opacity: 1, Blend: layer.BlendNormal},
		{Color: RGB{0.2, 0.2, 0.2}, Opacity: 1, Blend: layer.BlendAdd},
	}
	got := CompositeStack(bg, layers)
	require.InDelta(t, 0.7, got.R, 1e-9)
}

func TestVisibleSamplesSkipsInvisibleLayers(t *testing.T) {
	visible := layer.NewLayer("a")
	hidden := layer.NewLayer("b")
	hidden.Visible = false

	samples := VisibleSamples([]*layer.Layer{visible, hidden}, func(l *layer.Layer) RGB {
		return RGB{1, 1, 1}
	})
	require.Len(t, samples, 1)
}
