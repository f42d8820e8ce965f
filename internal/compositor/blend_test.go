package compositor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phosphor-vj/phosphor/internal/layer"
)

func TestBlendNormalReturnsSource(t *testing.T) {
	got := Blend(layer.BlendNormal, RGB{0.2, 0.3, 0.4}, RGB{0.9, 0.1, 0.5})
	require.Equal(t, RGB{0.9, 0.1, 0.5}, got)
}

func TestBlendAddSumsChannels(t *testing.T) {
	got := Blend(layer.BlendAdd, RGB{0.3, 0.3, 0.3}, RGB{0.4, 0.4, 0.4})
	require.InDelta(t, 0.7, got.R, 1e-9)
}

func TestBlendMultiplyWithBlackIsBlack(t *testing.T) {
	got := Blend(layer.BlendMultiply, RGB{0, 0, 0}, RGB{0.8, 0.8, 0.8})
	require.Equal(t, RGB{0, 0, 0}, got)
}

func TestBlendMultiplyWithWhiteIsSource(t *testing.T) {
	got := Blend(layer.BlendMultiply, RGB{1, 1, 1}, RGB{0.6, 0.5, 0.4})
	require.InDelta(t, 0.6, got.R, 1e-9)
	require.InDelta(t, 0.5, got.G, 1e-9)
	require.InDelta(t, 0.4, got.B, 1e-9)
}

func TestBlendScreenWithBlackIsBackdrop(t *testing.T) {
	got := Blend(layer.BlendScreen, RGB{0.3, 0.3, 0.3}, RGB{0, 0, 0})
	require.InDelta(t, 0.3, got.R, 1e-9)
}

func TestBlendDifferenceIsCommutative(t *testing.T) {
	a := Blend(layer.BlendDifference, RGB{0.2, 0.5, 0.8}, RGB{0.9, 0.1, 0.3})
	b := Blend(layer.BlendDifference, RGB{0.9, 0.1, 0.3}, RGB{0.2, 0.5, 0.8})
	require.InDelta(t, a.R, b.R, 1e-9)
	require.InDelta(t, a.G, b.G, 1e-9)
	require.InDelta(t, a.B, b.B, 1e-9)
}

func TestBlendSubtractClampsNotEnforcedHere(t *testing.T) {
	got := Blend(layer.BlendSubtract, RGB{0.2, 0.2, 0.2}, RGB{0.5, 0.5, 0.5})
	require.InDelta(t, -0.3, got.R, 1e-9, "subtract can go negative; clamping is the tonemap stage's job")
}

func TestBlendUnknownModeFallsBackToSource(t *testing.T) {
	got := Blend(layer.BlendMode(999), RGB{0.1, 0.1, 0.1}, RGB{0.7, 0.7, 0.7})
	require.Equal(t, RGB{0.7, 0.7, 0.7}, got)
}

func TestCompositeAtZeroOpacityIsBackdrop(t *testing.T) {
	backdrop := RGB{0.5, 0.5, 0.5}
	got := Composite(backdrop, RGB{1, 1, 1}, 0)
	require.Equal(t, backdrop, got)
}

func TestCompositeAtFullOpacityIsBlended(t *testing.T) {
	blended := RGB{0.9, 0.9, 0.9}
	got := Composite(RGB{0.1, 0.1, 0.1}, blended, 1)
	require.InDelta(t, 0.9, got.R, 1e-9)
}
