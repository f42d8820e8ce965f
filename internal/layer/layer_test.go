package layer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStack(names ...string) (*Stack, []*Layer) {
	s := NewStack()
	layers := make([]*Layer, len(names))
	for i, n := range names {
		l := NewLayer(n)
		layers[i] = l
		_ = s.Add(l)
	}
	return s, layers
}

func TestAddFirstLayerBecomesActive(t *testing.T) {
	s, layers := newTestStack("base")
	require.Equal(t, layers[0].ID, s.Active().ID)
}

func TestAddRejectsOverMaxLayers(t *testing.T) {
	s := NewStack()
	for i := 0; i < MaxLayers; i++ {
		require.NoError(t, s.Add(NewLayer("l")))
	}
	require.Error(t, s.Add(NewLayer("overflow")))
}

func TestRemoveShiftsActiveIndexDown(t *testing.T) {
	s, layers := newTestStack("a", "b", "c")
	require.NoError(t, s.SetActive(layers[2].ID))
	require.NoError(t, s.Remove(layers[0].ID))
	require.Equal(t, layers[2].ID, s.Active().ID, "active layer identity survives removal of an earlier layer")
}

func TestRemoveActiveLayerFallsBackToNearest(t *testing.T) {
	s, layers := newTestStack("a", "b", "c")
	require.NoError(t, s.SetActive(layers[2].ID))
	require.NoError(t, s.Remove(layers[2].ID))
	require.NotNil(t, s.Active())
	require.Equal(t, layers[1].ID, s.Active().ID)
}

func TestRemoveLastLayerClearsActive(t *testing.T) {
	s, layers := newTestStack("only")
	require.NoError(t, s.Remove(layers[0].ID))
	require.Nil(t, s.Active())
}

func TestMoveToReordersUnpinnedLayers(t *testing.T) {
	s, layers := newTestStack("a", "b", "c")
	require.NoError(t, s.MoveTo(layers[2].ID, 0))

	got := s.Layers()
	require.Equal(t, layers[2].ID, got[0].ID)
	require.Equal(t, layers[0].ID, got[1].ID)
	require.Equal(t, layers[1].ID, got[2].ID)
}

func TestMoveToPreservesPinnedLayerPosition(t *testing.T) {
	s, layers := newTestStack("a", "b", "c", "d")
	layers[1].Pinned = true // "b" pinned at absolute index 1

	require.NoError(t, s.MoveTo(layers[3].ID, 0))

	got := s.Layers()
	require.Equal(t, layers[1].ID, got[1].ID, "pinned layer must stay at its absolute index")
}

func TestMoveToRejectsPinnedLayer(t *testing.T) {
	s, layers := newTestStack("a", "b")
	layers[0].Pinned = true
	require.Error(t, s.MoveTo(layers[0].ID, 1))
}

func TestMoveToPreservesActiveLayerIdentity(t *testing.T) {
	s, layers := newTestStack("a", "b", "c")
	require.NoError(t, s.SetActive(layers[1].ID))
	require.NoError(t, s.MoveTo(layers[0].ID, 2))
	require.Equal(t, layers[1].ID, s.Active().ID, "reordering must not silently change which layer is active")
}

func TestLayersReturnsSnapshotNotLiveSlice(t *testing.T) {
	s, _ := newTestStack("a", "b")
	snap := s.Layers()
	require.NoError(t, s.Remove(snap[0].ID))
	require.Len(t, snap, 2, "previously returned snapshot must be unaffected by later mutation")
}
