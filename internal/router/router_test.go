package router

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	params     map[string]float64
	opacity    map[int]float64
	blend      map[int]int
	enabled    map[int]bool
	ppEnabled  bool
	triggered  []string
	rejectName string
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{
		params:  make(map[string]float64),
		opacity: make(map[int]float64),
		blend:   make(map[int]int),
		enabled: make(map[int]bool),
	}
}

func (f *fakeTarget) SetParam(layerIndex int, name string, v float64) error {
	if name == f.rejectName {
		return fmt.Errorf("locked")
	}
	f.params[name] = v
	return nil
}
func (f *fakeTarget) SetLayerOpacity(layerIndex int, v float64) error {
	f.opacity[layerIndex] = v
	return nil
}
func (f *fakeTarget) SetLayerBlend(layerIndex int, mode int) error {
	f.blend[layerIndex] = mode
	return nil
}
func (f *fakeTarget) SetLayerEnabled(layerIndex int, enabled bool) error {
	f.enabled[layerIndex] = enabled
	return nil
}
func (f *fakeTarget) SetPostprocessEnabled(enabled bool) { f.ppEnabled = enabled }
func (f *fakeTarget) Trigger(action string)              { f.triggered = append(f.triggered, action) }

func TestDrainAppliesLastWriteWinsAcrossSources(t *testing.T) {
	r := New(nil)
	r.Send(Command{Source: SourceOSC, Kind: KindParam, Name: "a", Float: 0.3, LayerIndex: -1})
	r.Send(Command{Source: SourceWeb, Kind: KindParam, Name: "a", Float: 0.7, LayerIndex: -1})

	target := newFakeTarget()
	r.Drain(target)

	require.InDelta(t, 0.7, target.params["a"], 1e-9, "Web drains after OSC, so it must win")
}

func TestDrainOrderIsMIDIThenOSCThenWeb(t *testing.T) {
	r := New(nil)
	r.Send(Command{Source: SourceWeb, Kind: KindParam, Name: "x", Float: 1, LayerIndex: -1})
	r.Send(Command{Source: SourceMIDI, Kind: KindParam, Name: "x", Float: 2, LayerIndex: -1})
	r.Send(Command{Source: SourceOSC, Kind: KindParam, Name: "x", Float: 3, LayerIndex: -1})

	target := newFakeTarget()
	r.Drain(target)

	require.InDelta(t, 1.0, target.params["x"], 1e-9, "Web queued is drained last regardless of send order")
}

func TestTriggerFiresOnlyOnRisingEdge(t *testing.T) {
	r := New(nil)
	target := newFakeTarget()

	r.Send(Command{Source: SourceOSC, Kind: KindTrigger, Name: "next_preset", Float: 0.9})
	r.Drain(target)
	require.Equal(t, []string{"next_preset"}, target.triggered)

	// Held above threshold across frames: must not refire.
	r.Send(Command{Source: SourceOSC, Kind: KindTrigger, Name: "next_preset", Float: 0.95})
	r.Drain(target)
	require.Equal(t, []string{"next_preset"}, target.triggered)

	// Drops below threshold then crosses again: fires a second time.
	r.Send(Command{Source: SourceOSC, Kind: KindTrigger, Name: "next_preset", Float: 0.1})
	r.Drain(target)
	r.Send(Command{Source: SourceOSC, Kind: KindTrigger, Name: "next_preset", Float: 0.8})
	r.Drain(target)
	require.Equal(t, []string{"next_preset", "next_preset"}, target.triggered)
}

func TestSendDropsOnFullQueueWithoutBlocking(t *testing.T) {
	r := New(nil)
	for i := 0; i < queueCapacity+10; i++ {
		r.Send(Command{Source: SourceOSC, Kind: KindParam, Name: "a", Float: float64(i), LayerIndex: -1})
	}
	// Must not have blocked; queue length capped at capacity.
	require.LessOrEqual(t, len(r.osc), queueCapacity)
}

func TestLayerOpacityAndBlendAndEnabledRoute(t *testing.T) {
	r := New(nil)
	r.Send(Command{Source: SourceOSC, Kind: KindLayerOpacity, LayerIndex: 2, Float: 0.5})
	r.Send(Command{Source: SourceOSC, Kind: KindLayerBlend, LayerIndex: 2, Float: 3})
	r.Send(Command{Source: SourceOSC, Kind: KindLayerEnabled, LayerIndex: 2, Bool: false})
	r.Send(Command{Source: SourceOSC, Kind: KindPostprocessEnabled, Bool: true})

	target := newFakeTarget()
	r.Drain(target)

	require.InDelta(t, 0.5, target.opacity[2], 1e-9)
	require.Equal(t, 3, target.blend[2])
	require.False(t, target.enabled[2])
	require.True(t, target.ppEnabled)
}

func TestRejectedParamWriteDoesNotPanic(t *testing.T) {
	r := New(nil)
	target := newFakeTarget()
	target.rejectName = "locked_param"

	r.Send(Command{Source: SourceOSC, Kind: KindParam, Name: "locked_param", Float: 1, LayerIndex: -1})
	require.NotPanics(t, func() { r.Drain(target) })
	_, wasSet := target.params["locked_param"]
	require.False(t, wasSet)
}
