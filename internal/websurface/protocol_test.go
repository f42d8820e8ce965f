package websurface

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phosphor-vj/phosphor/internal/router"
)

func envelope(t *testing.T, msgType string, payload interface{}) Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{Type: msgType, Payload: raw}
}

func TestTranslateSetParam(t *testing.T) {
	env := envelope(t, MsgSetParam, setParamPayload{Name: "intensity", Value: 0.75})
	cmd, err := translateClientMessage(env)
	require.NoError(t, err)
	require.Equal(t, router.SourceWeb, cmd.Source)
	require.Equal(t, router.KindParam, cmd.Kind)
	require.Equal(t, -1, cmd.LayerIndex)
	require.Equal(t, "intensity", cmd.Name)
	require.InDelta(t, 0.75, cmd.Float, 1e-9)
}

func TestTranslateSetLayerOpacity(t *testing.T) {
	env := envelope(t, MsgSetLayerOpacity, setLayerOpacityPayload{LayerIndex: 2, Opacity: 0.4})
	cmd, err := translateClientMessage(env)
	require.NoError(t, err)
	require.Equal(t, router.KindLayerOpacity, cmd.Kind)
	require.Equal(t, 2, cmd.LayerIndex)
	require.InDelta(t, 0.4, cmd.Float, 1e-9)
}

func TestTranslateTrigger(t *testing.T) {
	env := envelope(t, MsgTrigger, triggerPayload{Action: "next_layer"})
	cmd, err := translateClientMessage(env)
	require.NoError(t, err)
	require.Equal(t, router.KindTrigger, cmd.Kind)
	require.Equal(t, "next_layer", cmd.Name)
}

func TestTranslateSetLayerEnabled(t *testing.T) {
	env := envelope(t, MsgSetLayerEnabled, setLayerEnabledPayload{LayerIndex: 1, Enabled: true})
	cmd, err := translateClientMessage(env)
	require.NoError(t, err)
	require.Equal(t, router.KindLayerEnabled, cmd.Kind)
	require.True(t, cmd.Bool)
}

func TestTranslateLoadPresetIsNotRouterRoutable(t *testing.T) {
	env := Envelope{Type: MsgLoadPreset, Payload: json.RawMessage(`{"name":"foo"}`)}
	_, err := translateClientMessage(env)
	require.Error(t, err)
}

func TestTranslateUnknownTypeErrors(t *testing.T) {
	_, err := translateClientMessage(Envelope{Type: "bogus"})
	require.Error(t, err)
}

func TestTranslateMalformedPayloadErrors(t *testing.T) {
	env := Envelope{Type: MsgSetParam, Payload: json.RawMessage(`not json`)}
	_, err := translateClientMessage(env)
	require.Error(t, err)
}

type fakeLayerActions struct {
	loadEffectLayer int
	loadEffectName  string
	selectedIndex   int
	loadedPreset    string
	err             error
}

func (f *fakeLayerActions) LoadEffectOnLayer(layerIndex int, name string) error {
	f.loadEffectLayer, f.loadEffectName = layerIndex, name
	return f.err
}

func (f *fakeLayerActions) SelectLayer(index int) error {
	f.selectedIndex = index
	return f.err
}

func (f *fakeLayerActions) LoadPresetByName(name string) error {
	f.loadedPreset = name
	return f.err
}

func TestApplyLayerActionLoadEffect(t *testing.T) {
	env := envelope(t, MsgLoadEffect, loadEffectPayload{LayerIndex: 1, Name: "strobe"})
	a := &fakeLayerActions{}
	require.NoError(t, applyLayerAction(env, a))
	require.Equal(t, 1, a.loadEffectLayer)
	require.Equal(t, "strobe", a.loadEffectName)
}

func TestApplyLayerActionSelectLayer(t *testing.T) {
	env := envelope(t, MsgSelectLayer, selectLayerPayload{Index: 3})
	a := &fakeLayerActions{}
	require.NoError(t, applyLayerAction(env, a))
	require.Equal(t, 3, a.selectedIndex)
}

func TestApplyLayerActionLoadPreset(t *testing.T) {
	env := envelope(t, MsgLoadPreset, loadPresetPayload{Name: "show-a"})
	a := &fakeLayerActions{}
	require.NoError(t, applyLayerAction(env, a))
	require.Equal(t, "show-a", a.loadedPreset)
}

func TestApplyLayerActionPropagatesUnderlyingError(t *testing.T) {
	env := envelope(t, MsgSelectLayer, selectLayerPayload{Index: 9})
	a := &fakeLayerActions{err: fmt.Errorf("out of range")}
	require.Error(t, applyLayerAction(env, a))
}

func TestApplyLayerActionRejectsOtherTypes(t *testing.T) {
	env := envelope(t, MsgSetParam, setParamPayload{Name: "x", Value: 1})
	_, err := translateClientMessage(env)
	require.NoError(t, err)
	require.Error(t, applyLayerAction(env, &fakeLayerActions{}))
}

func TestEncodeEnvelopeRoundTrips(t *testing.T) {
	data, err := encodeEnvelope(MsgAudio, map[string]float64{"rms": 0.5})
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, decodeEnvelope(data, &env))
	require.Equal(t, MsgAudio, env.Type)
}
