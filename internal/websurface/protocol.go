// Package websurface serves the WebSocket touch-surface control channel
// (spec §4.7): a single TCP port that either upgrades to a WebSocket or
// serves a static control page, then exchanges JSON messages.
package websurface

import (
	"encoding/json"
	"fmt"

	"github.com/phosphor-vj/phosphor/internal/router"
)

// Envelope is the wire shape for every message in both directions: a
// type tag plus a type-specific JSON payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Server-to-client message types (spec §4.7).
const (
	MsgState        = "state"
	MsgAudio        = "audio"
	MsgParamChanged = "param_changed"
	MsgLayerChanged = "layer_changed"
	MsgActiveLayer  = "active_layer"
	MsgEffectLoaded = "effect_loaded"
	MsgPresets      = "presets"
)

// Client-to-server message types (spec §4.7).
const (
	MsgSetParam             = "set_param"
	MsgSetLayerParam        = "set_layer_param"
	MsgLoadEffect           = "load_effect"
	MsgSelectLayer          = "select_layer"
	MsgSetLayerOpacity      = "set_layer_opacity"
	MsgSetLayerBlend        = "set_layer_blend"
	MsgSetLayerEnabled      = "set_layer_enabled"
	MsgTrigger              = "trigger"
	MsgLoadPreset           = "load_preset"
	MsgSetPostprocessEnable = "set_postprocess_enabled"
)

type setParamPayload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type setLayerParamPayload struct {
	LayerIndex int     `json:"layer_index"`
	Name       string  `json:"name"`
	Value      float64 `json:"value"`
}

type setLayerOpacityPayload struct {
	LayerIndex int     `json:"layer_index"`
	Opacity    float64 `json:"opacity"`
}

type setLayerBlendPayload struct {
	LayerIndex int `json:"layer_index"`
	Mode       int `json:"mode"`
}

type setLayerEnabledPayload struct {
	LayerIndex int  `json:"layer_index"`
	Enabled    bool `json:"enabled"`
}

type triggerPayload struct {
	Action string `json:"action"`
}

type setPostprocessEnabledPayload struct {
	Enabled bool `json:"enabled"`
}

type loadEffectPayload struct {
	LayerIndex int    `json:"layer_index"`
	Name       string `json:"name"`
}

type selectLayerPayload struct {
	Index int `json:"index"`
}

type loadPresetPayload struct {
	Name string `json:"name"`
}

// translateClientMessage turns one decoded client->server Envelope into a
// router.Command. It is a pure function, independent of any live socket,
// so the wire protocol can be unit tested directly.
func translateClientMessage(env Envelope) (router.Command, error) {
	switch env.Type {
	case MsgSetParam:
		var p setParamPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return router.Command{}, fmt.Errorf("websurface: set_param: %w", err)
		}
		return router.Command{Source: router.SourceWeb, Kind: router.KindParam, LayerIndex: -1, Name: p.Name, Float: p.Value}, nil

	case MsgSetLayerParam:
		var p setLayerParamPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return router.Command{}, fmt.Errorf("websurface: set_layer_param: %w", err)
		}
		return router.Command{Source: router.SourceWeb, Kind: router.KindLayerParam, LayerIndex: p.LayerIndex, Name: p.Name, Float: p.Value}, nil

	case MsgSetLayerOpacity:
		var p setLayerOpacityPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return router.Command{}, fmt.Errorf("websurface: set_layer_opacity: %w", err)
		}
		return router.Command{Source: router.SourceWeb, Kind: router.KindLayerOpacity, LayerIndex: p.LayerIndex, Float: p.Opacity}, nil

	case MsgSetLayerBlend:
		var p setLayerBlendPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return router.Command{}, fmt.Errorf("websurface: set_layer_blend: %w", err)
		}
		return router.Command{Source: router.SourceWeb, Kind: router.KindLayerBlend, LayerIndex: p.LayerIndex, Float: float64(p.Mode)}, nil

	case MsgSetLayerEnabled:
		var p setLayerEnabledPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return router.Command{}, fmt.Errorf("websurface: set_layer_enabled: %w", err)
		}
		return router.Command{Source: router.SourceWeb, Kind: router.KindLayerEnabled, LayerIndex: p.LayerIndex, Bool: p.Enabled}, nil

	case MsgTrigger:
		var p triggerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return router.Command{}, fmt.Errorf("websurface: trigger: %w", err)
		}
		return router.Command{Source: router.SourceWeb, Kind: router.KindTrigger, Name: p.Action, Float: 1.0}, nil

	case MsgSetPostprocessEnable:
		var p setPostprocessEnabledPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return router.Command{}, fmt.Errorf("websurface: set_postprocess_enabled: %w", err)
		}
		return router.Command{Source: router.SourceWeb, Kind: router.KindPostprocessEnabled, Bool: p.Enabled}, nil

	case MsgLoadEffect, MsgSelectLayer, MsgLoadPreset:
		// Handled directly by the Hub (they mutate the LayerStack/preset
		// loader rather than flowing through the router), not translated
		// into a router.Command here.
		return router.Command{}, fmt.Errorf("websurface: %q is not router-routable", env.Type)

	default:
		return router.Command{}, fmt.Errorf("websurface: unknown message type %q", env.Type)
	}
}

// LayerActions is the subset of *engine.Engine the hub calls directly for
// the three message types translateClientMessage declines to turn into a
// router.Command, since they mutate the LayerStack or preset library
// rather than a layer's live parameters.
type LayerActions interface {
	LoadEffectOnLayer(layerIndex int, name string) error
	SelectLayer(index int) error
	LoadPresetByName(name string) error
}

// applyLayerAction decodes and dispatches one of MsgLoadEffect,
// MsgSelectLayer, or MsgLoadPreset against actions. Returns an error for
// any other message type. Hub.readPump calls it directly for these three
// types, without passing them through translateClientMessage.
func applyLayerAction(env Envelope, actions LayerActions) error {
	switch env.Type {
	case MsgLoadEffect:
		var p loadEffectPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("websurface: load_effect: %w", err)
		}
		return actions.LoadEffectOnLayer(p.LayerIndex, p.Name)

	case MsgSelectLayer:
		var p selectLayerPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("websurface: select_layer: %w", err)
		}
		return actions.SelectLayer(p.Index)

	case MsgLoadPreset:
		var p loadPresetPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return fmt.Errorf("websurface: load_preset: %w", err)
		}
		return actions.LoadPresetByName(p.Name)

	default:
		return fmt.Errorf("websurface: %q is not a layer action", env.Type)
	}
}

func encodeEnvelope(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("websurface: marshal %s payload: %w", msgType, err)
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

func decodeEnvelope(data []byte, env *Envelope) error {
	if err := json.Unmarshal(data, env); err != nil {
		return fmt.Errorf("websurface: decode envelope: %w", err)
	}
	return nil
}
