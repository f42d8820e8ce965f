// Package preset persists and restores a full show state: the LayerStack
// contents, each layer's parameter values, and the post-process settings
// (spec §6: "presets (one file per preset, each preset captures the full
// LayerStack + post-process settings + active layer)").
package preset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phosphor-vj/phosphor/internal/layer"
	"github.com/phosphor-vj/phosphor/internal/param"
	"github.com/phosphor-vj/phosphor/internal/rng"
)

// ParamValue is the JSON-serializable mirror of param.Value; the runtime
// Value type carries no JSON tags because param is a hot-path package,
// not a persistence one (the same separation the teacher draws between
// its schema.go structs and the runtime entity state they mirror).
type ParamValue struct {
	Kind  string     `json:"kind"`
	Float float64    `json:"float,omitempty"`
	Bool  bool       `json:"bool,omitempty"`
	Color [4]float32 `json:"color,omitempty"`
	Point [2]float64 `json:"point,omitempty"`
}

func toParamValue(v param.Value) ParamValue {
	pv := ParamValue{Float: v.Float, Bool: v.Bool, Color: v.Color, Point: v.Point}
	switch v.Kind {
	case param.KindFloat:
		pv.Kind = "float"
	case param.KindBool:
		pv.Kind = "bool"
	case param.KindColor:
		pv.Kind = "color"
	case param.KindPoint2D:
		pv.Kind = "point2d"
	}
	return pv
}

func fromParamValue(pv ParamValue) param.Value {
	v := param.Value{Float: pv.Float, Bool: pv.Bool, Color: pv.Color, Point: pv.Point}
	switch pv.Kind {
	case "float":
		v.Kind = param.KindFloat
	case "bool":
		v.Kind = param.KindBool
	case "color":
		v.Kind = param.KindColor
	case "point2d":
		v.Kind = param.KindPoint2D
	}
	return v
}

// LayerSnapshot is one layer's persisted state.
type LayerSnapshot struct {
	Name    string                `json:"name"`
	Effect  string                `json:"effect"`
	Blend   int                   `json:"blend"`
	Opacity float64               `json:"opacity"`
	Visible bool                  `json:"visible"`
	Pinned  bool                  `json:"pinned"`
	Locked  bool                  `json:"locked"`
	Params  map[string]ParamValue `json:"params"`
}

// PostprocessSettings is the persisted subset of post-process state
// (spec §6 effect manifest's "postprocess" block, captured per-show
// rather than per-effect here).
type PostprocessSettings struct {
	Enabled        bool    `json:"enabled"`
	BloomThreshold float64 `json:"bloom_threshold"`
	BloomIntensity float64 `json:"bloom_intensity"`
	Vignette       float64 `json:"vignette"`
}

// Preset is the full persisted show state.
type Preset struct {
	Name             string              `json:"name"`
	Seed             int64               `json:"seed"`
	Layers           []LayerSnapshot     `json:"layers"`
	ActiveLayerIndex int                 `json:"active_layer_index"`
	Postprocess      PostprocessSettings `json:"postprocess"`
}

// CaptureStack builds a Preset from the current layer stack and
// post-process settings. effectOf reports the effect manifest name a
// layer is currently running; the layer package itself has no notion of
// effects (that pairing lives in internal/engine's LayerRuntime), so the
// caller supplies it rather than preset importing internal/pass. seed is
// the show's master seed, stored alongside the snapshot so LayerSeeds
// can later re-derive the same per-layer particle seeds on reload.
func CaptureStack(name string, stack *layer.Stack, effectOf func(l *layer.Layer) string, seed int64, pp PostprocessSettings) Preset {
	layers := stack.Layers()
	snapshots := make([]LayerSnapshot, len(layers))
	activeIndex := -1

	for i, l := range layers {
		params := make(map[string]ParamValue)
		for _, pname := range l.Params.Names() {
			if v, err := l.Params.Get(pname); err == nil {
				params[pname] = toParamValue(v)
			}
		}
		snapshots[i] = LayerSnapshot{
			Name:    l.Name,
			Effect:  effectOf(l),
			Blend:   int(l.Blend),
			Opacity: l.Opacity,
			Visible: l.Visible,
			Pinned:  l.Pinned,
			Locked:  l.Locked,
			Params:  params,
		}
		if stack.Active() != nil && stack.Active().ID == l.ID {
			activeIndex = i
		}
	}

	return Preset{Name: name, Seed: seed, Layers: snapshots, ActiveLayerIndex: activeIndex, Postprocess: pp}
}

// LayerSeeds derives one deterministic per-layer particle seed from p's
// master show seed, in layer order, so reloading the same preset
// reproduces the same spray pattern on every layer that owns a particle
// system (spec §6 preset persistence; §4.5 particle determinism).
func LayerSeeds(p Preset) []uint64 {
	r := rng.New(p.Seed)
	seeds := make([]uint64, len(p.Layers))
	for i := range seeds {
		seeds[i] = r.Uint64()
	}
	return seeds
}

// ApplyToStack writes a Preset's layer values back onto an existing
// stack, matched positionally. Locked layers are left untouched (spec
// §4.2: "a locked layer ... is skipped by preset load"). The stack's own
// layer/parameter identity (IDs, ParamDefs) is not replaced — only values
// within the bounds each parameter already declares.
func ApplyToStack(p Preset, stack *layer.Stack) []error {
	var errs []error
	layers := stack.Layers()

	for i, snap := range p.Layers {
		if i >= len(layers) {
			break
		}
		l := layers[i]
		if l.Locked {
			continue
		}

		l.Blend = layer.BlendMode(snap.Blend)
		l.Opacity = snap.Opacity
		l.Visible = snap.Visible
		l.Pinned = snap.Pinned

		for name, pv := range snap.Params {
			if err := l.Params.Set(name, fromParamValue(pv)); err != nil {
				errs = append(errs, fmt.Errorf("preset: layer %q param %q: %w", l.Name, name, err))
			}
		}
	}

	if p.ActiveLayerIndex >= 0 && p.ActiveLayerIndex < len(layers) {
		_ = stack.SetActive(layers[p.ActiveLayerIndex].ID)
	}

	return errs
}

// sanitizeName strips path separators so a preset name can never escape
// the preset directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return name
}

func presetPath(dir, name string) string {
	return filepath.Join(dir, sanitizeName(name)+".json")
}

// Save writes p to dir/<name>.json.
func Save(dir string, p Preset) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("preset: creating directory: %w", err)
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("preset: marshaling %q: %w", p.Name, err)
	}
	if err := os.WriteFile(presetPath(dir, p.Name), data, 0o644); err != nil {
		return fmt.Errorf("preset: writing %q: %w", p.Name, err)
	}
	return nil
}

// Load reads the named preset from dir.
func Load(dir, name string) (Preset, error) {
	data, err := os.ReadFile(presetPath(dir, name))
	if err != nil {
		return Preset{}, fmt.Errorf("preset: reading %q: %w", name, err)
	}
	var p Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("preset: parsing %q: %w", name, err)
	}
	return p, nil
}

// Delete removes the named preset file from dir.
func Delete(dir, name string) error {
	if err := os.Remove(presetPath(dir, name)); err != nil {
		return fmt.Errorf("preset: deleting %q: %w", name, err)
	}
	return nil
}

// List returns the names of every valid preset file in dir. Files that
// fail to parse are skipped with a warning returned alongside the list,
// rather than failing the whole listing (spec §7: "malformed preset:
// skipped with a warning").
func List(dir string) ([]string, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{fmt.Errorf("preset: listing %q: %w", dir, err)}
	}

	var names []string
	var warnings []error
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".json")
		if _, err := Load(dir, name); err != nil {
			warnings = append(warnings, fmt.Errorf("preset: skipping malformed preset %q: %w", name, err))
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, warnings
}
