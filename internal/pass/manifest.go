// Package pass compiles and hot-reloads the shader pipeline behind one
// effect layer: either a single fragment shader or an ordered list of
// feedback-capable passes, each evaluated against the shared shader
// library and the previous frame's output (§2 component H).
package pass

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spf13/viper"

	"github.com/phosphor-vj/phosphor/internal/param"
)

// PassDef describes one entry in a multi-pass effect: a name (used for
// diagnostics and per-pass feedback texture lookup), the fragment shader
// path relative to the manifest file, and whether this pass reads back
// its own previous-frame output via the shader library's feedback().
type PassDef struct {
	Name            string `mapstructure:"name"`
	Shader          string `mapstructure:"shader"`
	FeedbackEnabled bool   `mapstructure:"feedback"`
}

// PostprocessOverride carries a per-effect override of the global
// post-process defaults; a zero value with Enabled=false leaves the
// layer using whatever the post-process chain has configured.
type PostprocessOverride struct {
	Enabled        bool    `mapstructure:"enabled"`
	BloomThreshold float64 `mapstructure:"bloom_threshold"`
	BloomIntensity float64 `mapstructure:"bloom_intensity"`
	Vignette       float64 `mapstructure:"vignette"`
}

// ParticleDef is the manifest-level particle configuration an effect may
// declare; internal/particle owns the runtime representation, this is
// only the on-disk shape it is built from. EmitRate/BurstOnBeat feed the
// spec's `emit_budget = emit_rate · dt + beat_burst · beat` formula;
// Position/Radius/Gravity/Drag parameterize the emitter geometry.
type ParticleDef struct {
	Shape        string     `mapstructure:"shape"`
	MaxCount     int        `mapstructure:"max_count"`
	Position     [2]float64 `mapstructure:"position"`
	Radius       float64    `mapstructure:"radius"`
	EmitRate     float64    `mapstructure:"emit_rate"`
	BurstOnBeat  float64    `mapstructure:"burst_on_beat"`
	InitialSpeed float64    `mapstructure:"initial_speed"`
	Lifetime     float64    `mapstructure:"lifetime"`
	SizeStart    float64    `mapstructure:"size_start"`
	SizeEnd      float64    `mapstructure:"size_end"`
	Color        [4]float32 `mapstructure:"color"`
	ColorHex     string     `mapstructure:"color_hex"`
	Gravity      [2]float64 `mapstructure:"gravity"`
	Drag         float64    `mapstructure:"drag"`
}

// resolvedColor returns ColorHex parsed as sRGB if set (authors find
// "#ff6a00" easier to pick than four floats), otherwise the raw Color
// array unchanged.
func (d ParticleDef) resolvedColor() ([4]float32, error) {
	if d.ColorHex == "" {
		return d.Color, nil
	}
	c, err := colorful.Hex(d.ColorHex)
	if err != nil {
		return [4]float32{}, fmt.Errorf("pass: particle color_hex %q: %w", d.ColorHex, err)
	}
	a := d.Color[3]
	if a == 0 {
		a = 1
	}
	return [4]float32{float32(c.R), float32(c.G), float32(c.B), a}, nil
}

// paramRow is the manifest row shape for one parameter definition, mirroring
// param.Def's exported constructors rather than param.Def's internal field
// layout directly (the manifest uses string kinds, not the Kind enum).
type paramRow struct {
	Name       string  `mapstructure:"name"`
	Kind       string  `mapstructure:"kind"`
	Min        float64 `mapstructure:"min"`
	Max        float64 `mapstructure:"max"`
	Default    float64 `mapstructure:"default"`
	ColorHex   string  `mapstructure:"default_hex"`
	ColorAlpha float64 `mapstructure:"default_alpha"`
}

func (r paramRow) toDef() (param.Def, error) {
	switch r.Kind {
	case "float", "":
		return param.FloatDef(r.Name, r.Min, r.Max, r.Default), nil
	case "bool":
		return param.BoolDef(r.Name, r.Default != 0), nil
	case "color":
		c, err := colorful.Hex(r.ColorHex)
		if err != nil {
			return param.Def{}, fmt.Errorf("pass: param %q default_hex %q: %w", r.Name, r.ColorHex, err)
		}
		a := r.ColorAlpha
		if a == 0 {
			a = 1
		}
		return param.ColorDef(r.Name, [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(a)}), nil
	default:
		return param.Def{}, fmt.Errorf("pass: param %q has unsupported manifest kind %q (point2d params must be edited after load)", r.Name, r.Kind)
	}
}

// manifestRow is the raw top-level shape read from an effect file.
type manifestRow struct {
	Name        string              `mapstructure:"name"`
	Shader      string              `mapstructure:"shader"`
	Passes      []PassDef           `mapstructure:"pass"`
	Particle    *ParticleDef        `mapstructure:"particle"`
	Postprocess PostprocessOverride `mapstructure:"postprocess"`
	Params      []paramRow          `mapstructure:"param"`
}

// EffectDef is a loaded effect manifest: display name, either a single
// shader or an ordered list of passes (never both empty), and the
// parameter/particle/post-process declarations a layer builds itself
// from. Invariant: either Shader is non-empty or Passes has >= 1 entry.
type EffectDef struct {
	Name        string
	Shader      string
	Passes      []PassDef
	Particle    *ParticleDef
	Postprocess PostprocessOverride
	Params      []param.Def
}

// Validate checks the single-shader/passes invariant and that declared
// pass order is non-empty when Shader is absent.
func (e EffectDef) Validate() error {
	if e.Shader == "" && len(e.Passes) == 0 {
		return fmt.Errorf("pass: effect %q declares neither shader nor passes", e.Name)
	}
	if e.Shader != "" && len(e.Passes) > 0 {
		return fmt.Errorf("pass: effect %q declares both shader and passes", e.Name)
	}
	for i, p := range e.Passes {
		if p.Shader == "" {
			return fmt.Errorf("pass: effect %q pass %d (%q) has no shader path", e.Name, i, p.Name)
		}
	}
	return nil
}

// effectivePasses returns the pass list an executor should compile,
// synthesizing a single pass named after the effect when the manifest
// used the shorthand single-shader form.
func (e EffectDef) effectivePasses() []PassDef {
	if len(e.Passes) > 0 {
		return e.Passes
	}
	return []PassDef{{Name: e.Name, Shader: e.Shader}}
}

// LoadManifest reads an effect manifest from path (TOML), resolving
// shader paths and parameter defs but not compiling anything.
func LoadManifest(path string) (EffectDef, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return EffectDef{}, fmt.Errorf("pass: reading manifest %q: %w", path, err)
	}

	var row manifestRow
	if err := v.Unmarshal(&row); err != nil {
		return EffectDef{}, fmt.Errorf("pass: parsing manifest %q: %w", path, err)
	}

	if row.Particle != nil {
		resolved, err := row.Particle.resolvedColor()
		if err != nil {
			return EffectDef{}, fmt.Errorf("pass: manifest %q: %w", path, err)
		}
		row.Particle.Color = resolved
	}

	def := EffectDef{
		Name:        row.Name,
		Shader:      row.Shader,
		Passes:      row.Passes,
		Particle:    row.Particle,
		Postprocess: row.Postprocess,
	}
	for _, pr := range row.Params {
		pd, err := pr.toDef()
		if err != nil {
			return EffectDef{}, err
		}
		def.Params = append(def.Params, pd)
	}

	if err := def.Validate(); err != nil {
		return EffectDef{}, err
	}
	return def, nil
}
