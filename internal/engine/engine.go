// Package engine is the per-frame orchestrator tying every other
// subsystem together (§2 component O): it owns the LayerStack, the
// input router, the post-process settings, and the effect/preset
// libraries layers are loaded from, and implements router.Target so
// drained commands land on the right layer.
//
// Like internal/pass and internal/postprocess, the parts of this
// package that decide *what* happens each frame are kept as pure Go in
// this file so they can be unit tested without a GPU context; render.go
// performs the actual draw calls and is not independently tested. This
// mirrors the teacher's Game.Update/Game.Draw split in main.go, with
// the state-machine dispatch generalized from a fixed set of game
// states to a fixed set of per-frame stages (drain input, reload
// shaders, step particles, composite, tonemap).
package engine

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phosphor-vj/phosphor/internal/audio"
	"github.com/phosphor-vj/phosphor/internal/event"
	"github.com/phosphor-vj/phosphor/internal/gpu"
	"github.com/phosphor-vj/phosphor/internal/layer"
	"github.com/phosphor-vj/phosphor/internal/param"
	"github.com/phosphor-vj/phosphor/internal/particle"
	"github.com/phosphor-vj/phosphor/internal/pass"
	"github.com/phosphor-vj/phosphor/internal/postprocess"
	"github.com/phosphor-vj/phosphor/internal/preset"
	"github.com/phosphor-vj/phosphor/internal/router"
)

// LayerRuntime pairs a layer.Layer with the resources the spec says it
// exclusively owns: a pass executor, an optional particle system, and
// the manifest it was built from. internal/layer itself stays free of
// this import (it would otherwise depend on internal/pass and
// internal/particle), so the pairing lives here instead.
type LayerRuntime struct {
	Layer        *layer.Layer
	Executor     *pass.Executor
	Particles    *particle.System
	Def          pass.EffectDef
	ManifestName string
}

// Engine owns the LayerStack, the compositor/post-process settings, and
// the input router (spec §5 ownership rules: "The engine loop owns the
// LayerStack, the compositor, the post-process chain, the audio front,
// and the input router").
type Engine struct {
	log *logrus.Entry
	bus *event.Bus

	stack    *layer.Stack
	runtimes map[uuid.UUID]*LayerRuntime

	Router  *router.Router
	compile pass.Compiler

	effectDir   string
	effectNames []string

	presetDir   string
	presetNames []string
	presetIdx   int

	Postprocess    postprocess.Settings
	OverlayVisible bool

	FrameIndex uint32

	// showSeed is this running show's master seed, stamped into every
	// preset captured during this session so CaptureStack/LayerSeeds can
	// re-derive the same per-layer particle seeds on a later reload.
	showSeed int64
}

// New creates an empty engine with no layers, scanning effectDir and
// presetDir for the libraries next_effect/prev_effect and
// next_preset/prev_preset cycle through.
func New(log *logrus.Logger, bus *event.Bus, compile pass.Compiler, effectDir, presetDir string) (*Engine, error) {
	if log == nil {
		log = logrus.New()
	}
	e := &Engine{
		log:         log.WithField("component", "engine"),
		bus:         bus,
		stack:       layer.NewStack(),
		runtimes:    make(map[uuid.UUID]*LayerRuntime),
		Router:      router.New(log),
		compile:     compile,
		effectDir:   effectDir,
		presetDir:   presetDir,
		Postprocess: postprocess.DefaultSettings(),
		presetIdx:   -1,
		showSeed:    time.Now().UnixNano(),
	}

	names, err := scanManifestDir(effectDir)
	if err != nil {
		return nil, fmt.Errorf("engine: scanning effect directory: %w", err)
	}
	e.effectNames = names

	presetNames, warnings := preset.List(presetDir)
	for _, w := range warnings {
		e.publish(event.PresetLoadWarning, event.SeverityRecoverable, w.Error())
	}
	e.presetNames = presetNames

	return e, nil
}

func scanManifestDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".toml") {
			continue
		}
		names = append(names, strings.TrimSuffix(ent.Name(), ".toml"))
	}
	sort.Strings(names)
	return names, nil
}

func (e *Engine) publish(kind event.Kind, sev event.Severity, msg string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(event.Event{Kind: kind, Severity: sev, Message: msg, Source: "engine"})
}

// Stack exposes the layer stack for callers that need direct read access
// (the compositor, the web surface's state snapshot).
func (e *Engine) Stack() *layer.Stack { return e.stack }

// Runtime returns the runtime paired with a layer ID, or nil if none
// exists (e.g. the layer was built outside AddLayer).
func (e *Engine) Runtime(id uuid.UUID) *LayerRuntime { return e.runtimes[id] }

// effectNameOf reports the manifest name a layer is currently running,
// for preset.CaptureStack's effectOf callback.
func (e *Engine) effectNameOf(l *layer.Layer) string {
	if rt := e.runtimes[l.ID]; rt != nil {
		return rt.ManifestName
	}
	return ""
}

// Runtimes returns every tracked layer runtime, in no particular order.
func (e *Engine) Runtimes() []*LayerRuntime {
	out := make([]*LayerRuntime, 0, len(e.runtimes))
	for _, rt := range e.runtimes {
		out = append(out, rt)
	}
	return out
}

// AddLayerFromManifest loads manifestPath, builds its pass executor and
// (if declared) its particle system, and appends the new layer to the
// stack.
func (e *Engine) AddLayerFromManifest(manifestPath string) (*layer.Layer, error) {
	def, err := pass.LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	return e.addLayer(def, filepath.Dir(manifestPath), manifestPath, manifestBaseName(manifestPath))
}

// AddLayerByName resolves name to a manifest under the effect directory
// (<effectDir>/<name>.toml) and loads it.
func (e *Engine) AddLayerByName(name string) (*layer.Layer, error) {
	return e.AddLayerFromManifest(filepath.Join(e.effectDir, name+".toml"))
}

func manifestBaseName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func (e *Engine) addLayer(def pass.EffectDef, baseDir, manifestPath, manifestName string) (*layer.Layer, error) {
	exec, err := pass.NewExecutor(def, baseDir, e.compile, e.bus, manifestPath)
	if err != nil {
		return nil, fmt.Errorf("engine: building layer %q: %w", def.Name, err)
	}

	l := layer.NewLayer(def.Name)
	for _, pd := range def.Params {
		if err := l.Params.Define(pd); err != nil {
			return nil, fmt.Errorf("engine: layer %q parameter %q: %w", def.Name, pd.Name, err)
		}
	}

	if err := e.stack.Add(l); err != nil {
		return nil, err
	}

	rt := &LayerRuntime{Layer: l, Executor: exec, Def: def, ManifestName: manifestName}
	if def.Particle != nil {
		rt.Particles = particle.NewSystem(def.Particle.MaxCount, emitterFromDef(*def.Particle), seedFromUUID(l.ID))
	}
	e.runtimes[l.ID] = rt
	return l, nil
}

// RemoveLayer removes the layer with the given ID from the stack and
// drops its runtime.
func (e *Engine) RemoveLayer(id uuid.UUID) error {
	if err := e.stack.Remove(id); err != nil {
		return err
	}
	delete(e.runtimes, id)
	return nil
}

func emitterFromDef(d pass.ParticleDef) particle.Emitter {
	return particle.Emitter{
		Shape:        emitterShapeFromString(d.Shape),
		Position:     [2]float32{float32(d.Position[0]), float32(d.Position[1])},
		Radius:       float32(d.Radius),
		InitialSpeed: float32(d.InitialSpeed),
		SizeStart:    float32(d.SizeStart),
		SizeEnd:      float32(d.SizeEnd),
		Lifetime:     float32(d.Lifetime),
		Color:        d.Color,
		Gravity:      [2]float32{float32(d.Gravity[0]), float32(d.Gravity[1])},
		Drag:         float32(d.Drag),
	}
}

func emitterShapeFromString(s string) gpu.ParticleEmitterShape {
	switch s {
	case "ring":
		return gpu.EmitterRing
	case "line":
		return gpu.EmitterLine
	case "screen":
		return gpu.EmitterScreen
	case "image":
		return gpu.EmitterImage
	default:
		return gpu.EmitterPoint
	}
}

// seedFromUUID derives a particle seed from a layer's identity, so a
// layer keeps the same seed for as long as it exists without engine
// needing its own RNG/seed plumbing. Layer IDs come from uuid.New, so a
// freshly created layer gets a different seed on every run; applyPreset
// replaces it with preset.LayerSeeds' reproducible per-layer seed.
func seedFromUUID(id uuid.UUID) uint64 {
	return binary.LittleEndian.Uint64(id[:8])
}

// EmitBudget computes one frame's particle emission budget from the
// manifest's declared rate/burst and the current audio snapshot, per
// spec §4.5: "emit_budget = emit_rate · dt + beat_burst · beat".
func EmitBudget(def *pass.ParticleDef, f audio.Features, dt float64) int {
	if def == nil {
		return 0
	}
	budget := def.EmitRate*dt + def.BurstOnBeat*f.Beat
	if budget < 0 {
		budget = 0
	}
	return int(budget)
}

// StepParticles advances every layer's particle system (if any) by dt
// seconds, using the current audio snapshot to compute each layer's
// emission budget.
func (e *Engine) StepParticles(f audio.Features, dt float64) {
	for _, rt := range e.runtimes {
		if rt.Particles == nil {
			continue
		}
		rt.Particles.Step(dt, EmitBudget(rt.Def.Particle, f, dt))
	}
}

// ReloadChangedShaders attempts a hot-reload of every layer whose
// manifest shader paths intersect changed, logging (not failing) any
// compile error — the executor itself keeps the previous pipeline and
// publishes a ShaderCompileError event (spec §4.6).
func (e *Engine) ReloadChangedShaders(changed map[string]bool) {
	for _, rt := range e.runtimes {
		if _, err := rt.Executor.Reload(changed); err != nil {
			e.log.WithError(err).WithField("layer", rt.Layer.Name).Debug("shader reload failed, previous pipeline retained")
		}
	}
}

// EffectivePostprocess returns the post-process settings a layer should
// render with: the global settings merged with that layer's manifest
// override, if any.
func (e *Engine) EffectivePostprocess(rt *LayerRuntime) postprocess.Settings {
	ov := rt.Def.Postprocess
	return e.Postprocess.WithOverride(ov.Enabled, ov.BloomThreshold, ov.BloomIntensity, ov.Vignette)
}

// DrainInput applies every queued router command to the engine in the
// fixed MIDI → OSC → Web order (spec §4.8).
func (e *Engine) DrainInput() {
	e.Router.Drain(e)
}

// resolveLayer turns a router LayerIndex (-1 meaning "active") into a
// concrete layer and its runtime.
func (e *Engine) resolveLayer(layerIndex int) (*layer.Layer, *LayerRuntime, error) {
	var l *layer.Layer
	if layerIndex < 0 {
		l = e.stack.Active()
		if l == nil {
			return nil, nil, fmt.Errorf("engine: no active layer")
		}
	} else {
		layers := e.stack.Layers()
		if layerIndex >= len(layers) {
			return nil, nil, fmt.Errorf("engine: layer index %d out of range (have %d)", layerIndex, len(layers))
		}
		l = layers[layerIndex]
	}
	return l, e.runtimes[l.ID], nil
}

// SetParam implements router.Target. A locked layer silently absorbs the
// write (spec §4.2: "a locked layer rejects parameter writes from input
// routers"), reporting no error since this is expected, routine
// behavior, not a malfunction.
func (e *Engine) SetParam(layerIndex int, name string, v float64) error {
	l, _, err := e.resolveLayer(layerIndex)
	if err != nil {
		return err
	}
	if l.Locked {
		return nil
	}
	d, ok := l.Params.Def(name)
	if !ok {
		return fmt.Errorf("engine: layer %q has no parameter %q", l.Name, name)
	}
	if d.Kind == param.KindBool {
		return l.Params.SetBool(name, v > 0.5)
	}
	return l.Params.SetFloat(name, v)
}

// SetLayerOpacity implements router.Target.
func (e *Engine) SetLayerOpacity(layerIndex int, v float64) error {
	l, _, err := e.resolveLayer(layerIndex)
	if err != nil {
		return err
	}
	if l.Locked {
		return nil
	}
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	l.Opacity = v
	return nil
}

// SetLayerBlend implements router.Target.
func (e *Engine) SetLayerBlend(layerIndex int, mode int) error {
	l, _, err := e.resolveLayer(layerIndex)
	if err != nil {
		return err
	}
	if l.Locked {
		return nil
	}
	if mode < 0 || mode > int(layer.BlendSubtract) {
		return fmt.Errorf("engine: invalid blend mode %d", mode)
	}
	l.Blend = layer.BlendMode(mode)
	return nil
}

// SetLayerEnabled implements router.Target, mapping the router's generic
// "enabled" flag onto the layer's Visible attribute.
func (e *Engine) SetLayerEnabled(layerIndex int, enabled bool) error {
	l, _, err := e.resolveLayer(layerIndex)
	if err != nil {
		return err
	}
	if l.Locked {
		return nil
	}
	l.Visible = enabled
	return nil
}

// SetPostprocessEnabled implements router.Target.
func (e *Engine) SetPostprocessEnabled(enabled bool) {
	e.Postprocess.Enabled = enabled
}

// Trigger implements router.Target, dispatching one of the fixed trigger
// action names to its effect (spec §4.7's "Trigger names: next_effect,
// prev_effect, next_preset, prev_preset, next_layer, prev_layer,
// toggle_postprocess, toggle_overlay"). Every action is dispatched
// whatever the active layer's lock state, and the actions that touch a
// layer respect the lock themselves: next_effect/prev_effect leave a
// locked active layer on its current effect, and next_preset/prev_preset
// skip locked layers when applying the preset.
func (e *Engine) Trigger(action string) {
	switch action {
	case "next_layer":
		e.cycleActiveLayer(1)
	case "prev_layer":
		e.cycleActiveLayer(-1)
	case "next_effect":
		e.cycleEffect(1)
	case "prev_effect":
		e.cycleEffect(-1)
	case "next_preset":
		e.cyclePreset(1)
	case "prev_preset":
		e.cyclePreset(-1)
	case "toggle_postprocess":
		e.Postprocess.Enabled = !e.Postprocess.Enabled
	case "toggle_overlay":
		e.OverlayVisible = !e.OverlayVisible
	default:
		e.log.WithField("action", action).Debug("unrecognized trigger action")
	}
}

func (e *Engine) cycleActiveLayer(delta int) {
	layers := e.stack.Layers()
	if len(layers) == 0 {
		return
	}
	active := e.stack.Active()
	idx := 0
	if active != nil {
		for i, l := range layers {
			if l.ID == active.ID {
				idx = i
				break
			}
		}
	}
	next := wrap(idx+delta, len(layers))
	_ = e.stack.SetActive(layers[next].ID)
}

func wrap(i, n int) int {
	if n == 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// cycleEffect replaces the active layer's effect with the next/previous
// one in the effect directory's manifest listing, preserving the
// layer's position, blend mode, and opacity but rebuilding its parameter
// store, executor, and particle system from the new manifest.
func (e *Engine) cycleEffect(delta int) {
	if len(e.effectNames) == 0 {
		return
	}
	active := e.stack.Active()
	if active == nil || active.Locked {
		return
	}
	rt := e.runtimes[active.ID]
	idx := 0
	if rt != nil {
		for i, name := range e.effectNames {
			if name == rt.ManifestName {
				idx = i
				break
			}
		}
	}
	next := e.effectNames[wrap(idx+delta, len(e.effectNames))]
	if err := e.loadEffectOnto(active, next); err != nil {
		e.log.WithError(err).WithField("effect", next).Warn("failed to switch effect")
	}
}

// LoadEffectOnLayer replaces the named layer's effect by manifest name,
// the targeted counterpart to cycleEffect's relative stepping (used by
// the web control surface's load_effect message, which names an effect
// directly rather than stepping through the library).
func (e *Engine) LoadEffectOnLayer(layerIndex int, name string) error {
	l, _, err := e.resolveLayer(layerIndex)
	if err != nil {
		return err
	}
	if l.Locked {
		return nil
	}
	return e.loadEffectOnto(l, name)
}

// loadEffectOnto rebuilds l's LayerRuntime wholesale from the named
// manifest: new parameter store, executor, and (if declared) particle
// system, replacing whatever the layer was running before.
func (e *Engine) loadEffectOnto(l *layer.Layer, name string) error {
	path := filepath.Join(e.effectDir, name+".toml")
	def, err := pass.LoadManifest(path)
	if err != nil {
		return fmt.Errorf("engine: loading effect %q: %w", name, err)
	}
	exec, err := pass.NewExecutor(def, e.effectDir, e.compile, e.bus, path)
	if err != nil {
		return fmt.Errorf("engine: compiling effect %q: %w", name, err)
	}

	l.Params = param.NewStore()
	for _, pd := range def.Params {
		if err := l.Params.Define(pd); err != nil {
			return fmt.Errorf("engine: effect %q parameter %q: %w", name, pd.Name, err)
		}
	}

	rt := &LayerRuntime{Layer: l, Executor: exec, Def: def, ManifestName: name}
	if def.Particle != nil {
		rt.Particles = particle.NewSystem(def.Particle.MaxCount, emitterFromDef(*def.Particle), seedFromUUID(l.ID))
	}
	e.runtimes[l.ID] = rt
	return nil
}

// SelectLayer sets the active layer by stack index, for the web control
// surface's select_layer message.
func (e *Engine) SelectLayer(index int) error {
	layers := e.stack.Layers()
	if index < 0 || index >= len(layers) {
		return fmt.Errorf("engine: layer index %d out of range (have %d)", index, len(layers))
	}
	return e.stack.SetActive(layers[index].ID)
}

// LoadPresetByName loads a preset directly by name, for the web control
// surface's load_preset message, and realigns presetIdx so a subsequent
// next_preset/prev_preset trigger steps from this preset rather than
// wherever cycling last left off.
func (e *Engine) LoadPresetByName(name string) error {
	p, err := preset.Load(e.presetDir, name)
	if err != nil {
		return err
	}
	e.applyPreset(p)
	for i, n := range e.presetNames {
		if n == name {
			e.presetIdx = i
			break
		}
	}
	return nil
}

// applyPreset rebuilds the stack's layer/effect topology to match p
// before writing its parameter values, since a preset's opacity/blend/
// param data is meaningless if applied onto the wrong effect's
// ParamStore. Locked layers keep whatever effect they are already
// running (spec §4.2: locked layers are skipped by preset load).
func (e *Engine) applyPreset(p preset.Preset) {
	layers := e.stack.Layers()
	for i, snap := range p.Layers {
		if i >= len(layers) {
			l, err := e.AddLayerByName(snap.Effect)
			if err != nil {
				e.log.WithError(err).WithField("effect", snap.Effect).Warn("preset load: failed to add layer")
				continue
			}
			layers = append(layers, l)
			continue
		}
		l := layers[i]
		if l.Locked {
			continue
		}
		if rt := e.runtimes[l.ID]; rt == nil || rt.ManifestName != snap.Effect {
			if err := e.loadEffectOnto(l, snap.Effect); err != nil {
				e.log.WithError(err).WithField("effect", snap.Effect).Warn("preset load: failed to switch layer effect")
			}
		}
	}

	seeds := preset.LayerSeeds(p)
	for i := range p.Layers {
		if i >= len(layers) || layers[i].Locked {
			continue
		}
		if rt := e.runtimes[layers[i].ID]; rt != nil && rt.Particles != nil {
			rt.Particles.FrameSeed = seeds[i]
		}
	}

	for _, applyErr := range preset.ApplyToStack(p, e.stack) {
		e.log.WithError(applyErr).Debug("preset value rejected while applying")
	}
	e.Postprocess = postprocess.Settings{
		Enabled:        p.Postprocess.Enabled,
		BloomThreshold: p.Postprocess.BloomThreshold,
		BloomIntensity: p.Postprocess.BloomIntensity,
		Vignette:       p.Postprocess.Vignette,
	}
}

// cyclePreset loads the next/previous preset file (alphabetical order)
// onto the current stack, per the preset list cached at startup.
func (e *Engine) cyclePreset(delta int) {
	if len(e.presetNames) == 0 {
		return
	}
	e.presetIdx = wrap(e.presetIdx+delta, len(e.presetNames))
	name := e.presetNames[e.presetIdx]
	p, err := preset.Load(e.presetDir, name)
	if err != nil {
		e.log.WithError(err).WithField("preset", name).Warn("failed to load preset")
		return
	}
	e.applyPreset(p)
}

// CapturePreset snapshots the current stack and post-process settings
// into a named preset and writes it to the preset directory, refreshing
// the cached preset-name listing so cyclePreset can reach it.
func (e *Engine) CapturePreset(name string) error {
	pp := preset.PostprocessSettings{
		Enabled:        e.Postprocess.Enabled,
		BloomThreshold: e.Postprocess.BloomThreshold,
		BloomIntensity: e.Postprocess.BloomIntensity,
		Vignette:       e.Postprocess.Vignette,
	}
	p := preset.CaptureStack(name, e.stack, e.effectNameOf, e.showSeed, pp)
	if err := preset.Save(e.presetDir, p); err != nil {
		return err
	}
	names, warnings := preset.List(e.presetDir)
	for _, w := range warnings {
		e.publish(event.PresetLoadWarning, event.SeverityRecoverable, w.Error())
	}
	e.presetNames = names
	return nil
}
