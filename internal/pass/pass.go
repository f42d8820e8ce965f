package pass

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/phosphor-vj/phosphor/internal/event"
)

// Compiler compiles a vertex+fragment GLSL pair into a linked GPU program
// handle. Injected rather than called directly so this package's reload
// logic can be exercised without a live GL context (the same dependency
// inversion internal/particle's Renderer uses).
type Compiler func(vertSrc, fragSrc string) (uint32, error)

// compiledPass is one live, linked pass program plus the source hash it
// was built from.
type compiledPass struct {
	def     PassDef
	program uint32
	hash    [32]byte
}

// Program returns the linked GPU program handle for this pass, for
// callers (internal/engine's renderer) driving the actual draw calls.
func (p compiledPass) Program() uint32 { return p.program }

// FeedbackEnabled reports whether this pass reads back its own
// previous-frame output via the shader library's feedback().
func (p compiledPass) FeedbackEnabled() bool { return p.def.FeedbackEnabled }

// Name returns the pass's diagnostic/feedback-lookup name.
func (p compiledPass) Name() string { return p.def.Name }

// Pipeline is the full set of compiled passes backing one effect layer,
// in declared evaluation order. The final pass's output is the layer's
// output (spec's pass-ordering invariant).
type Pipeline struct {
	Passes []compiledPass
}

// Executor owns one effect layer's Pipeline and swaps it atomically on
// successful recompilation, keeping the previous Pipeline on failure
// (spec §4.6/teacher wasm_loader.go's load/validate/keep-previous
// lifecycle, generalized from WASM modules to GLSL programs).
type Executor struct {
	def      EffectDef
	baseDir  string
	compile  Compiler
	bus      *event.Bus
	source   string // "layer[N]" or similar, used in event.Event.Source
	pipeline *Pipeline
}

// NewExecutor builds an Executor for def. baseDir resolves each pass's
// relative shader path. Compile performs the initial build; a failure
// here is returned directly since there is no previous pipeline to fall
// back to.
func NewExecutor(def EffectDef, baseDir string, compile Compiler, bus *event.Bus, source string) (*Executor, error) {
	e := &Executor{def: def, baseDir: baseDir, compile: compile, bus: bus, source: source}
	pl, err := e.build(nil)
	if err != nil {
		return nil, fmt.Errorf("pass: initial compile for %q: %w", def.Name, err)
	}
	e.pipeline = pl
	return e, nil
}

// Pipeline returns the currently active, successfully-compiled pipeline.
func (e *Executor) Pipeline() *Pipeline {
	return e.pipeline
}

// Reload recompiles every pass whose shader file's content hash changed
// since the last successful build (content-hash de-duplication, spec
// §4.6's "avoid repeated no-op reloads from editor autosave cycles"). On
// any failure, the previous pipeline is retained in full and a
// ShaderCompileError event is published; on success the new pipeline
// replaces the old one and a ShaderCompileOK event is published. Returns
// whether a swap happened.
func (e *Executor) Reload(changedPaths map[string]bool) (bool, error) {
	if !e.anyPassChanged(changedPaths) {
		return false, nil
	}

	newPipeline, err := e.build(e.pipeline)
	if err != nil {
		e.publish(event.ShaderCompileError, event.SeverityRecoverable, err.Error())
		return false, err
	}

	e.pipeline = newPipeline
	e.publish(event.ShaderCompileOK, event.SeverityRecoverable, fmt.Sprintf("effect %q recompiled", e.def.Name))
	return true, nil
}

func (e *Executor) anyPassChanged(changedPaths map[string]bool) bool {
	if changedPaths == nil {
		return true // forced reload (e.g. first call after a manual edit with no watcher)
	}
	for _, p := range e.def.effectivePasses() {
		if changedPaths[e.resolvePath(p.Shader)] {
			return true
		}
	}
	return false
}

func (e *Executor) resolvePath(shaderPath string) string {
	if e.baseDir == "" {
		return shaderPath
	}
	return e.baseDir + "/" + shaderPath
}

// build compiles every declared pass fresh. previous, if non-nil, lets
// passes whose content hash is unchanged reuse their existing program
// handle instead of recompiling (and, on any later pass's failure,
// lets the caller discard the whole attempt without touching previous).
func (e *Executor) build(previous *Pipeline) (*Pipeline, error) {
	passes := e.def.effectivePasses()
	out := make([]compiledPass, 0, len(passes))

	for _, p := range passes {
		src, err := os.ReadFile(e.resolvePath(p.Shader))
		if err != nil {
			return nil, fmt.Errorf("pass %q: reading %q: %w", p.Name, p.Shader, err)
		}
		hash := sha256.Sum256(src)

		if prev := findByName(previous, p.Name); prev != nil && prev.hash == hash {
			out = append(out, *prev)
			continue
		}

		prog, err := e.compile(passVertSrc, wrapEffectSrc(string(src)))
		if err != nil {
			return nil, fmt.Errorf("pass %q: compiling %q: %w", p.Name, p.Shader, err)
		}
		out = append(out, compiledPass{def: p, program: prog, hash: hash})
	}

	return &Pipeline{Passes: out}, nil
}

func findByName(pl *Pipeline, name string) *compiledPass {
	if pl == nil {
		return nil
	}
	for i := range pl.Passes {
		if pl.Passes[i].def.Name == name {
			return &pl.Passes[i]
		}
	}
	return nil
}

func (e *Executor) publish(kind event.Kind, sev event.Severity, msg string) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(event.Event{Kind: kind, Severity: sev, Message: msg, Source: e.source})
}
