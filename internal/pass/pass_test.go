package pass

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/phosphor-vj/phosphor/internal/event"
)

func writeShader(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return name
}

func countingCompiler(calls *int) Compiler {
	return func(vertSrc, fragSrc string) (uint32, error) {
		*calls++
		return uint32(*calls), nil
	}
}

func failingCompiler(vertSrc, fragSrc string) (uint32, error) {
	return 0, fmt.Errorf("glsl: syntax error")
}

func TestNewExecutorCompilesSingleShaderEffect(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "glow.frag", "vec4 effect(vec2 uv) { return vec4(uv, 0.0, 1.0); }")

	calls := 0
	def := EffectDef{Name: "glow", Shader: "glow.frag"}
	ex, err := NewExecutor(def, dir, countingCompiler(&calls), nil, "layer[0]")
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Len(t, ex.Pipeline().Passes, 1)
}

func TestNewExecutorFailsWithNoPreviousToFallBackOn(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "broken.frag", "not valid glsl")

	def := EffectDef{Name: "broken", Shader: "broken.frag"}
	_, err := NewExecutor(def, dir, failingCompiler, nil, "layer[0]")
	require.Error(t, err)
}

func TestReloadRetainsPreviousPipelineOnCompileFailure(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "a.frag", "vec4 effect(vec2 uv) { return vec4(1.0); }")

	calls := 0
	def := EffectDef{Name: "a", Shader: "a.frag"}
	ex, err := NewExecutor(def, dir, countingCompiler(&calls), nil, "layer[0]")
	require.NoError(t, err)
	original := ex.Pipeline()

	writeShader(t, dir, "a.frag", "this does not parse")
	ex.compile = failingCompiler

	swapped, err := ex.Reload(map[string]bool{filepath.Join(dir, "a.frag"): true})
	require.Error(t, err)
	require.False(t, swapped)
	require.Same(t, original, ex.Pipeline(), "pipeline must be unchanged after a failed recompile")
}

func TestReloadSwapsOnSuccessAndPublishesEvent(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "a.frag", "vec4 effect(vec2 uv) { return vec4(1.0); }")

	calls := 0
	bus := event.NewBus(8)
	def := EffectDef{Name: "a", Shader: "a.frag"}
	ex, err := NewExecutor(def, dir, countingCompiler(&calls), bus, "layer[0]")
	require.NoError(t, err)
	original := ex.Pipeline()
	bus.Drain() // discard anything from construction (none expected, but keep this robust)

	writeShader(t, dir, "a.frag", "vec4 effect(vec2 uv) { return vec4(0.0); }")
	swapped, err := ex.Reload(map[string]bool{filepath.Join(dir, "a.frag"): true})
	require.NoError(t, err)
	require.True(t, swapped)
	require.NotSame(t, original, ex.Pipeline())

	events := bus.Drain()
	require.Len(t, events, 1)
	require.Equal(t, event.ShaderCompileOK, events[0].Kind)
}

func TestReloadSkipsEffectsNotInChangedSet(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "a.frag", "vec4 effect(vec2 uv) { return vec4(1.0); }")

	calls := 0
	def := EffectDef{Name: "a", Shader: "a.frag"}
	ex, err := NewExecutor(def, dir, countingCompiler(&calls), nil, "layer[0]")
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	swapped, err := ex.Reload(map[string]bool{filepath.Join(dir, "unrelated.frag"): true})
	require.NoError(t, err)
	require.False(t, swapped)
	require.Equal(t, 1, calls, "unrelated shader change must not trigger a recompile")
}

func TestReloadDedupesUnchangedPassesByContentHash(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "one.frag", "vec4 effect(vec2 uv) { return vec4(1.0); }")
	writeShader(t, dir, "two.frag", "vec4 effect(vec2 uv) { return vec4(2.0); }")

	calls := 0
	def := EffectDef{
		Name: "multi",
		Passes: []PassDef{
			{Name: "one", Shader: "one.frag"},
			{Name: "two", Shader: "two.frag"},
		},
	}
	ex, err := NewExecutor(def, dir, countingCompiler(&calls), nil, "layer[0]")
	require.NoError(t, err)
	require.Equal(t, 2, calls)

	originalOneProgram := ex.Pipeline().Passes[0].program

	writeShader(t, dir, "two.frag", "vec4 effect(vec2 uv) { return vec4(3.0); }")
	swapped, err := ex.Reload(map[string]bool{filepath.Join(dir, "two.frag"): true})
	require.NoError(t, err)
	require.True(t, swapped)
	require.Equal(t, 3, calls, "only the changed pass recompiles")
	require.Equal(t, originalOneProgram, ex.Pipeline().Passes[0].program, "unchanged pass keeps its program handle")
}

func TestMultiPassFinalPassIsLast(t *testing.T) {
	dir := t.TempDir()
	writeShader(t, dir, "first.frag", "vec4 effect(vec2 uv) { return vec4(1.0); }")
	writeShader(t, dir, "second.frag", "vec4 effect(vec2 uv) { return vec4(2.0); }")

	calls := 0
	def := EffectDef{
		Name: "chain",
		Passes: []PassDef{
			{Name: "first", Shader: "first.frag"},
			{Name: "second", Shader: "second.frag", FeedbackEnabled: true},
		},
	}
	ex, err := NewExecutor(def, dir, countingCompiler(&calls), nil, "layer[0]")
	require.NoError(t, err)
	require.Len(t, ex.Pipeline().Passes, 2)
	require.Equal(t, "second", ex.Pipeline().Passes[len(ex.Pipeline().Passes)-1].def.Name)
}
