package engine

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.3-core/gl"
	"github.com/google/uuid"

	"github.com/phosphor-vj/phosphor/internal/gpu"
	"github.com/phosphor-vj/phosphor/internal/layer"
	"github.com/phosphor-vj/phosphor/internal/param"
	"github.com/phosphor-vj/phosphor/internal/particle"
	"github.com/phosphor-vj/phosphor/internal/pass"
	"github.com/phosphor-vj/phosphor/internal/postprocess"
)

// compositeVertSrc is the same fullscreen-triangle vertex shader every
// other pass/post-process stage uses (no vertex attributes, indexed
// purely off gl_VertexID).
const compositeVertSrc = `#version 430 core
out vec2 fragUV;
void main() {
    const vec2 pos[3] = vec2[3](
        vec2(-1.0, -1.0),
        vec2( 3.0, -1.0),
        vec2(-1.0,  3.0)
    );
    gl_Position = vec4(pos[gl_VertexID], 0.0, 1.0);
    fragUV      = pos[gl_VertexID] * 0.5 + 0.5;
}
` + "\x00"

// compositeFragSrc mirrors internal/compositor/blend.go's ten blend
// formulas and the Composite opacity-lerp exactly, so the GPU path and
// the host-testable reference agree bit-for-bit in shape. mode follows
// internal/layer's BlendMode ordering (Normal=0 ... Subtract=9).
const compositeFragSrc = `#version 430 core
in vec2 fragUV;
out vec4 outColor;

uniform sampler2D backdropTex;
uniform sampler2D srcTex;
uniform int mode;
uniform float opacity;

float screenF(float b, float s) { return 1.0 - (1.0 - b) * (1.0 - s); }
float colorDodgeF(float b, float s) {
    if (s >= 1.0) { return b <= 0.0 ? 0.0 : 4.0; }
    return min(4.0, b / (1.0 - s));
}
float overlayF(float b, float s) {
    return b <= 0.5 ? 2.0 * b * s : 1.0 - 2.0 * (1.0 - b) * (1.0 - s);
}

vec3 blend(vec3 b, vec3 s) {
    if (mode == 0) return s;
    if (mode == 1) return b + s;
    if (mode == 2) return vec3(screenF(b.r, s.r), screenF(b.g, s.g), screenF(b.b, s.b));
    if (mode == 3) return vec3(colorDodgeF(b.r, s.r), colorDodgeF(b.g, s.g), colorDodgeF(b.b, s.b));
    if (mode == 4) return b * s;
    if (mode == 5) return vec3(overlayF(b.r, s.r), overlayF(b.g, s.g), overlayF(b.b, s.b));
    if (mode == 6) return vec3(overlayF(s.r, b.r), overlayF(s.g, b.g), overlayF(s.b, b.b));
    if (mode == 7) return abs(b - s);
    if (mode == 8) return b + s - 2.0 * b * s;
    return b - s; // Subtract
}

void main() {
    vec3 backdrop = texture(backdropTex, fragUV).rgb;
    vec3 src      = texture(srcTex, fragUV).rgb;
    vec3 blended  = blend(backdrop, src);
    outColor = vec4(mix(backdrop, blended, opacity), 1.0);
}
` + "\x00"

// hdrTarget is one offscreen HDR color attachment.
type hdrTarget struct {
	fbo, tex uint32
	w, h     int32
}

func newHDRTarget(w, h int32) hdrTarget {
	var t hdrTarget
	t.w, t.h = w, h
	gl.GenTextures(1, &t.tex)
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA16F, w, h, 0, gl.RGBA, gl.HALF_FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.GenFramebuffers(1, &t.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, t.tex, 0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	return t
}

func (t *hdrTarget) destroy() {
	if t.fbo != 0 {
		gl.DeleteFramebuffers(1, &t.fbo)
	}
	if t.tex != 0 {
		gl.DeleteTextures(1, &t.tex)
	}
	*t = hdrTarget{}
}

// layerTarget is one layer's ping-pong pair. A multi-pass effect's
// passes are chained by swapping which half of the pair is the read
// source and which is the write destination; a pass declaring
// FeedbackEnabled samples that same read source as its feedback() input,
// so a single swap serves both the inter-pass chain and temporal
// self-feedback.
type layerTarget struct {
	buf [2]hdrTarget
	cur int
}

func newLayerTarget(w, h int32) *layerTarget {
	return &layerTarget{buf: [2]hdrTarget{newHDRTarget(w, h), newHDRTarget(w, h)}}
}

func (lt *layerTarget) read() hdrTarget  { return lt.buf[lt.cur] }
func (lt *layerTarget) write() hdrTarget { return lt.buf[1-lt.cur] }
func (lt *layerTarget) swap()            { lt.cur = 1 - lt.cur }
func (lt *layerTarget) destroy() {
	lt.buf[0].destroy()
	lt.buf[1].destroy()
}

// Renderer executes the GPU side of one frame: per-layer pass pipelines,
// particle overlays, blend compositing, and the post-process chain. It
// is the GPU-calling counterpart to the pure-Go decisions made in
// engine.go, following the same split internal/pass, internal/particle
// and internal/postprocess already draw between their *_test.go-covered
// logic and their render.go GL calls.
type Renderer struct {
	width, height int32
	compile       pass.Compiler

	frameUBO uint32

	compositeProg uint32
	compositeVAO  uint32

	accum    [2]hdrTarget
	accumIdx int

	layers    map[uuid.UUID]*layerTarget
	particles map[uuid.UUID]*particle.Renderer
	partSSBO  map[uuid.UUID]uint32

	post *postprocess.Chain
}

// NewRenderer allocates the accumulation buffers and compiles the
// composite and post-process shader programs.
func NewRenderer(compile pass.Compiler, width, height int) (*Renderer, error) {
	if compile == nil {
		return nil, fmt.Errorf("engine: no shader compiler supplied")
	}

	prog, err := compile(compositeVertSrc, compositeFragSrc)
	if err != nil {
		return nil, fmt.Errorf("engine: composite shader: %w", err)
	}

	post, err := postprocess.NewChain(postprocess.Compiler(compile))
	if err != nil {
		return nil, fmt.Errorf("engine: postprocess chain: %w", err)
	}

	var vao uint32
	gl.GenVertexArrays(1, &vao)

	var ubo uint32
	gl.GenBuffers(1, &ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, ubo)
	gl.BufferData(gl.UNIFORM_BUFFER, gpu.FrameUniformSize, nil, gl.DYNAMIC_DRAW)
	gl.BindBufferBase(gl.UNIFORM_BUFFER, 0, ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)

	r := &Renderer{
		width: int32(width), height: int32(height),
		compile:       compile,
		frameUBO:      ubo,
		compositeProg: prog,
		compositeVAO:  vao,
		layers:        make(map[uuid.UUID]*layerTarget),
		particles:     make(map[uuid.UUID]*particle.Renderer),
		partSSBO:      make(map[uuid.UUID]uint32),
		post:          post,
	}
	r.accum[0] = newHDRTarget(r.width, r.height)
	r.accum[1] = newHDRTarget(r.width, r.height)
	post.Resize(width, height)
	return r, nil
}

// Resize reallocates every owned render target for a new surface size.
func (r *Renderer) Resize(width, height int) {
	r.width, r.height = int32(width), int32(height)
	r.accum[0].destroy()
	r.accum[1].destroy()
	r.accum[0] = newHDRTarget(r.width, r.height)
	r.accum[1] = newHDRTarget(r.width, r.height)
	for _, lt := range r.layers {
		lt.destroy()
	}
	r.layers = make(map[uuid.UUID]*layerTarget)
	r.post.Resize(width, height)
}

// ReleaseLayer frees the GPU resources keyed by a layer ID that has been
// removed from the engine's stack (engine.Engine.RemoveLayer only drops
// the logical runtime; the renderer's per-layer targets outlive it until
// this is called explicitly).
func (r *Renderer) ReleaseLayer(id uuid.UUID) {
	if lt, ok := r.layers[id]; ok {
		lt.destroy()
		delete(r.layers, id)
	}
	if pr, ok := r.particles[id]; ok {
		pr.Destroy()
		delete(r.particles, id)
	}
	if ssbo, ok := r.partSSBO[id]; ok {
		gl.DeleteBuffers(1, &ssbo)
		delete(r.partSSBO, id)
	}
}

func (r *Renderer) targetFor(id uuid.UUID) *layerTarget {
	lt, ok := r.layers[id]
	if !ok {
		lt = newLayerTarget(r.width, r.height)
		r.layers[id] = lt
	}
	return lt
}

func (r *Renderer) particleRendererFor(id uuid.UUID) (*particle.Renderer, error) {
	if pr, ok := r.particles[id]; ok {
		return pr, nil
	}
	pr, err := particle.NewRenderer(particle.Compiler(r.compile), true)
	if err != nil {
		return nil, err
	}
	r.particles[id] = pr

	var ssbo uint32
	gl.GenBuffers(1, &ssbo)
	r.partSSBO[id] = ssbo
	return pr, nil
}

// RenderFrame runs every live layer's pass pipeline, overlays its
// particles, blend-composites the result into the accumulation buffer
// in stack order, and finishes with the post-process chain writing to
// whatever framebuffer is currently bound (0 = the window surface).
func (r *Renderer) RenderFrame(e *Engine, uniforms gpu.FrameUniforms, aspect float32) {
	gl.Disable(gl.DEPTH_TEST)
	defer gl.Enable(gl.DEPTH_TEST)

	r.accumIdx = 0
	r.clear(r.accum[r.accumIdx])

	for _, l := range e.Stack().Layers() {
		if !l.Visible {
			continue
		}
		rt := e.Runtime(l.ID)
		if rt == nil {
			continue
		}

		out := r.renderLayer(rt, l, uniforms)
		r.compositeLayer(out, l.Blend, l.Opacity, aspect)
	}

	r.post.Run(r.accum[r.accumIdx].tex, e.Postprocess,
		float64(uniforms.Audio[7]), float64(uniforms.Audio[15]), float64(uniforms.Audio[11]),
		r.width, r.height, e.FrameIndex)
}

func (r *Renderer) clear(t hdrTarget) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.Viewport(0, 0, t.w, t.h)
	gl.ClearColor(0, 0, 0, 1)
	gl.Clear(gl.COLOR_BUFFER_BIT)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
}

// renderLayer executes rt's compiled pass pipeline in order, each pass
// reading the previous half of the ping-pong pair as its feedback()
// source, and returns the texture holding the final pass's output.
func (r *Renderer) renderLayer(rt *LayerRuntime, l *layer.Layer, uniforms gpu.FrameUniforms) uint32 {
	lt := r.targetFor(l.ID)
	pipeline := rt.Executor.Pipeline()

	var paramBuf [param.MaxLanes]float32
	_ = l.Params.Pack(paramBuf[:])
	uniforms.Params = paramBuf

	for _, p := range pipeline.Passes {
		src := lt.read()
		dst := lt.write()

		decay := float32(0)
		if p.FeedbackEnabled() {
			decay = 0.95
		}
		u := uniforms
		u.FeedbackDecay = decay

		var buf [gpu.FrameUniformSize]byte
		_ = u.Pack(buf[:])
		gl.BindBuffer(gl.UNIFORM_BUFFER, r.frameUBO)
		gl.BufferSubData(gl.UNIFORM_BUFFER, 0, gpu.FrameUniformSize, gl.Ptr(&buf[0]))
		gl.BindBuffer(gl.UNIFORM_BUFFER, 0)

		gl.BindFramebuffer(gl.FRAMEBUFFER, dst.fbo)
		gl.Viewport(0, 0, dst.w, dst.h)
		gl.UseProgram(p.Program())
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, src.tex)
		gl.BindVertexArray(r.compositeVAO)
		gl.DrawArrays(gl.TRIANGLES, 0, 3)
		gl.BindVertexArray(0)
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

		lt.swap()
	}

	if rt.Particles != nil {
		r.drawParticles(rt, l.ID, lt.read())
	}

	return lt.read().tex
}

func (r *Renderer) drawParticles(rt *LayerRuntime, id uuid.UUID, into hdrTarget) {
	pr, err := r.particleRendererFor(id)
	if err != nil {
		return
	}
	ssbo := r.partSSBO[id]

	current := rt.Particles.Current()
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, len(current)*particleStructSize, gl.Ptr(current), gl.DYNAMIC_DRAW)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, 0, ssbo)

	gl.BindFramebuffer(gl.FRAMEBUFFER, into.fbo)
	gl.Viewport(0, 0, into.w, into.h)
	pr.Draw(len(current), float32(into.w)/float32(into.h))
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, 0)
}

// particleStructSize matches the four vec4 lanes of the Particle struct
// mirrored in particleVertSrc (posLife, velSize, color, ageLifetimeExtra).
const particleStructSize = 64

// compositeLayer blends src over the current accumulation buffer using
// the GPU mirror of internal/compositor/blend.go, writing into the
// other half of the accumulation ping-pong pair and swapping.
func (r *Renderer) compositeLayer(srcTex uint32, mode layer.BlendMode, opacity float64, aspect float32) {
	if opacity <= 0 {
		return
	}
	if opacity > 1 {
		opacity = 1
	}

	dstIdx := 1 - r.accumIdx
	dst := r.accum[dstIdx]
	backdrop := r.accum[r.accumIdx]

	gl.BindFramebuffer(gl.FRAMEBUFFER, dst.fbo)
	gl.Viewport(0, 0, dst.w, dst.h)
	gl.UseProgram(r.compositeProg)
	gl.Uniform1i(gl.GetUniformLocation(r.compositeProg, gl.Str("mode\x00")), int32(mode))
	gl.Uniform1f(gl.GetUniformLocation(r.compositeProg, gl.Str("opacity\x00")), float32(opacity))
	gl.Uniform1i(gl.GetUniformLocation(r.compositeProg, gl.Str("backdropTex\x00")), 0)
	gl.Uniform1i(gl.GetUniformLocation(r.compositeProg, gl.Str("srcTex\x00")), 1)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, backdrop.tex)
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, srcTex)
	gl.BindVertexArray(r.compositeVAO)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
	gl.BindVertexArray(0)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)

	r.accumIdx = dstIdx
}

// Destroy frees every GPU resource the renderer owns.
func (r *Renderer) Destroy() {
	r.accum[0].destroy()
	r.accum[1].destroy()
	for _, lt := range r.layers {
		lt.destroy()
	}
	for id, pr := range r.particles {
		pr.Destroy()
		ssbo := r.partSSBO[id]
		gl.DeleteBuffers(1, &ssbo)
	}
	if r.compositeProg != 0 {
		gl.DeleteProgram(r.compositeProg)
	}
	if r.compositeVAO != 0 {
		gl.DeleteVertexArrays(1, &r.compositeVAO)
	}
	if r.frameUBO != 0 {
		gl.DeleteBuffers(1, &r.frameUBO)
	}
	r.post.Destroy()
}
