package particle

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.3-core/gl"
)

// Vertex-pulling billboard shaders: the vertex shader reads the particle
// directly out of the bound storage buffer by gl_InstanceID, so no
// per-particle vertex attributes are uploaded from the CPU side (spec
// §4.5: "Vertex-pulling instanced draw, six vertices/instance expanded to
// aspect-corrected screen-space quads"). Dead particles collapse to a
// degenerate triangle at the origin rather than being culled from the
// draw call, so the instance count stays fixed at MaxCount.
const particleVertSrc = `
#version 430 core

struct Particle {
    vec4 posLife;
    vec4 velSize;
    vec4 color;
    vec4 ageLifetimeExtra;
};

layout(std430, binding = 0) readonly buffer Particles {
    Particle particles[];
};

uniform vec2 aspectCorrection;

out vec4 fragColor;

const vec2 corners[6] = vec2[6](
    vec2(-1.0,  1.0), vec2(1.0,  1.0), vec2(1.0, -1.0),
    vec2(-1.0,  1.0), vec2(1.0, -1.0), vec2(-1.0, -1.0)
);

void main() {
    Particle p = particles[gl_InstanceID];
    if (p.posLife.w <= 0.0) {
        gl_Position = vec4(0.0, 0.0, 0.0, 1.0);
        fragColor = vec4(0.0);
        return;
    }

    vec2 corner = corners[gl_VertexID % 6] * p.velSize.w;
    vec2 world  = p.posLife.xy + corner * aspectCorrection;

    gl_Position = vec4(world, 0.0, 1.0);
    fragColor   = p.color;
}
` + "\x00"

const particleFragSrc = `
#version 430 core
in vec4 fragColor;
out vec4 outColor;

void main() {
    outColor = fragColor;
}
` + "\x00"

// Renderer owns the GPU program and the storage-buffer binding used for
// vertex pulling. It holds no per-particle vertex data; System.Current()
// is uploaded into the bound SSBO by the caller before Draw.
type Renderer struct {
	prog          uint32
	vao           uint32
	aspectLoc     int32
	additiveBlend bool
}

// Compiler compiles a vertex+fragment shader pair into a linked GPU
// program. internal/pass owns the real implementation (shader library
// prepending, compile-error surfacing); passing it in keeps this package
// testable without a GL context.
type Compiler func(vertSrc, fragSrc string) (uint32, error)

// NewRenderer compiles the vertex-pulling particle shader via compile.
func NewRenderer(compile Compiler, additiveBlend bool) (*Renderer, error) {
	if compile == nil {
		return nil, fmt.Errorf("particle: no shader compiler supplied")
	}
	prog, err := compile(particleVertSrc, particleFragSrc)
	if err != nil {
		return nil, fmt.Errorf("particle shader: %w", err)
	}

	var vao uint32
	gl.GenVertexArrays(1, &vao)

	return &Renderer{
		prog:          prog,
		vao:           vao,
		aspectLoc:     gl.GetUniformLocation(prog, gl.Str("aspectCorrection\x00")),
		additiveBlend: additiveBlend,
	}, nil
}

// Draw issues one instanced draw call over instanceCount particles, with
// the particle SSBO already bound by the caller to binding point 0.
// Blend mode defaults to additive (SrcAlpha, One) per spec §4.5; alpha
// blending is opt-in via additiveBlend=false at construction.
func (r *Renderer) Draw(instanceCount int, aspect float32) {
	if instanceCount <= 0 {
		return
	}

	gl.Enable(gl.BLEND)
	if r.additiveBlend {
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE)
	} else {
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	}
	gl.DepthMask(false)

	gl.UseProgram(r.prog)
	gl.Uniform2f(r.aspectLoc, 1.0/aspect, 1.0)

	gl.BindVertexArray(r.vao)
	gl.DrawArraysInstanced(gl.TRIANGLES, 0, 6, int32(instanceCount))
	gl.BindVertexArray(0)

	gl.DepthMask(true)
	gl.Disable(gl.BLEND)
}

func (r *Renderer) Destroy() {
	gl.DeleteVertexArrays(1, &r.vao)
	gl.DeleteProgram(r.prog)
}
