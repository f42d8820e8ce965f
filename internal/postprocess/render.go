package postprocess

import (
	"fmt"

	gl "github.com/go-gl/gl/v4.3-core/gl"
)

// Compiler compiles a vertex+fragment GLSL pair into a linked program,
// the same dependency-inversion point internal/particle and internal/pass
// use to keep this package testable without a live GL context.
type Compiler func(vertSrc, fragSrc string) (uint32, error)

const ppVertSrc = `#version 430 core
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

// brightFragSrc extracts pixels above a soft-knee luminance threshold at
// whatever resolution the bound FBO is (quarter-res by convention, per
// §4.7 stage 1).
const brightFragSrc = `#version 430 core
in vec2 fragUV;
out vec4 outColor;
uniform sampler2D hdrBuffer;
uniform float threshold;
uniform float knee;
void main() {
    vec3 color = texture(hdrBuffer, fragUV).rgb;
    float luma = dot(color, vec3(0.2126, 0.7152, 0.0722));
    float soft = clamp(luma - threshold + knee, 0.0, 2.0 * knee);
    soft = soft * soft / (4.0 * knee + 1e-5);
    float contribution = max(luma - threshold, soft);
    outColor = vec4(color * (contribution / max(luma, 1e-5)), 1.0);
}
` + "\x00"

// blurFragSrc is a nine-tap separable Gaussian; texelDir selects axis.
const blurFragSrc = `#version 430 core
in vec2 fragUV;
out vec4 outColor;
uniform sampler2D tex;
uniform vec2 texelDir;
uniform float weights[9];
void main() {
    vec3 result = vec3(0.0);
    for (int i = -4; i <= 4; i++) {
        result += texture(tex, fragUV + float(i) * texelDir).rgb * weights[i + 4];
    }
    outColor = vec4(result, 1.0);
}
` + "\x00"

// compositeFragSrc implements §4.7 stage 3 in full: chromatic
// aberration (onset-driven), bloom add (rms-driven intensity), ACES
// tonemap, vignette, and flatness-driven animated grain.
const compositeFragSrc = `#version 430 core
in vec2 fragUV;
out vec4 outColor;

uniform sampler2D sceneTex;
uniform sampler2D bloomTex;
uniform float bloomIntensity;
uniform float aberrationOffset;
uniform float vignetteStrength;
uniform float grainIntensity;
uniform float grainSeed;

vec3 acesFilm(vec3 x) {
    float a = 2.51, b = 0.03, c = 2.43, d = 0.59, e = 0.14;
    return clamp((x * (a * x + b)) / (x * (c * x + d) + e), 0.0, 1.0);
}

float hash(vec2 p) {
    return fract(sin(dot(p, vec2(12.9898, 78.233)) + grainSeed) * 43758.5453);
}

void main() {
    vec2 center = vec2(0.5);
    vec2 dir = fragUV - center;

    float r = texture(sceneTex, fragUV - dir * aberrationOffset).r;
    float g = texture(sceneTex, fragUV).g;
    float b = texture(sceneTex, fragUV + dir * aberrationOffset).b;
    vec3 scene = vec3(r, g, b);

    scene += texture(bloomTex, fragUV).rgb * bloomIntensity;

    vec3 mapped = acesFilm(scene);

    float dist = length(dir) * 1.4142135;
    float vig = clamp(1.0 - dist * dist, 0.0, 1.0);
    vig = vignetteStrength * vig + (1.0 - vignetteStrength);
    mapped *= vig;

    float grain = (hash(fragUV) - 0.5) * grainIntensity;
    mapped += grain;

    outColor = vec4(mapped, 1.0);
}
` + "\x00"

// Chain owns the GPU resources for the four-stage pipeline: bright-pass
// extract, ping-pong blur, and composite. Quarter-resolution bloom FBOs
// are sized from the main target's dimensions each Resize.
type Chain struct {
	brightProg, blurProg, compositeProg uint32
	quadVAO                             uint32

	bloomFBO [2]uint32
	bloomTex [2]uint32
	bloomW   int32
	bloomH   int32
}

// NewChain compiles the three post-process programs.
func NewChain(compile Compiler) (*Chain, error) {
	bright, err := compile(ppVertSrc, brightFragSrc)
	if err != nil {
		return nil, fmt.Errorf("postprocess: bright-pass shader: %w", err)
	}
	blur, err := compile(ppVertSrc, blurFragSrc)
	if err != nil {
		return nil, fmt.Errorf("postprocess: blur shader: %w", err)
	}
	composite, err := compile(ppVertSrc, compositeFragSrc)
	if err != nil {
		return nil, fmt.Errorf("postprocess: composite shader: %w", err)
	}

	c := &Chain{brightProg: bright, blurProg: blur, compositeProg: composite}
	gl.GenVertexArrays(1, &c.quadVAO)
	return c, nil
}

// Resize (re)allocates the quarter-resolution ping-pong bloom FBOs for a
// main render target of width x height.
func (c *Chain) Resize(width, height int) {
	c.freeBloomFBOs()
	c.bloomW = int32(width) / 4
	if c.bloomW < 1 {
		c.bloomW = 1
	}
	c.bloomH = int32(height) / 4
	if c.bloomH < 1 {
		c.bloomH = 1
	}
	for i := 0; i < 2; i++ {
		gl.GenTextures(1, &c.bloomTex[i])
		gl.BindTexture(gl.TEXTURE_2D, c.bloomTex[i])
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA16F, c.bloomW, c.bloomH, 0, gl.RGBA, gl.HALF_FLOAT, nil)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
		gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
		gl.BindTexture(gl.TEXTURE_2D, 0)

		gl.GenFramebuffers(1, &c.bloomFBO[i])
		gl.BindFramebuffer(gl.FRAMEBUFFER, c.bloomFBO[i])
		gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, c.bloomTex[i], 0)
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	}
}

func (c *Chain) freeBloomFBOs() {
	for i := 0; i < 2; i++ {
		if c.bloomFBO[i] != 0 {
			gl.DeleteFramebuffers(1, &c.bloomFBO[i])
			c.bloomFBO[i] = 0
		}
		if c.bloomTex[i] != 0 {
			gl.DeleteTextures(1, &c.bloomTex[i])
			c.bloomTex[i] = 0
		}
	}
}

// Run executes the four-stage chain against sceneTex (the compositor's
// output) and blits the result into whichever framebuffer is currently
// bound (0 = the window surface). If s.Enabled is false, Run performs the
// single-blit bypass named in §4.7's closing line and skips bloom/CA/
// grain entirely, still applying the ACES tonemap since tonemapping an
// HDR target to an 8-bit surface is not optional.
func (c *Chain) Run(sceneTex uint32, s Settings, rms, onset, flatness float64, width, height int32, frameIndex uint32) {
	gl.Disable(gl.DEPTH_TEST)
	gl.BindVertexArray(c.quadVAO)
	defer gl.BindVertexArray(0)
	defer gl.Enable(gl.DEPTH_TEST)

	if !s.Enabled {
		c.runComposite(sceneTex, 0, 0, 0, s.Vignette, 0, width, height, frameIndex)
		return
	}

	threshold := EffectiveBloomThreshold(s.BloomThreshold, rms)
	intensity := EffectiveBloomIntensity(s.BloomIntensity, rms)
	weights := GaussianWeights9()

	gl.Viewport(0, 0, c.bloomW, c.bloomH)
	gl.BindFramebuffer(gl.FRAMEBUFFER, c.bloomFBO[0])
	gl.UseProgram(c.brightProg)
	gl.Uniform1f(gl.GetUniformLocation(c.brightProg, gl.Str("threshold\x00")), float32(threshold))
	gl.Uniform1f(gl.GetUniformLocation(c.brightProg, gl.Str("knee\x00")), 0.2)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, sceneTex)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)

	src, dst := 0, 1
	gl.UseProgram(c.blurProg)
	weightsLoc := gl.GetUniformLocation(c.blurProg, gl.Str("weights\x00"))
	gl.Uniform1fv(weightsLoc, 9, &[9]float32{
		float32(weights[0]), float32(weights[1]), float32(weights[2]), float32(weights[3]),
		float32(weights[4]), float32(weights[5]), float32(weights[6]), float32(weights[7]), float32(weights[8]),
	}[0])
	for i := 0; i < 2; i++ { // one H+V pair, matching the fixed 9-tap kernel's single application
		gl.BindFramebuffer(gl.FRAMEBUFFER, c.bloomFBO[dst])
		if i%2 == 0 {
			gl.Uniform2f(gl.GetUniformLocation(c.blurProg, gl.Str("texelDir\x00")), 1.0/float32(c.bloomW), 0)
		} else {
			gl.Uniform2f(gl.GetUniformLocation(c.blurProg, gl.Str("texelDir\x00")), 0, 1.0/float32(c.bloomH))
		}
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, c.bloomTex[src])
		gl.DrawArrays(gl.TRIANGLES, 0, 3)
		src, dst = dst, src
	}

	c.runComposite(sceneTex, c.bloomTex[src], intensity,
		ChromaticAberrationOffset(0.01, onset), s.Vignette, GrainIntensity(0.08, flatness),
		width, height, frameIndex)
}

func (c *Chain) runComposite(sceneTex, bloomTex uint32, bloomIntensity, aberration, vignette, grain float64, width, height int32, frameIndex uint32) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.Viewport(0, 0, width, height)
	gl.UseProgram(c.compositeProg)
	gl.Uniform1f(gl.GetUniformLocation(c.compositeProg, gl.Str("bloomIntensity\x00")), float32(bloomIntensity))
	gl.Uniform1f(gl.GetUniformLocation(c.compositeProg, gl.Str("aberrationOffset\x00")), float32(aberration))
	gl.Uniform1f(gl.GetUniformLocation(c.compositeProg, gl.Str("vignetteStrength\x00")), float32(vignette))
	gl.Uniform1f(gl.GetUniformLocation(c.compositeProg, gl.Str("grainIntensity\x00")), float32(grain))
	gl.Uniform1f(gl.GetUniformLocation(c.compositeProg, gl.Str("grainSeed\x00")), float32(frameIndex%10007))
	gl.Uniform1i(gl.GetUniformLocation(c.compositeProg, gl.Str("sceneTex\x00")), 0)
	gl.Uniform1i(gl.GetUniformLocation(c.compositeProg, gl.Str("bloomTex\x00")), 1)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, sceneTex)
	gl.ActiveTexture(gl.TEXTURE1)
	gl.BindTexture(gl.TEXTURE_2D, bloomTex)
	gl.DrawArrays(gl.TRIANGLES, 0, 3)
}

// Destroy frees every GPU resource the chain owns.
func (c *Chain) Destroy() {
	c.freeBloomFBOs()
	if c.brightProg != 0 {
		gl.DeleteProgram(c.brightProg)
	}
	if c.blurProg != 0 {
		gl.DeleteProgram(c.blurProg)
	}
	if c.compositeProg != 0 {
		gl.DeleteProgram(c.compositeProg)
	}
	if c.quadVAO != 0 {
		gl.DeleteVertexArrays(1, &c.quadVAO)
	}
}
