package pass

// sharedLibrarySrc is prepended to every effect fragment shader before
// compilation. It declares the uniform block layout (internal/gpu's
// FrameUniforms byte layout, mirrored here as GLSL bindings; the 20
// audio floats are declared as five vec4s because std140 gives a float
// array a 16-byte element stride) and the accessor functions the
// authoring contract promises:
// u.time/u.delta_time/u.resolution, the 20 audio fields, param(i), and
// feedback(uv) reading the previous frame of the *current* pass.
//
// effect() itself is supplied by the user shader appended after this
// text; a missing effect() definition is a compile error surfaced like
// any other.
const sharedLibrarySrc = `#version 430 core

layout(std140, binding = 0) uniform FrameUniforms {
    float u_time;
    float u_delta_time;
    vec2  u_resolution;
    vec4  u_audio[5];
    vec4  u_params[4];
    float u_feedback_decay;
    uint  u_frame_index;
};

layout(binding = 0) uniform sampler2D u_feedback_tex;

struct Uniforms {
    float time;
    float delta_time;
    vec2  resolution;
};

Uniforms u = Uniforms(u_time, u_delta_time, u_resolution);

float audio(int i) { return u_audio[i / 4][i % 4]; }

float param(uint i) {
    return u_params[i / 4u][i % 4u];
}

// feedback samples the previous frame of the current pass. The engine
// does not clamp it: a pass that reads feedback and adds to it must clamp
// its own output (with min(), for instance), or the HDR value keeps
// growing from frame to frame.
vec4 feedback(vec2 uv) {
    return texture(u_feedback_tex, uv);
}

`

// audioFieldIndex names the fixed order sharedLibrarySrc's u_audio array
// follows, matching internal/gpu.AudioFeatureOrder.
var audioFieldIndex = map[string]int{
	"sub_bass": 0, "bass": 1, "low_mid": 2, "mid": 3, "upper_mid": 4,
	"presence": 5, "brilliance": 6, "rms": 7, "kick": 8,
	"centroid": 9, "flux": 10, "flatness": 11, "rolloff": 12, "bandwidth": 13,
	"zcr": 14, "onset": 15, "beat": 16, "beat_phase": 17, "bpm": 18, "beat_strength": 19,
}

// passVertSrc is the fullscreen-triangle vertex shader every pass
// uses; passes only ever supply a fragment shader.
const passVertSrc = `#version 430 core
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

// wrapEffectSrc prepends the shared library to a user fragment shader and
// appends the boilerplate main() that calls effect() and writes it to the
// sole color output.
func wrapEffectSrc(userSrc string) string {
	return sharedLibrarySrc + userSrc + `
in vec2 fragUV;
out vec4 outColor;
void main() {
    outColor = effect(fragUV);
}
` + "\x00"
}
