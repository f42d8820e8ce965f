package main

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/go-gl/gl/v4.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	// GLFW and the GL context it creates are bound to the thread that
	// created them; the engine's main loop must always run on this one.
	runtime.LockOSThread()
}

// window wraps the GLFW handle the render loop drives each frame.
type window struct {
	handle *glfw.Window
}

// openWindow creates the GLFW window and GL 4.3 core context the
// compositor renders into.
func openWindow(width, height int, title string, fullscreen, vsync bool) (*window, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw: init: %w", err)
	}

	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	var monitor *glfw.Monitor
	if fullscreen {
		monitor = glfw.GetPrimaryMonitor()
	}

	h, err := glfw.CreateWindow(width, height, title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("glfw: create window: %w", err)
	}
	h.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("gl: init: %w", err)
	}

	if vsync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	return &window{handle: h}, nil
}

func (w *window) setVSync(on bool) {
	w.handle.MakeContextCurrent()
	if on {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}
}

func (w *window) setFullscreen(on bool, width, height int) {
	if on {
		m := glfw.GetPrimaryMonitor()
		mode := m.GetVideoMode()
		w.handle.SetMonitor(m, 0, 0, mode.Width, mode.Height, mode.RefreshRate)
	} else {
		w.handle.SetMonitor(nil, 100, 100, width, height, 0)
	}
}

func (w *window) framebufferSize() (int, int) {
	return w.handle.GetFramebufferSize()
}

func (w *window) shouldClose() bool {
	return w.handle.ShouldClose()
}

func (w *window) swapBuffers() {
	w.handle.SwapBuffers()
}

func (w *window) destroy() {
	w.handle.Destroy()
	glfw.Terminate()
}

// pollEvents pumps the GLFW event queue; must be called from the render
// loop's thread once per frame.
func pollEvents() {
	glfw.PollEvents()
}

var startTime = time.Now()

// elapsedSeconds is seconds since process start, fed to the effect
// shaders' time uniform.
func elapsedSeconds() float64 {
	return time.Since(startTime).Seconds()
}

func timeNow() time.Time {
	return time.Now()
}

// compileProgram is the shared GL shader compiler every pass/particle/
// postprocess/engine render package receives through its Compiler
// injection point: compile vertex and fragment stages, link, and surface
// the driver's info log verbatim on failure so a bad effect shader names
// its own line number instead of failing silently.
func compileProgram(vertSrc, fragSrc string) (uint32, error) {
	vs, err := compileStage(gl.VERTEX_SHADER, vertSrc)
	if err != nil {
		return 0, fmt.Errorf("vertex stage: %w", err)
	}
	defer gl.DeleteShader(vs)

	fs, err := compileStage(gl.FRAGMENT_SHADER, fragSrc)
	if err != nil {
		return 0, fmt.Errorf("fragment stage: %w", err)
	}
	defer gl.DeleteShader(fs)

	prog := gl.CreateProgram()
	gl.AttachShader(prog, vs)
	gl.AttachShader(prog, fs)
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		infoLog := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(infoLog))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("link failed: %s", infoLog)
	}
	return prog, nil
}

func compileStage(kind uint32, src string) (uint32, error) {
	shader := gl.CreateShader(kind)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(shader, 1, csrc, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLen)
		infoLog := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(shader, logLen, nil, gl.Str(infoLog))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("compile failed: %s", infoLog)
	}
	return shader, nil
}
