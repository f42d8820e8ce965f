// Command phosphor is the real-time, audio-reactive visual engine: it
// owns the window, the GL context, and every subsystem's main loop.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/phosphor-vj/phosphor/internal/audio"
	"github.com/phosphor-vj/phosphor/internal/config"
	"github.com/phosphor-vj/phosphor/internal/engine"
	"github.com/phosphor-vj/phosphor/internal/event"
	"github.com/phosphor-vj/phosphor/internal/gpu"
	"github.com/phosphor-vj/phosphor/internal/router"
	"github.com/phosphor-vj/phosphor/internal/watch"
	"github.com/phosphor-vj/phosphor/internal/websurface"
)

var audioTest bool

func main() {
	root := &cobra.Command{
		Use:   "phosphor",
		Short: "Real-time, audio-reactive visual engine for live performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if audioTest {
				return runAudioTest()
			}
			return runEngine()
		},
	}
	root.Flags().BoolVar(&audioTest, "audio-test", false, "run only the audio capture/analysis pipeline and print feature snapshots")

	if err := root.Execute(); err != nil {
		logrus.WithError(err).Fatal("phosphor: fatal error")
		os.Exit(1)
	}
}

// runAudioTest exercises internal/audio in isolation, printing feature
// snapshots at 10 Hz until interrupted — useful for confirming a capture
// device and the analysis pipeline work before bringing up a window.
func runAudioTest() error {
	if err := config.Load(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logrus.StandardLogger()
	setLogLevel(log, config.C.LogLevel)

	bus := event.NewBus(256)
	front := audio.NewFront(audio.FrontConfig{
		DeviceName: config.C.AudioDeviceName,
		SampleRate: config.C.AudioSampleRate,
		Channels:   config.C.AudioChannels,
	}, bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := front.Start(notifyCtx); err != nil {
		return fmt.Errorf("starting audio front: %w", err)
	}
	defer front.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-notifyCtx.Done():
			return nil
		case <-ticker.C:
			f := front.Snapshot()
			fmt.Printf("rms=%.3f kick=%.3f onset=%.3f beat=%.3f bpm=%.1f centroid=%.3f\n",
				f.RMS, f.Kick, f.Onset, f.Beat, f.BPM, f.Centroid)
			for _, ev := range bus.Drain() {
				log.WithField("kind", ev.Kind).WithField("severity", ev.Severity).Warn(ev.Message)
			}
		}
	}
}

func setLogLevel(log *logrus.Logger, level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

// runEngine brings up every subsystem and drives the main render loop
// until the window is closed or a fatal event is published.
func runEngine() error {
	if err := config.Load(); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logrus.StandardLogger()
	setLogLevel(log, config.C.LogLevel)

	win, err := openWindow(config.C.WindowWidth, config.C.WindowHeight, "Phosphor", config.C.FullScreen, config.C.VSync)
	if err != nil {
		return fmt.Errorf("opening window: %w", err)
	}
	defer win.destroy()

	bus := event.NewBus(256)

	shaderDir := config.C.ShaderDirectory
	presetDir := config.C.PresetDirectory
	if err := os.MkdirAll(shaderDir, 0o755); err != nil {
		return fmt.Errorf("creating shader directory: %w", err)
	}
	if err := os.MkdirAll(presetDir, 0o755); err != nil {
		return fmt.Errorf("creating preset directory: %w", err)
	}

	eng, err := engine.New(log, bus, compileProgram, shaderDir, presetDir)
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	width, height := win.framebufferSize()
	renderer, err := engine.NewRenderer(compileProgram, width, height)
	if err != nil {
		return fmt.Errorf("constructing renderer: %w", err)
	}
	defer renderer.Destroy()

	front := audio.NewFront(audio.FrontConfig{
		DeviceName: config.C.AudioDeviceName,
		SampleRate: config.C.AudioSampleRate,
		Channels:   config.C.AudioChannels,
	}, bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	notifyCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := front.Start(notifyCtx); err != nil {
		return fmt.Errorf("starting audio front: %w", err)
	}
	defer front.Stop()

	bindings, err := router.LoadBindings(filepath.Join(shaderDir, "..", "bindings.toml"))
	if err != nil {
		log.WithError(err).Debug("no MIDI binding table found, MIDI control disabled")
	}
	midiListener := router.NewMIDIListener(eng.Router, bindings, log)
	if err := midiListener.Listen(config.C.MIDIDeviceName); err != nil {
		log.WithError(err).Warn("MIDI device unavailable, continuing without it")
	}
	defer midiListener.Stop()

	oscPort := config.C.OSCListenPort
	if oscPort == 0 {
		oscPort = router.DefaultOSCListenPort
	}
	oscListener := router.NewOSCListener(eng.Router, oscPort, log)
	go func() {
		if err := oscListener.ListenAndServe(); err != nil {
			log.WithError(err).Warn("OSC listener stopped")
		}
	}()

	hub := websurface.NewHub(eng.Router, log)
	hub.SetLayerActions(eng)
	webSrv := &http.Server{Addr: config.C.WebListenAddr, Handler: hub}
	go func() {
		if err := webSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Warn("web control surface stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		webSrv.Shutdown(shutdownCtx)
	}()

	shaderChanges := newChangeBuffer()
	shaderWatcher, err := watch.New(log, shaderChanges.push)
	if err != nil {
		return fmt.Errorf("constructing shader watcher: %w", err)
	}
	if err := shaderWatcher.AddDir(shaderDir); err != nil {
		log.WithError(err).Warn("failed to watch shader directory")
	}
	go shaderWatcher.Run(notifyCtx)
	defer shaderWatcher.Close()

	stopConfigWatch, err := config.Watch(func(old, new config.Config) {
		if new.VSync != old.VSync {
			win.setVSync(new.VSync)
		}
		if new.FullScreen != old.FullScreen {
			win.setFullscreen(new.FullScreen, new.WindowWidth, new.WindowHeight)
		}
	})
	if err != nil {
		log.WithError(err).Warn("config hot-reload failed to start")
	} else {
		defer stopConfigWatch()
	}

	return runLoop(notifyCtx, win, eng, renderer, front, bus, shaderChanges, log)
}

// runLoop is the fixed per-frame sequence: drain input, reload any
// changed shaders, step particles, drain events, render, present.
func runLoop(ctx context.Context, win *window, eng *engine.Engine, renderer *engine.Renderer, front *audio.Front, bus *event.Bus, changes *changeBuffer, log *logrus.Logger) error {
	last := timeNow()
	var frameIndex uint32

	for !win.shouldClose() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		now := timeNow()
		dt := now.Sub(last).Seconds()
		last = now

		eng.DrainInput()

		if changed := changes.drain(); len(changed) > 0 {
			eng.ReloadChangedShaders(changed)
		}

		features := front.Snapshot()
		eng.StepParticles(features, dt)

		for _, ev := range bus.Drain() {
			logEvent(log, ev)
			if ev.Severity == event.SeverityFatal {
				return fmt.Errorf("fatal event: %s: %s", ev.Kind, ev.Message)
			}
		}

		width, height := win.framebufferSize()
		aspect := float32(1.0)
		if height > 0 {
			aspect = float32(width) / float32(height)
		}

		uniforms := gpu.FrameUniforms{
			Time:       float32(elapsedSeconds()),
			DeltaTime:  float32(dt),
			Resolution: [2]float32{float32(width), float32(height)},
			FrameIndex: frameIndex,
			Audio:      features.ToArray(),
		}

		renderer.RenderFrame(eng, uniforms, aspect)
		win.swapBuffers()
		pollEvents()

		eng.FrameIndex = frameIndex
		frameIndex++
	}
	return nil
}

func logEvent(log *logrus.Logger, ev event.Event) {
	entry := log.WithField("source", ev.Source).WithField("kind", ev.Kind.String())
	switch ev.Severity {
	case event.SeverityFatal:
		entry.Error(ev.Message)
	case event.SeverityRetryable:
		entry.Warn(ev.Message)
	default:
		entry.Debug(ev.Message)
	}
}

// changeBuffer bridges the shader watcher's own goroutine (where
// fsnotify events arrive) to the main render loop, which owns the GL
// context: the watcher's onChange callback must never touch a GL call
// directly, so it only ever merges into this buffer.
type changeBuffer struct {
	mu      sync.Mutex
	pending map[string]bool
}

func newChangeBuffer() *changeBuffer {
	return &changeBuffer{pending: make(map[string]bool)}
}

func (c *changeBuffer) push(changed map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range changed {
		c.pending[k] = true
	}
}

func (c *changeBuffer) drain() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	out := c.pending
	c.pending = make(map[string]bool)
	return out
}
