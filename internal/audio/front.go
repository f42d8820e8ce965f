package audio

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"

	"github.com/phosphor-vj/phosphor/internal/event"
)

// hopSize is the number of samples consumed per analysis step, chosen
// small enough to keep onset-detection latency low without starving the
// capture callback.
const hopSize = 512

const (
	restartMaxAttempts = 5
	restartBaseDelay   = 200 * time.Millisecond
)

// Front owns the PortAudio input stream and the analysis pipeline driven
// from it, and exposes the latest AudioFeatures snapshot to the engine
// loop through a lock-free latest-wins cell (§5: the capture callback
// never blocks, the analysis goroutine never blocks the engine loop).
type Front struct {
	log    *logrus.Entry
	bus    *event.Bus
	device string

	sampleRate int
	channels   int

	stream *portaudio.Stream
	inBuf  []float32

	samples chan []float32

	pipeline *Pipeline
	latest   atomic.Pointer[Features]

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// FrontConfig selects the capture device and format.
type FrontConfig struct {
	DeviceName string // empty selects the host API default input device
	SampleRate int
	Channels   int
}

// NewFront constructs a Front bound to bus for status/error propagation.
// It does not open the audio device; call Start for that.
func NewFront(cfg FrontConfig, bus *event.Bus, log *logrus.Logger) *Front {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 44100
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Front{
		log:        log.WithField("component", "audio/front"),
		bus:        bus,
		device:     cfg.DeviceName,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		samples:    make(chan []float32, 64),
		pipeline:   NewPipeline(cfg.SampleRate, hopSize),
	}
}

// Start opens the capture device and launches the analysis goroutine. It
// restarts the stream up to restartMaxAttempts times with exponential
// backoff on transient device errors before giving up and publishing a
// fatal AudioDeviceLost event (§7).
func (f *Front) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	if err := f.openStream(); err != nil {
		return fmt.Errorf("audio: opening input stream: %w", err)
	}

	f.wg.Add(1)
	go f.analysisLoop(ctx)

	f.wg.Add(1)
	go f.superviseStream(ctx)

	return nil
}

// Stop tears down the capture stream and analysis goroutine.
func (f *Front) Stop() error {
	if f.cancel != nil {
		f.cancel()
	}
	var err error
	if f.stream != nil {
		err = f.stream.Close()
	}
	close(f.samples)
	f.wg.Wait()
	return err
}

// Snapshot returns the most recently published Features, or the zero
// value if none has been published yet.
func (f *Front) Snapshot() Features {
	p := f.latest.Load()
	if p == nil {
		return Features{}
	}
	return *p
}

func (f *Front) openStream() error {
	inputDevice, err := f.resolveDevice()
	if err != nil {
		return err
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: f.channels,
			Device:   inputDevice,
			Latency:  inputDevice.DefaultLowInputLatency,
		},
		FramesPerBuffer: hopSize,
		SampleRate:      float64(f.sampleRate),
	}

	f.inBuf = make([]float32, hopSize)

	stream, err := portaudio.OpenStream(params, f.onCapture)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}
	f.stream = stream
	return nil
}

func (f *Front) resolveDevice() (*portaudio.DeviceInfo, error) {
	if f.device == "" {
		return portaudio.DefaultInputDevice()
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.Name == f.device && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("audio: no input device named %q", f.device)
}

// onCapture is the PortAudio real-time callback. It downmixes to mono
// into f.inBuf, copies the hop into a newly allocated slice, and hands
// that slice to the analysis goroutine over a non-blocking send, dropping
// the hop on an overrun rather than waiting. It allocates one slice per
// hop, and a dropped hop is logged through the logger from inside the
// callback.
func (f *Front) onCapture(in []float32) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if f.channels == 1 {
		copy(f.inBuf, in)
	} else {
		for i := range f.inBuf {
			sum := float32(0)
			for c := 0; c < f.channels; c++ {
				idx := i*f.channels + c
				if idx < len(in) {
					sum += in[idx]
				}
			}
			f.inBuf[i] = sum / float32(f.channels)
		}
	}

	cp := make([]float32, len(f.inBuf))
	copy(cp, f.inBuf)
	select {
	case f.samples <- cp:
	default:
		f.log.Warn("analysis goroutine behind, dropping capture hop")
	}
}

// analysisLoop drains captured hops and runs the DSP pipeline, publishing
// a new Features snapshot after every completed step.
func (f *Front) analysisLoop(ctx context.Context) {
	defer f.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case samples, ok := <-f.samples:
			if !ok {
				return
			}
			f.pipeline.Push(samples)
			if !f.pipeline.Ready() {
				continue
			}
			features := f.pipeline.Step()
			f.latest.Store(&features)
		}
	}
}

// superviseStream watches for PortAudio stream errors outside the
// callback (reported via stream.Close()/re-open failures, since
// PortAudio surfaces device loss as a stopped stream rather than a
// callback error) and restarts it with bounded backoff, per the
// Retryable tier of §7's error model.
func (f *Front) superviseStream(ctx context.Context) {
	defer f.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if f.stream == nil {
				return
			}
			_, err := f.stream.AvailableToRead()
			if err == nil {
				attempts = 0
				continue
			}

			if attempts >= restartMaxAttempts {
				f.bus.Publish(event.Event{
					Kind:     event.AudioDeviceLost,
					Severity: event.SeverityFatal,
					Message:  "audio input stream lost, exhausted restart attempts",
					Source:   "audio/front",
				})
				return
			}

			delay := restartBaseDelay * time.Duration(1<<uint(attempts))
			time.Sleep(delay)
			if reopenErr := f.openStream(); reopenErr != nil {
				attempts++
				continue
			}
			attempts++
			f.bus.Publish(event.Event{
				Kind:     event.AudioStreamRestarted,
				Severity: event.SeverityRetryable,
				Message:  fmt.Sprintf("restarted audio input stream (attempt %d)", attempts),
				Source:   "audio/front",
			})
		}
	}
}
