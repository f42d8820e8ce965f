// Package particle implements the ping-pong particle simulation (spec
// §4.5): two storage buffers of particles, an atomic emission-claim
// counter reset each frame, and a per-particle update that advances
// position/age and returns exhausted slots to the free pool.
//
// The real simulation runs as a GPU compute dispatch; this package keeps
// a CPU reference of the exact same per-invocation logic so the emission
// budget, lifecycle, and determinism invariants have a host-testable
// implementation independent of any shader.
package particle

import (
	"math"
	"sync/atomic"

	"github.com/phosphor-vj/phosphor/internal/gpu"
)

// Particle is the 64-byte, four-vec4 record described in spec §4.3/§4.5:
// {position.xy, _, life}, {velocity.xy, _, size}, {color rgba},
// {age, lifetime, extra1, extra2}.
type Particle struct {
	PosX, PosY float32
	_pad0      float32
	Life       float32 // 0 (dead) or 1 (alive); not remaining-life, a flag

	VelX, VelY float32
	_pad1      float32
	Size       float32

	R, G, B, A float32

	Age, Lifetime, Extra1, Extra2 float32
}

// Alive reports whether the slot currently holds a live particle.
func (p Particle) Alive() bool { return p.Life > 0 }

// Emitter describes where and how new particles are initialized (spec
// §4.5 shapes: point, ring, line, screen, image-sampled).
type Emitter struct {
	Shape    gpu.ParticleEmitterShape
	Position [2]float32
	Radius   float32

	InitialSpeed float32
	SizeStart    float32
	SizeEnd      float32
	Lifetime     float32
	Color        [4]float32

	Gravity [2]float32
	Drag    float32
}

// System owns the ping-pong particle buffers and the per-frame emission
// budget bookkeeping.
type System struct {
	bufs      [2][]Particle
	cur       int
	claimed   atomic.Uint32
	MaxCount  int
	Emitter   Emitter
	FrameSeed uint64
	frame     uint32
}

// NewSystem allocates both ping-pong buffers with maxCount dead particles.
func NewSystem(maxCount int, emitter Emitter, seed uint64) *System {
	s := &System{
		bufs:      [2][]Particle{make([]Particle, maxCount), make([]Particle, maxCount)},
		MaxCount:  maxCount,
		Emitter:   emitter,
		FrameSeed: seed,
	}
	return s
}

// Current returns the buffer holding the most recently simulated state.
func (s *System) Current() []Particle { return s.bufs[s.cur] }

// ActiveCount returns the number of particles with Life > 0 in the
// current buffer.
func (s *System) ActiveCount() int {
	n := 0
	for _, p := range s.Current() {
		if p.Alive() {
			n++
		}
	}
	return n
}

// Step advances the simulation by dt seconds, claiming up to emitBudget
// new particles from dead slots. It mirrors the per-invocation pseudocode
// of spec §4.5 exactly: read from the current buffer, write to the other,
// then swap.
//
// The atomic claim counter is reset at the start of every Step, matching
// "reset each frame before the compute dispatch".
func (s *System) Step(dt float64, emitBudget int) {
	s.claimed.Store(0)
	src := s.bufs[s.cur]
	dst := s.bufs[1-s.cur]

	for i := 0; i < len(src); i++ {
		dst[i] = s.stepOne(src[i], uint32(i), dt, emitBudget)
	}

	s.cur = 1 - s.cur
	s.frame++
}

func (s *System) stepOne(p Particle, index uint32, dt float64, emitBudget int) Particle {
	if !p.Alive() {
		claim := s.claimed.Add(1) - 1
		if int(claim) < emitBudget {
			return s.spawn(index)
		}
		return Particle{}
	}

	p.Age += float32(dt)
	if p.Age >= p.Lifetime {
		return Particle{}
	}

	p.VelX += s.Emitter.Gravity[0] * float32(dt)
	p.VelY += s.Emitter.Gravity[1] * float32(dt)
	drag := float32(1) - s.Emitter.Drag*float32(dt)
	if drag < 0 {
		drag = 0
	}
	p.VelX *= drag
	p.VelY *= drag

	p.PosX += p.VelX * float32(dt)
	p.PosY += p.VelY * float32(dt)

	frac := float32(0)
	if p.Lifetime > 0 {
		frac = p.Age / p.Lifetime
	}
	p.Size = lerp32(s.Emitter.SizeStart, s.Emitter.SizeEnd, frac)
	p.A = s.Emitter.Color[3] * (1 - frac)

	return p
}

// spawn initializes a freshly-claimed slot from the emitter, seeded
// deterministically by (frame seed, particle index) so a given seed
// always reproduces the same spray pattern (spec §4.5: "seeded by
// (frame_seed, i)").
func (s *System) spawn(index uint32) Particle {
	h := splitmix64(s.FrameSeed ^ uint64(s.frame)<<32 ^ uint64(index))
	r1 := unitFloat(h)
	h = splitmix64(h)
	r2 := unitFloat(h)
	h = splitmix64(h)
	r3 := unitFloat(h)

	e := s.Emitter
	px, py := emitPosition(e, r1, r2)
	angle := r3 * 2 * math.Pi
	speed := e.InitialSpeed
	vx := float32(math.Cos(angle)) * speed
	vy := float32(math.Sin(angle)) * speed

	return Particle{
		PosX: px, PosY: py, Life: 1,
		VelX: vx, VelY: vy, Size: e.SizeStart,
		R: e.Color[0], G: e.Color[1], B: e.Color[2], A: e.Color[3],
		Age: 0, Lifetime: e.Lifetime,
	}
}

func emitPosition(e Emitter, r1, r2 float64) (float32, float32) {
	switch e.Shape {
	case gpu.EmitterRing:
		angle := r1 * 2 * math.Pi
		return e.Position[0] + float32(math.Cos(angle))*e.Radius, e.Position[1] + float32(math.Sin(angle))*e.Radius
	case gpu.EmitterLine:
		return e.Position[0] + (float32(r1)*2-1)*e.Radius, e.Position[1]
	case gpu.EmitterScreen:
		return float32(r1)*2 - 1, float32(r2)*2 - 1
	case gpu.EmitterImage:
		// Image-sampled emission picks home positions from an auxiliary
		// buffer the caller populates separately; fall back to point
		// emission here since no image data is available host-side.
		return e.Position[0], e.Position[1]
	default: // EmitterPoint
		return e.Position[0], e.Position[1]
	}
}

func lerp32(a, b, t float32) float32 { return a + (b-a)*t }

// splitmix64 is a small, fast, deterministic hash used only to derive
// per-particle pseudo-random values from (frame seed, index); it is not
// used for anything security-sensitive.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func unitFloat(x uint64) float64 {
	return float64(x>>11) / float64(1<<53)
}
