// Package param implements the typed parameter set exposed by an effect:
// definitions with declared bounds, a store of current values that clamps
// on write, and deterministic packing into the GPU uniform lane layout.
package param

import (
	"errors"
	"fmt"
)

// Kind identifies which variant a ParamDef/ParamValue holds.
type Kind int

const (
	KindFloat Kind = iota
	KindBool
	KindColor
	KindPoint2D
)

// Lanes returns how many vec4 lanes a value of this kind occupies.
func (k Kind) Lanes() int {
	switch k {
	case KindFloat, KindBool:
		return 1
	case KindPoint2D:
		return 2
	case KindColor:
		return 4
	default:
		return 0
	}
}

// MaxLanes is the hard ceiling on ParamStore capacity: 4 vec4s (§4.3).
const MaxLanes = 16

// ErrParamType is returned when Set is called with a value of the wrong
// kind for the named parameter.
var ErrParamType = errors.New("param: type mismatch")

// ErrUnknownParam is returned when Set/Get/Pack reference an undefined name.
var ErrUnknownParam = errors.New("param: unknown parameter")

// ErrStoreFull is returned when adding a ParamDef would exceed MaxLanes.
var ErrStoreFull = errors.New("param: store exceeds 16 lanes")

// Def describes one parameter: its kind, bounds, and default.
type Def struct {
	Name string
	Kind Kind

	// Float / Point2D bounds (ignored for Bool/Color).
	Min, Max float64

	// Point2D bounds are per-axis; when zero-valued, Min/Max above apply
	// to both axes.
	MinX, MaxX, MinY, MaxY float64

	DefaultFloat float64
	DefaultBool  bool
	DefaultColor [4]float32 // RGBA
	DefaultPoint [2]float64
}

// FloatDef builds a Float parameter definition.
func FloatDef(name string, min, max, def float64) Def {
	return Def{Name: name, Kind: KindFloat, Min: min, Max: max, DefaultFloat: def}
}

// BoolDef builds a Bool parameter definition.
func BoolDef(name string, def bool) Def {
	return Def{Name: name, Kind: KindBool, DefaultBool: def}
}

// ColorDef builds a Color (rgba) parameter definition.
func ColorDef(name string, rgba [4]float32) Def {
	return Def{Name: name, Kind: KindColor, DefaultColor: rgba}
}

// Point2DDef builds a Point2D parameter definition with per-axis bounds.
func Point2DDef(name string, minX, maxX, minY, maxY float64, def [2]float64) Def {
	return Def{Name: name, Kind: KindPoint2D, MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY, DefaultPoint: def}
}

// Value holds the current value of one parameter, tagged by Kind.
type Value struct {
	Kind  Kind
	Float float64
	Bool  bool
	Color [4]float32
	Point [2]float64
}

func (v Value) clampTo(d Def) Value {
	switch d.Kind {
	case KindFloat:
		v.Float = clamp(v.Float, d.Min, d.Max)
	case KindPoint2D:
		minX, maxX, minY, maxY := d.MinX, d.MaxX, d.MinY, d.MaxY
		if minX == 0 && maxX == 0 && minY == 0 && maxY == 0 {
			minX, maxX, minY, maxY = d.Min, d.Max, d.Min, d.Max
		}
		v.Point[0] = clamp(v.Point[0], minX, maxX)
		v.Point[1] = clamp(v.Point[1], minY, maxY)
	case KindColor:
		for i := range v.Color {
			v.Color[i] = clamp32(v.Color[i], 0, 1)
		}
	}
	return v
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func clamp32(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func defaultValue(d Def) Value {
	switch d.Kind {
	case KindFloat:
		return Value{Kind: KindFloat, Float: d.DefaultFloat}.clampTo(d)
	case KindBool:
		return Value{Kind: KindBool, Bool: d.DefaultBool}
	case KindColor:
		return Value{Kind: KindColor, Color: d.DefaultColor}
	case KindPoint2D:
		return Value{Kind: KindPoint2D, Point: d.DefaultPoint}.clampTo(d)
	default:
		return Value{}
	}
}

// entry pairs a definition, its current value, and its lane offset in the
// packed layout.
type entry struct {
	def   Def
	value Value
	lane  int // lane index (0..15) where this parameter's first lane lives
}

// Store is a name-keyed, order-preserving collection of parameters that
// fits within MaxLanes vec4 positions.
type Store struct {
	order   []string
	entries map[string]*entry
	lanes   int
}

// NewStore creates an empty parameter store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Define adds a parameter definition at its default value. Returns
// ErrStoreFull if the definition would push total lane usage past 16.
func (s *Store) Define(d Def) error {
	if _, exists := s.entries[d.Name]; exists {
		return fmt.Errorf("param: %q already defined", d.Name)
	}
	lanes := d.Kind.Lanes()
	if s.lanes+lanes > MaxLanes {
		return ErrStoreFull
	}
	e := &entry{def: d, value: defaultValue(d), lane: s.lanes}
	s.entries[d.Name] = e
	s.order = append(s.order, d.Name)
	s.lanes += lanes
	return nil
}

// Names returns parameter names in declaration order.
func (s *Store) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Def returns the definition for name.
func (s *Store) Def(name string) (Def, bool) {
	e, ok := s.entries[name]
	if !ok {
		return Def{}, false
	}
	return e.def, true
}

// Get returns the current value of name.
func (s *Store) Get(name string) (Value, error) {
	e, ok := s.entries[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return e.value, nil
}

// Set validates v's kind against the definition, clamps it to the
// declared bounds, and stores it. Type mismatches are rejected entirely
// (the previous value is retained) rather than coerced.
func (s *Store) Set(name string, v Value) error {
	e, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	if v.Kind != e.def.Kind {
		return fmt.Errorf("%w: %s expects %v, got %v", ErrParamType, name, e.def.Kind, v.Kind)
	}
	e.value = v.clampTo(e.def)
	return nil
}

// SetFloat is a convenience wrapper for KindFloat parameters.
func (s *Store) SetFloat(name string, f float64) error {
	return s.Set(name, Value{Kind: KindFloat, Float: f})
}

// SetBool is a convenience wrapper for KindBool parameters.
func (s *Store) SetBool(name string, b bool) error {
	return s.Set(name, Value{Kind: KindBool, Bool: b})
}

// SetColor is a convenience wrapper for KindColor parameters.
func (s *Store) SetColor(name string, rgba [4]float32) error {
	return s.Set(name, Value{Kind: KindColor, Color: rgba})
}

// SetPoint2D is a convenience wrapper for KindPoint2D parameters.
func (s *Store) SetPoint2D(name string, xy [2]float64) error {
	return s.Set(name, Value{Kind: KindPoint2D, Point: xy})
}

// Pack writes the store's current values into the 16-scalar (4-vec4)
// block declared in the shader library as `array<vec4f, 4>`: scalar
// lane 0 at buf[0], lane 4 at buf[4] (the first component of the second
// vec4), etc. Unused trailing lanes are left zeroed. Packing is
// deterministic: the same set of values always produces the same bytes
// (spec invariant 3).
func (s *Store) Pack(buf []float32) error {
	if len(buf) < MaxLanes {
		return fmt.Errorf("param: pack buffer too small, need %d floats, got %d", MaxLanes, len(buf))
	}
	for i := 0; i < MaxLanes; i++ {
		buf[i] = 0
	}
	for _, name := range s.order {
		e := s.entries[name]
		base := e.lane
		switch e.value.Kind {
		case KindFloat:
			buf[base] = float32(e.value.Float)
		case KindBool:
			if e.value.Bool {
				buf[base] = 1
			} else {
				buf[base] = 0
			}
		case KindColor:
			copy(buf[base:base+4], e.value.Color[:])
		case KindPoint2D:
			buf[base] = float32(e.value.Point[0])
			buf[base+1] = float32(e.value.Point[1])
		}
	}
	return nil
}

// Lane returns the (vec4Index, laneIndex) position of name in the packed
// layout, matching the `param(i)` accessor contract in the shader: i/4
// selects the vec4, i%4 selects the lane.
func (s *Store) Lane(name string) (vec4Index, laneIndex int, ok bool) {
	e, exists := s.entries[name]
	if !exists {
		return 0, 0, false
	}
	return e.lane / 4, e.lane % 4, true
}
