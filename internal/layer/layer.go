// Package layer holds the ordered stack of render layers that the
// compositor blends together each frame (§2 component J).
package layer

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/phosphor-vj/phosphor/internal/param"
)

// BlendMode names the compositor blend operation a layer uses to combine
// with everything beneath it. The concrete blend math lives in
// internal/compositor; layer only needs the tag.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendAdd
	BlendScreen
	BlendColorDodge
	BlendMultiply
	BlendOverlay
	BlendHardLight
	BlendDifference
	BlendExclusion
	BlendSubtract
)

// MaxLayers is the hard ceiling on simultaneous layers (§4.4).
const MaxLayers = 8

// Layer is one render target in the stack: a named set of parameters, a
// blend mode and opacity, a pinned flag that exempts it from reorder, and
// a locked flag that rejects parameter writes from input routers and is
// skipped by preset load.
type Layer struct {
	ID      uuid.UUID
	Name    string
	Blend   BlendMode
	Opacity float64
	Visible bool
	Pinned  bool
	Locked  bool
	Params  *param.Store
}

// NewLayer creates a visible, unpinned layer at full opacity with an
// empty parameter store.
func NewLayer(name string) *Layer {
	return &Layer{
		ID:      uuid.New(),
		Name:    name,
		Blend:   BlendNormal,
		Opacity: 1.0,
		Visible: true,
		Params:  param.NewStore(),
	}
}

// Stack is the ordered collection of layers the compositor walks
// back-to-front every frame, plus which one the UI/router currently
// targets.
type Stack struct {
	mu          sync.RWMutex
	layers      []*Layer
	activeIndex int
}

// NewStack creates an empty layer stack.
func NewStack() *Stack {
	return &Stack{activeIndex: -1}
}

// Add appends a layer, becoming active if it is the first one added.
func (s *Stack) Add(l *Layer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.layers) >= MaxLayers {
		return fmt.Errorf("layer: stack already holds the maximum of %d layers", MaxLayers)
	}
	s.layers = append(s.layers, l)
	if s.activeIndex < 0 {
		s.activeIndex = 0
	}
	return nil
}

// Remove deletes the layer with the given ID, adjusting the active index
// so it keeps pointing at the same logical layer (or the nearest
// remaining one if the active layer was the one removed).
func (s *Stack) Remove(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("layer: no layer with id %s", id)
	}

	s.layers = append(s.layers[:idx], s.layers[idx+1:]...)

	switch {
	case len(s.layers) == 0:
		s.activeIndex = -1
	case s.activeIndex > idx:
		s.activeIndex--
	case s.activeIndex == idx:
		if s.activeIndex >= len(s.layers) {
			s.activeIndex = len(s.layers) - 1
		}
	}
	return nil
}

// MoveTo relocates the layer with the given ID to newIndex among the
// *unpinned* layers, leaving every pinned layer's absolute position in
// the stack unchanged (invariant: pinned layers never move and are never
// displaced by another layer's reorder).
func (s *Stack) MoveTo(id uuid.UUID, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("layer: no layer with id %s", id)
	}
	if s.layers[idx].Pinned {
		return fmt.Errorf("layer: %s is pinned and cannot be reordered", s.layers[idx].Name)
	}

	activeID := uuid.Nil
	if s.activeIndex >= 0 {
		activeID = s.layers[s.activeIndex].ID
	}

	pinnedAt := make(map[int]*Layer)
	unpinned := make([]*Layer, 0, len(s.layers))
	for i, l := range s.layers {
		if l.Pinned {
			pinnedAt[i] = l
		} else {
			unpinned = append(unpinned, l)
		}
	}

	var from int
	for i, l := range unpinned {
		if l.ID == id {
			from = i
			break
		}
	}
	moving := unpinned[from]
	unpinned = append(unpinned[:from], unpinned[from+1:]...)

	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(unpinned) {
		newIndex = len(unpinned)
	}
	unpinned = append(unpinned[:newIndex], append([]*Layer{moving}, unpinned[newIndex:]...)...)

	rebuilt := make([]*Layer, len(s.layers))
	ui := 0
	for i := range rebuilt {
		if l, ok := pinnedAt[i]; ok {
			rebuilt[i] = l
		} else {
			rebuilt[i] = unpinned[ui]
			ui++
		}
	}
	s.layers = rebuilt

	if activeID != uuid.Nil {
		s.activeIndex = s.indexOf(activeID)
	}
	return nil
}

// SetActive marks the layer with the given ID as the active one.
func (s *Stack) SetActive(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("layer: no layer with id %s", id)
	}
	s.activeIndex = idx
	return nil
}

// Active returns the currently active layer, or nil if the stack is empty.
func (s *Stack) Active() *Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeIndex < 0 || s.activeIndex >= len(s.layers) {
		return nil
	}
	return s.layers[s.activeIndex]
}

// Layers returns a snapshot of the stack in back-to-front compositing
// order.
func (s *Stack) Layers() []*Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Len returns the number of layers currently in the stack.
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers)
}

func (s *Stack) indexOf(id uuid.UUID) int {
	for i, l := range s.layers {
		if l.ID == id {
			return i
		}
	}
	return -1
}
