// Package router drains the three input-control sources — MIDI, OSC, and
// the WebSocket control surface — into bounded per-source queues and
// applies them to the engine state once per frame in a fixed order, with
// last-write-wins semantics when two sources target the same thing in
// the same frame (spec §4.8).
package router

import (
	"github.com/sirupsen/logrus"
)

// Source identifies which external controller produced a Command.
type Source int

const (
	SourceMIDI Source = iota
	SourceOSC
	SourceWeb
)

func (s Source) String() string {
	switch s {
	case SourceMIDI:
		return "midi"
	case SourceOSC:
		return "osc"
	case SourceWeb:
		return "web"
	default:
		return "unknown"
	}
}

// Kind identifies what a Command does once applied.
type Kind int

const (
	KindParam Kind = iota
	KindLayerParam
	KindLayerOpacity
	KindLayerBlend
	KindLayerEnabled
	KindPostprocessEnabled
	KindTrigger
)

// Command is the normalized shape every source translates its wire
// protocol into before it reaches the router's queues.
//
// LayerIndex of -1 means "the currently active layer" (used by KindParam,
// which targets whatever layer the UI currently has selected, as opposed
// to KindLayerParam which always names an explicit layer).
type Command struct {
	Source     Source
	Kind       Kind
	LayerIndex int
	Name       string // param name, or trigger action name
	Float      float64
	Bool       bool
}

// queueCapacity matches the teacher's per-client command queue size,
// generalized from one client to the three named source queues (spec
// §4.8: "capacity 64").
const queueCapacity = 64

// Target is the engine-side state the router mutates on drain. It is an
// interface so this package has no dependency on layer/param/postprocess
// and can be tested with a fake.
type Target interface {
	SetParam(layerIndex int, name string, v float64) error
	SetLayerOpacity(layerIndex int, v float64) error
	SetLayerBlend(layerIndex int, mode int) error
	SetLayerEnabled(layerIndex int, enabled bool) error
	SetPostprocessEnabled(enabled bool)
	Trigger(action string)
}

// Router owns the three bounded SPSC queues and the rising-edge state for
// trigger actions.
type Router struct {
	midi chan Command
	osc  chan Command
	web  chan Command

	log *logrus.Entry

	triggerState map[string]bool // last-seen "pressed" (>0.5) state per action
}

// New creates a Router with empty queues.
func New(log *logrus.Logger) *Router {
	if log == nil {
		log = logrus.New()
	}
	return &Router{
		midi:         make(chan Command, queueCapacity),
		osc:          make(chan Command, queueCapacity),
		web:          make(chan Command, queueCapacity),
		log:          log.WithField("component", "router"),
		triggerState: make(map[string]bool),
	}
}

// Send enqueues cmd onto its source's queue, dropping it with a warning
// if that queue is full rather than blocking the producer thread.
func (r *Router) Send(cmd Command) {
	q := r.queueFor(cmd.Source)
	select {
	case q <- cmd:
	default:
		r.log.WithFields(logrus.Fields{
			"source": cmd.Source,
			"kind":   cmd.Kind,
			"name":   cmd.Name,
		}).Warn("command queue full, dropping command")
	}
}

func (r *Router) queueFor(s Source) chan Command {
	switch s {
	case SourceMIDI:
		return r.midi
	case SourceOSC:
		return r.osc
	default:
		return r.web
	}
}

// Drain applies every queued command to target, in the fixed order
// MIDI → OSC → Web (spec §4.8 "deterministic" drain order), so that when
// two sources write the same target in one frame, the later source in
// that order wins (last-write-wins).
func (r *Router) Drain(target Target) {
	r.drainQueue(r.midi, target)
	r.drainQueue(r.osc, target)
	r.drainQueue(r.web, target)
}

func (r *Router) drainQueue(q chan Command, target Target) {
	for {
		select {
		case cmd := <-q:
			r.apply(cmd, target)
		default:
			return
		}
	}
}

func (r *Router) apply(cmd Command, target Target) {
	switch cmd.Kind {
	case KindParam:
		if err := target.SetParam(cmd.LayerIndex, cmd.Name, cmd.Float); err != nil {
			r.log.WithError(err).WithField("param", cmd.Name).Debug("param write rejected")
		}
	case KindLayerParam:
		if err := target.SetParam(cmd.LayerIndex, cmd.Name, cmd.Float); err != nil {
			r.log.WithError(err).WithField("param", cmd.Name).Debug("layer param write rejected")
		}
	case KindLayerOpacity:
		if err := target.SetLayerOpacity(cmd.LayerIndex, cmd.Float); err != nil {
			r.log.WithError(err).Debug("layer opacity write rejected")
		}
	case KindLayerBlend:
		if err := target.SetLayerBlend(cmd.LayerIndex, int(cmd.Float)); err != nil {
			r.log.WithError(err).Debug("layer blend write rejected")
		}
	case KindLayerEnabled:
		if err := target.SetLayerEnabled(cmd.LayerIndex, cmd.Bool); err != nil {
			r.log.WithError(err).Debug("layer enabled write rejected")
		}
	case KindPostprocessEnabled:
		target.SetPostprocessEnabled(cmd.Bool)
	case KindTrigger:
		r.applyTrigger(cmd, target)
	}
}

// applyTrigger fires an action only on the rising edge of its value
// crossing above 0.5, so a held button or CC fires once per press rather
// than once per frame it stays above threshold (spec §4.8).
func (r *Router) applyTrigger(cmd Command, target Target) {
	pressed := cmd.Float > 0.5
	was := r.triggerState[cmd.Name]
	r.triggerState[cmd.Name] = pressed
	if pressed && !was {
		target.Trigger(cmd.Name)
	}
}
