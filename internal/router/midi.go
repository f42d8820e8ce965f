package router

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
)

// Binding maps one (channel, controller) pair to a target: either a
// parameter name or a trigger action, loaded from the on-disk binding
// table (spec §4.6: "Binding file on disk is a table of (channel,
// controller#, target)"). Channel 0 means omni — match any channel.
type Binding struct {
	Channel    uint8
	Controller uint8
	IsTrigger  bool
	Target     string // param name, or trigger action name
}

// bindingKey identifies a binding lookup independent of channel, since
// omni bindings (Channel 0) must still match a specific incoming channel.
type bindingKey struct {
	channel    uint8
	controller uint8
}

// MIDIListener receives Control Change messages and translates them into
// router Commands via the binding table. Channel Voice messages other
// than CC are ignored (spec §4.6: "Channel Voice messages only").
type MIDIListener struct {
	router   *Router
	bindings map[bindingKey]Binding
	omni     map[uint8]Binding // keyed by controller only, channel 0 in table
	log      *logrus.Entry
	stopFn   func()
}

// NewMIDIListener builds a listener with the given binding table.
func NewMIDIListener(r *Router, bindings []Binding, log *logrus.Logger) *MIDIListener {
	if log == nil {
		log = logrus.New()
	}
	l := &MIDIListener{
		router:   r,
		bindings: make(map[bindingKey]Binding),
		omni:     make(map[uint8]Binding),
		log:      log.WithField("component", "midi"),
	}
	for _, b := range bindings {
		if b.Channel == 0 {
			l.omni[b.Controller] = b
		} else {
			l.bindings[bindingKey{channel: b.Channel, controller: b.Controller}] = b
		}
	}
	return l
}

// Listen opens deviceName (or the first available input port if empty)
// and dispatches incoming CC messages until Stop is called.
func (l *MIDIListener) Listen(deviceName string) error {
	in, err := resolveInPort(deviceName)
	if err != nil {
		return fmt.Errorf("midi: %w", err)
	}

	stop, err := midi.ListenTo(in, l.onMessage, midi.UseSysEx())
	if err != nil {
		return fmt.Errorf("midi: listen: %w", err)
	}
	l.stopFn = stop
	return nil
}

// Stop ends the MIDI listen session, if one is active.
func (l *MIDIListener) Stop() {
	if l.stopFn != nil {
		l.stopFn()
	}
}

func resolveInPort(name string) (midi.In, error) {
	if name == "" {
		ins := midi.InPorts()
		if len(ins) == 0 {
			return nil, fmt.Errorf("no MIDI input ports available")
		}
		return ins[0], nil
	}
	return midi.FindInPort(name)
}

func (l *MIDIListener) onMessage(msg midi.Message, _ int32) {
	var channel, controller, value uint8
	if !msg.GetControlChange(&channel, &controller, &value) {
		return
	}

	// MIDI channels are 0-indexed on the wire but the binding table's
	// "channel 0 means omni" convention reserves 0 for omni, so incoming
	// channel is shifted by one for lookup purposes.
	binding, ok := l.bindings[bindingKey{channel: channel + 1, controller: controller}]
	if !ok {
		binding, ok = l.omni[controller]
	}
	if !ok {
		return
	}

	normalized := float64(value) / 127.0

	if binding.IsTrigger {
		l.router.Send(Command{Source: SourceMIDI, Kind: KindTrigger, Name: binding.Target, Float: normalized})
		return
	}

	l.router.Send(Command{Source: SourceMIDI, Kind: KindParam, LayerIndex: -1, Name: binding.Target, Float: normalized})
}
