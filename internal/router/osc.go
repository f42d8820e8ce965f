package router

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hypebeast/go-osc/osc"
	"github.com/sirupsen/logrus"
)

// DefaultOSCListenPort and DefaultOSCTransmitPort are the ports spec §4.6
// documents as the engine's defaults.
const (
	DefaultOSCListenPort   = 9000
	DefaultOSCTransmitPort = 9001
)

// OSCListener receives OSC datagrams and translates the fixed address
// scheme of spec §4.6 into router Commands.
type OSCListener struct {
	router *Router
	server *osc.Server
	log    *logrus.Entry
}

// NewOSCListener builds a listener bound to port, registering one handler
// per address pattern in the scheme.
func NewOSCListener(r *Router, port int, log *logrus.Logger) *OSCListener {
	if log == nil {
		log = logrus.New()
	}
	l := &OSCListener{router: r, log: log.WithField("component", "osc")}

	d := osc.NewStandardDispatcher()
	d.AddMsgHandler("/phosphor/param/*", l.handleParam)
	d.AddMsgHandler("/phosphor/layer/*/param/*", l.handleLayerParam)
	d.AddMsgHandler("/phosphor/layer/*/opacity", l.handleLayerOpacity)
	d.AddMsgHandler("/phosphor/layer/*/blend", l.handleLayerBlend)
	d.AddMsgHandler("/phosphor/layer/*/enabled", l.handleLayerEnabled)
	d.AddMsgHandler("/phosphor/postprocess/enabled", l.handlePostprocessEnabled)
	d.AddMsgHandler("/phosphor/trigger/*", l.handleTrigger)

	l.server = &osc.Server{Addr: fmt.Sprintf(":%d", port), Dispatcher: d}
	return l
}

// ListenAndServe blocks receiving OSC packets until the server errors or
// is closed.
func (l *OSCListener) ListenAndServe() error {
	return l.server.ListenAndServe()
}

func addrParts(addr string) []string {
	return strings.Split(strings.Trim(addr, "/"), "/")
}

func floatArg(msg *osc.Message) (float64, bool) {
	if len(msg.Arguments) == 0 {
		return 0, false
	}
	switch v := msg.Arguments[0].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}

func (l *OSCListener) handleParam(msg *osc.Message) {
	parts := addrParts(msg.Address) // phosphor/param/{name}
	if len(parts) != 3 {
		l.log.WithField("address", msg.Address).Warn("osc: malformed param address")
		return
	}
	v, ok := floatArg(msg)
	if !ok {
		l.log.WithField("address", msg.Address).Warn("osc: param message missing float argument")
		return
	}
	l.router.Send(Command{Source: SourceOSC, Kind: KindParam, LayerIndex: -1, Name: parts[2], Float: v})
}

func (l *OSCListener) handleLayerParam(msg *osc.Message) {
	parts := addrParts(msg.Address) // phosphor/layer/{n}/param/{name}
	if len(parts) != 5 {
		return
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		l.log.WithError(err).Warn("osc: malformed layer index")
		return
	}
	v, ok := floatArg(msg)
	if !ok {
		return
	}
	l.router.Send(Command{Source: SourceOSC, Kind: KindLayerParam, LayerIndex: n, Name: parts[4], Float: v})
}

func (l *OSCListener) handleLayerOpacity(msg *osc.Message) {
	n, v, ok := l.layerFloat(msg, 3)
	if !ok {
		return
	}
	l.router.Send(Command{Source: SourceOSC, Kind: KindLayerOpacity, LayerIndex: n, Float: v})
}

func (l *OSCListener) handleLayerBlend(msg *osc.Message) {
	n, v, ok := l.layerFloat(msg, 3)
	if !ok {
		return
	}
	l.router.Send(Command{Source: SourceOSC, Kind: KindLayerBlend, LayerIndex: n, Float: v})
}

func (l *OSCListener) handleLayerEnabled(msg *osc.Message) {
	n, v, ok := l.layerFloat(msg, 3)
	if !ok {
		return
	}
	l.router.Send(Command{Source: SourceOSC, Kind: KindLayerEnabled, LayerIndex: n, Bool: v > 0.5})
}

func (l *OSCListener) layerFloat(msg *osc.Message, wantParts int) (layerIndex int, value float64, ok bool) {
	parts := addrParts(msg.Address)
	if len(parts) != wantParts {
		return 0, 0, false
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		l.log.WithError(err).Warn("osc: malformed layer index")
		return 0, 0, false
	}
	v, ok := floatArg(msg)
	if !ok {
		return 0, 0, false
	}
	return n, v, true
}

func (l *OSCListener) handlePostprocessEnabled(msg *osc.Message) {
	v, ok := floatArg(msg)
	if !ok {
		return
	}
	l.router.Send(Command{Source: SourceOSC, Kind: KindPostprocessEnabled, Bool: v > 0.5})
}

func (l *OSCListener) handleTrigger(msg *osc.Message) {
	parts := addrParts(msg.Address) // phosphor/trigger/{action}
	if len(parts) != 3 {
		return
	}
	v, ok := floatArg(msg)
	if !ok {
		return
	}
	l.router.Send(Command{Source: SourceOSC, Kind: KindTrigger, Name: parts[2], Float: v})
}
