// Package display forwards feed updates to browser clients as typed events.
package display

import (
	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
)

// Event types as seen by the page script.
const (
	EventAppend   = "append"
	EventEvict    = "evict"
	EventRedraw   = "redraw"
	EventReadout  = "readout"
	EventActuator = "actuator"
	EventAxis     = "axis"
)

// Publisher is satisfied by *websocket.Hub.
type Publisher interface {
	Broadcast(msgType string, payload interface{}) error
}

// Event is the payload of every display frame. Unused fields are omitted.
type Event struct {
	Channel data.Channel `json:"channel,omitempty"`
	Label   string       `json:"label,omitempty"`
	Value   *float64     `json:"value,omitempty"`
	Text    string       `json:"text,omitempty"`
	State   string       `json:"state,omitempty"`
	Icon    string       `json:"icon,omitempty"`
	Bound   data.Bound   `json:"bound,omitempty"`
}

// IconFor returns the LED icon asset for an actuator state.
func IconFor(state string) string {
	if state == data.LEDOn {
		return "img/icon_led-on.png"
	}
	return "img/icon_led-off.png"
}

// Broadcaster implements feed.Display on top of a Publisher.
type Broadcaster struct {
	pub    Publisher
	logger *zap.Logger
}

func NewBroadcaster(pub Publisher, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{pub: pub, logger: logger}
}

func (b *Broadcaster) AppendPoint(ch data.Channel, label string, value float64) {
	b.publish(EventAppend, Event{Channel: ch, Label: label, Value: &value})
}

func (b *Broadcaster) EvictOldest(ch data.Channel) {
	b.publish(EventEvict, Event{Channel: ch})
}

func (b *Broadcaster) Redraw(ch data.Channel) {
	b.publish(EventRedraw, Event{Channel: ch})
}

func (b *Broadcaster) SetReadoutText(ch data.Channel, text string) {
	b.publish(EventReadout, Event{Channel: ch, Text: text})
}

func (b *Broadcaster) SetActuatorIcon(state string) {
	b.publish(EventActuator, Event{State: state, Icon: IconFor(state)})
}

func (b *Broadcaster) SetAxisBound(ch data.Channel, bound data.Bound, value float64) {
	b.publish(EventAxis, Event{Channel: ch, Bound: bound, Value: &value})
}

func (b *Broadcaster) publish(msgType string, ev Event) {
	if err := b.pub.Broadcast(msgType, ev); err != nil {
		// Only happens while shutting down.
		b.logger.Debug("Display event dropped", zap.String("type", msgType), zap.Error(err))
	}
}
