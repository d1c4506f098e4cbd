// internal/data/models.go
package data

import "strconv"

// Channel names one sensor stream carried by the board's feed.
type Channel string

const (
	Temp      Channel = "temp"
	Humm      Channel = "humm"
	Light     Channel = "light"
	Proximity Channel = "proximity"
)

// Charted lists the channels that own a rolling buffer, in display order.
var Charted = []Channel{Temp, Humm, Light}

// Unit returns the suffix shown after a readout value.
func (c Channel) Unit() string {
	switch c {
	case Temp:
		return "℃"
	case Humm:
		return "%"
	case Light:
		return "lx"
	}
	return ""
}

// Bound selects one end of a chart's y axis.
type Bound string

const (
	Min Bound = "min"
	Max Bound = "max"
)

// ChannelReading - one measurement as reported by the board
type ChannelReading struct {
	IsActive bool    `json:"isActive"`
	Value    float64 `json:"value"`
}

// InboundMessage - the decoded payload of one sensor frame
type InboundMessage struct {
	Temp      ChannelReading `json:"temp"`
	Humm      ChannelReading `json:"humm"`
	Light     ChannelReading `json:"light"`
	Proximity ChannelReading `json:"proximity"`
}

// Reading returns the reading for ch. Unknown channels read as inactive.
func (m *InboundMessage) Reading(ch Channel) ChannelReading {
	switch ch {
	case Temp:
		return m.Temp
	case Humm:
		return m.Humm
	case Light:
		return m.Light
	case Proximity:
		return m.Proximity
	}
	return ChannelReading{}
}

const (
	LEDOn  = "on"
	LEDOff = "off"
)

// LEDCommand - actuator command sent back to the board
type LEDCommand struct {
	LED string `json:"led"`
}

// NewLEDCommand maps a comparison result onto the wire command.
func NewLEDCommand(on bool) LEDCommand {
	if on {
		return LEDCommand{LED: LEDOn}
	}
	return LEDCommand{LED: LEDOff}
}

// FormatValue renders a reading the way the page prints numbers: shortest
// decimal form, no trailing zeros.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Readout is the text shown in a channel's readout cell.
func Readout(ch Channel, v float64) string {
	unit := ch.Unit()
	if unit == "" {
		return FormatValue(v)
	}
	return FormatValue(v) + " " + unit
}
