// internal/data/parser.go
package data

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrMalformed is returned for payloads that do not decode to an InboundMessage.
var ErrMalformed = errors.New("malformed sensor payload")

type rawReading struct {
	IsActive json.RawMessage `json:"isActive"`
	Value    json.RawMessage `json:"value"`
}

// Decode parses one sensor frame. The board firmware prints every field as a
// string ("23.500", "1"), so both string and native JSON scalars are accepted.
// Every channel object and both of its fields must be present.
func Decode(raw []byte) (*InboundMessage, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if generic == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}

	var msg InboundMessage
	targets := []struct {
		ch  Channel
		dst *ChannelReading
	}{
		{Temp, &msg.Temp},
		{Humm, &msg.Humm},
		{Light, &msg.Light},
		{Proximity, &msg.Proximity},
	}
	for _, t := range targets {
		field, ok := generic[string(t.ch)]
		if !ok {
			return nil, fmt.Errorf("%w: missing channel %q", ErrMalformed, t.ch)
		}
		reading, err := decodeReading(field)
		if err != nil {
			return nil, fmt.Errorf("%w: channel %q: %v", ErrMalformed, t.ch, err)
		}
		*t.dst = reading
	}
	return &msg, nil
}

func decodeReading(field json.RawMessage) (ChannelReading, error) {
	var r rawReading
	if err := json.Unmarshal(field, &r); err != nil {
		return ChannelReading{}, err
	}
	if r.IsActive == nil {
		return ChannelReading{}, errors.New("missing isActive")
	}
	if r.Value == nil {
		return ChannelReading{}, errors.New("missing value")
	}
	active, err := parseActive(r.IsActive)
	if err != nil {
		return ChannelReading{}, err
	}
	value, err := parseNumber(r.Value)
	if err != nil {
		return ChannelReading{}, err
	}
	return ChannelReading{IsActive: active, Value: value}, nil
}

func parseActive(raw json.RawMessage) (bool, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, err
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case float64:
		return t != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, fmt.Errorf("isActive %q is not a boolean", t)
		}
		return b, nil
	}
	return false, fmt.Errorf("isActive has unsupported type %T", v)
}

func parseNumber(raw json.RawMessage) (float64, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not a number", t)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("value has unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("value is not finite")
	}
	return f, nil
}

// EncodeLEDCommand returns the exact frame the board expects.
func EncodeLEDCommand(cmd LEDCommand) ([]byte, error) {
	if cmd.LED != LEDOn && cmd.LED != LEDOff {
		return nil, fmt.Errorf("unknown led state %q", cmd.LED)
	}
	return json.Marshal(cmd)
}
