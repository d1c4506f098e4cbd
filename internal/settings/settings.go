// internal/settings/settings.go
package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
	"sensor-dashboard/internal/metrics"
)

// Control ids, matching the input elements of the settings panel.
const (
	TempAxisMax        = "temp_yaxes_max"
	TempAxisMin        = "temp_yaxes_min"
	LightAxisMax       = "light_yaxes_max"
	LightAxisMin       = "light_yaxes_min"
	ProximityThreshold = "proximity_threshold"
)

var (
	ErrUnknownControl = errors.New("unknown control")
	ErrInvalidValue   = errors.New("invalid numeric value")
)

// Input is the text a user typed. It decodes from a JSON string or number.
type Input string

func (in *Input) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*in = Input(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidValue, b)
	}
	*in = Input(n.String())
	return nil
}

// CommitEvent is fired when the user confirms an edit in one of the controls.
type CommitEvent struct {
	Control string `json:"control"`
	Value   Input  `json:"value"`
}

// Target receives parsed commits. *feed.Feed satisfies it.
type Target interface {
	SetThreshold(v float64)
	SetAxisBound(ch data.Channel, b data.Bound, v float64) error
}

// ParseValue converts user input to a number at the point of entry. Empty,
// non-numeric and non-finite input is rejected so the previous value stays.
func ParseValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidValue)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q is not finite", ErrInvalidValue, raw)
	}
	return v, nil
}

type handler func(v float64) error

// Router maps control ids to the setter they commit to.
type Router struct {
	handlers map[string]handler
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewRouter(target Target, logger *zap.Logger, m *metrics.Metrics) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	axis := func(ch data.Channel, b data.Bound) handler {
		return func(v float64) error { return target.SetAxisBound(ch, b, v) }
	}
	return &Router{
		handlers: map[string]handler{
			TempAxisMax:  axis(data.Temp, data.Max),
			TempAxisMin:  axis(data.Temp, data.Min),
			LightAxisMax: axis(data.Light, data.Max),
			LightAxisMin: axis(data.Light, data.Min),
			ProximityThreshold: func(v float64) error {
				target.SetThreshold(v)
				return nil
			},
		},
		logger:  logger,
		metrics: m,
	}
}

// Commit parses and applies one commit event. Invalid input is dropped with
// an error and nothing changes.
func (r *Router) Commit(ev CommitEvent) error {
	h, ok := r.handlers[ev.Control]
	if !ok {
		r.metrics.Commit("unknown", "rejected")
		return fmt.Errorf("%w: %q", ErrUnknownControl, ev.Control)
	}
	v, err := ParseValue(string(ev.Value))
	if err != nil {
		r.metrics.Commit(ev.Control, "rejected")
		r.logger.Info("Ignoring invalid setting",
			zap.String("control", ev.Control),
			zap.String("input", string(ev.Value)),
		)
		return err
	}
	if err := h(v); err != nil {
		r.metrics.Commit(ev.Control, "failed")
		return fmt.Errorf("commit %s: %w", ev.Control, err)
	}
	r.metrics.Commit(ev.Control, "ok")
	r.logger.Debug("Setting committed", zap.String("control", ev.Control), zap.Float64("value", v))
	return nil
}

// Controls lists the known control ids in sorted order.
func (r *Router) Controls() []string {
	out := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
