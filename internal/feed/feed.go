// Package feed keeps the rolling chart series for the board's sensor stream
// and turns proximity readings into LED commands.
package feed

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
	"sensor-dashboard/internal/metrics"
	"sensor-dashboard/internal/storage"
)

// DefaultLabelLayout renders chart labels as "HH : mm : ss".
const DefaultLabelLayout = "15 : 04 : 05"

// ErrUnsupportedAxis is returned for axis updates on a chart without
// configurable bounds.
var ErrUnsupportedAxis = errors.New("unsupported axis")

// ErrNotDelivered wraps actuator failures returned by Apply. The frame has
// been applied in full when it is returned.
var ErrNotDelivered = errors.New("led command not delivered")

// Display is the rendering side. It only ever reads what the feed tells it.
type Display interface {
	AppendPoint(ch data.Channel, label string, value float64)
	EvictOldest(ch data.Channel)
	Redraw(ch data.Channel)
	SetReadoutText(ch data.Channel, text string)
	SetActuatorIcon(state string)
	SetAxisBound(ch data.Channel, b data.Bound, value float64)
}

// Actuator delivers LED commands back to the board.
type Actuator interface {
	Send(cmd data.LEDCommand) error
}

// AxisBounds is the y range of one chart.
type AxisBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Options struct {
	Capacity    int
	LabelLayout string
	Threshold   float64
	// Axes holds the initial bounds; only temp and light are adjustable.
	Axes map[data.Channel]AxisBounds
	Now  func() time.Time
}

// Snapshot is a point-in-time copy of the feed state.
type Snapshot struct {
	Series    map[data.Channel]storage.SeriesSnapshot `json:"series"`
	Proximity float64                                 `json:"proximity"`
	Threshold float64                                 `json:"threshold"`
	LED       string                                  `json:"led,omitempty"`
	Axes      map[data.Channel]AxisBounds             `json:"axes"`
	// Readouts holds the last readout text per channel, proximity included.
	Readouts map[data.Channel]string `json:"readouts"`
}

// Feed owns the three chart series and the proximity state. Every exported
// method takes the same lock, so messages and settings commits are applied
// one at a time in arrival order.
type Feed struct {
	mu        sync.Mutex
	series    map[data.Channel]*storage.Series
	threshold float64
	proximity float64
	led       string
	axes      map[data.Channel]AxisBounds
	readouts  map[data.Channel]string

	layout   string
	now      func() time.Time
	display  Display
	actuator Actuator
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func New(opts Options, display Display, actuator Actuator, logger *zap.Logger, m *metrics.Metrics) *Feed {
	if opts.LabelLayout == "" {
		opts.LabelLayout = DefaultLabelLayout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Feed{
		series:    make(map[data.Channel]*storage.Series, len(data.Charted)),
		threshold: opts.Threshold,
		axes:      make(map[data.Channel]AxisBounds, 2),
		readouts:  make(map[data.Channel]string, 4),
		layout:    opts.LabelLayout,
		now:       opts.Now,
		display:   display,
		actuator:  actuator,
		logger:    logger,
		metrics:   m,
	}
	for _, ch := range data.Charted {
		f.series[ch] = storage.NewSeries(opts.Capacity)
	}
	for ch, b := range opts.Axes {
		if axisAdjustable(ch) {
			f.axes[ch] = b
		}
	}
	return f
}

// OnMessage decodes one raw frame and applies it. A payload that fails to
// decode changes nothing and no LED command is sent.
func (f *Feed) OnMessage(raw []byte) error {
	msg, err := data.Decode(raw)
	if err != nil {
		f.metrics.MessageReceived("malformed")
		return err
	}
	return f.Apply(msg)
}

// HandleFrame is OnMessage for the board link: it fails only when the frame
// itself was dropped. Undelivered LED commands are logged by Apply.
func (f *Feed) HandleFrame(raw []byte) error {
	err := f.OnMessage(raw)
	if errors.Is(err, ErrNotDelivered) {
		return nil
	}
	return err
}

// Apply appends every active charted reading under a single shared label and
// evaluates the proximity threshold.
func (f *Feed) Apply(msg *data.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.metrics.MessageReceived("applied")
	label := f.now().Format(f.layout)

	for _, ch := range data.Charted {
		r := msg.Reading(ch)
		if !r.IsActive {
			continue
		}
		evicted := f.series[ch].Append(label, r.Value)
		f.metrics.PointAppended(string(ch), evicted)

		f.display.AppendPoint(ch, label, r.Value)
		if evicted {
			f.display.EvictOldest(ch)
		}
		f.display.Redraw(ch)
		f.setReadout(ch, data.Readout(ch, r.Value))
	}

	if !msg.Proximity.IsActive {
		return nil
	}
	f.proximity = msg.Proximity.Value
	f.setReadout(data.Proximity, data.Readout(data.Proximity, f.proximity))

	cmd := data.NewLEDCommand(f.proximity >= f.threshold)
	err := f.actuator.Send(cmd)
	f.metrics.LEDCommand(cmd.LED)
	f.led = cmd.LED
	f.display.SetActuatorIcon(cmd.LED)

	if err != nil {
		f.logger.Warn("LED command not delivered",
			zap.String("led", cmd.LED),
			zap.Float64("proximity", f.proximity),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %w", ErrNotDelivered, cmd.LED, err)
	}
	f.logger.Debug("Proximity evaluated",
		zap.Float64("proximity", f.proximity),
		zap.Float64("threshold", f.threshold),
		zap.String("led", cmd.LED),
	)
	return nil
}

func (f *Feed) setReadout(ch data.Channel, text string) {
	f.readouts[ch] = text
	f.display.SetReadoutText(ch, text)
}

// SetThreshold replaces the proximity threshold. The next proximity reading
// is compared against it; commands already sent are not revisited.
func (f *Feed) SetThreshold(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = v
	f.logger.Info("Proximity threshold updated", zap.Float64("threshold", v))
}

func (f *Feed) Threshold() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold
}

// SetAxisBound changes one end of the temp or light chart's y axis and asks
// the display to redraw. The series themselves are untouched.
func (f *Feed) SetAxisBound(ch data.Channel, b data.Bound, v float64) error {
	if !axisAdjustable(ch) {
		return fmt.Errorf("%w: channel %q", ErrUnsupportedAxis, ch)
	}
	if b != data.Min && b != data.Max {
		return fmt.Errorf("%w: bound %q", ErrUnsupportedAxis, b)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	bounds := f.axes[ch]
	if b == data.Min {
		bounds.Min = v
	} else {
		bounds.Max = v
	}
	f.axes[ch] = bounds

	f.display.SetAxisBound(ch, b, v)
	f.display.Redraw(ch)
	return nil
}

// Snapshot copies the current state for the JSON API.
func (f *Feed) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot()
}

// WithSnapshot calls fn with a snapshot while holding the feed lock, so no
// display update can be issued between the copy and whatever fn does with
// it. fn must not call back into the feed.
func (f *Feed) WithSnapshot(fn func(Snapshot) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(f.snapshot())
}

func (f *Feed) snapshot() Snapshot {
	snap := Snapshot{
		Series:    make(map[data.Channel]storage.SeriesSnapshot, len(f.series)),
		Proximity: f.proximity,
		Threshold: f.threshold,
		LED:       f.led,
		Axes:      make(map[data.Channel]AxisBounds, len(f.axes)),
		Readouts:  make(map[data.Channel]string, len(f.readouts)),
	}
	for ch, text := range f.readouts {
		snap.Readouts[ch] = text
	}
	for ch, s := range f.series {
		snap.Series[ch] = s.Snapshot()
	}
	for ch, b := range f.axes {
		snap.Axes[ch] = b
	}
	return snap
}

func axisAdjustable(ch data.Channel) bool {
	return ch == data.Temp || ch == data.Light
}
