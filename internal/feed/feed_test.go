package feed

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
	"sensor-dashboard/internal/metrics"
)

type recordingDisplay struct {
	appended map[data.Channel]int
	evicted  map[data.Channel]int
	redraws  map[data.Channel]int
	readouts map[data.Channel]string
	icons    []string
	axes     []string
}

func newRecordingDisplay() *recordingDisplay {
	return &recordingDisplay{
		appended: map[data.Channel]int{},
		evicted:  map[data.Channel]int{},
		redraws:  map[data.Channel]int{},
		readouts: map[data.Channel]string{},
	}
}

func (d *recordingDisplay) AppendPoint(ch data.Channel, _ string, _ float64) { d.appended[ch]++ }
func (d *recordingDisplay) EvictOldest(ch data.Channel)                      { d.evicted[ch]++ }
func (d *recordingDisplay) Redraw(ch data.Channel)                           { d.redraws[ch]++ }
func (d *recordingDisplay) SetReadoutText(ch data.Channel, text string)      { d.readouts[ch] = text }
func (d *recordingDisplay) SetActuatorIcon(state string)                     { d.icons = append(d.icons, state) }
func (d *recordingDisplay) SetAxisBound(ch data.Channel, b data.Bound, v float64) {
	d.axes = append(d.axes, fmt.Sprintf("%s.%s=%v", ch, b, v))
}

type recordingActuator struct {
	sent []data.LEDCommand
	err  error
}

func (a *recordingActuator) Send(cmd data.LEDCommand) error {
	a.sent = append(a.sent, cmd)
	return a.err
}

type fixture struct {
	feed     *Feed
	display  *recordingDisplay
	actuator *recordingActuator
	clock    time.Time
}

func newFixture(t *testing.T, threshold float64) *fixture {
	t.Helper()
	fx := &fixture{
		display:  newRecordingDisplay(),
		actuator: &recordingActuator{},
		clock:    time.Date(2024, 5, 1, 9, 7, 3, 0, time.UTC),
	}
	fx.feed = New(Options{
		Capacity:  10,
		Threshold: threshold,
		Axes: map[data.Channel]AxisBounds{
			data.Temp:  {Min: 0, Max: 40},
			data.Light: {Min: 0, Max: 1000},
			data.Humm:  {Min: 0, Max: 100},
		},
		Now: func() time.Time { return fx.clock },
	}, fx.display, fx.actuator, zap.NewNop(), metrics.New())
	return fx
}

func (fx *fixture) tick() { fx.clock = fx.clock.Add(time.Second) }

func active(v float64) data.ChannelReading { return data.ChannelReading{IsActive: true, Value: v} }

func TestFeed_EndToEndScenario(t *testing.T) {
	fx := newFixture(t, 5)
	raw := []byte(`{"temp":{"isActive":true,"value":23.5}, "humm":{"isActive":false,"value":0}, ` +
		`"light":{"isActive":true,"value":300}, "proximity":{"isActive":true,"value":10}}`)

	require.NoError(t, fx.feed.OnMessage(raw))

	snap := fx.feed.Snapshot()
	assert.Equal(t, []float64{23.5}, snap.Series[data.Temp].Values)
	assert.Empty(t, snap.Series[data.Humm].Values)
	assert.Equal(t, []float64{300}, snap.Series[data.Light].Values)
	assert.Equal(t, "10", fx.display.readouts[data.Proximity])
	assert.Equal(t, "23.5 ℃", fx.display.readouts[data.Temp])
	assert.Equal(t, "300 lx", fx.display.readouts[data.Light])
	assert.Equal(t, []data.LEDCommand{{LED: "on"}}, fx.actuator.sent)
	assert.Equal(t, []string{"on"}, fx.display.icons)
	assert.Equal(t, "on", snap.LED)
}

func TestFeed_SharedLabelAcrossChannels(t *testing.T) {
	fx := newFixture(t, 5)
	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Temp: active(1), Humm: active(2), Light: active(3)}))

	snap := fx.feed.Snapshot()
	assert.Equal(t, []string{"09 : 07 : 03"}, snap.Series[data.Temp].Labels)
	assert.Equal(t, snap.Series[data.Temp].Labels, snap.Series[data.Humm].Labels)
	assert.Equal(t, snap.Series[data.Temp].Labels, snap.Series[data.Light].Labels)
}

func TestFeed_InactiveChannelIsNoOp(t *testing.T) {
	fx := newFixture(t, 5)
	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Temp: active(20)}))
	before := fx.feed.Snapshot().Series[data.Temp]
	readout := fx.display.readouts[data.Temp]
	redraws := fx.display.redraws[data.Temp]

	fx.tick()
	require.NoError(t, fx.feed.Apply(&data.InboundMessage{
		Temp:  data.ChannelReading{IsActive: false, Value: 99},
		Light: active(5),
	}))

	assert.Equal(t, before, fx.feed.Snapshot().Series[data.Temp])
	assert.Equal(t, readout, fx.display.readouts[data.Temp])
	assert.Equal(t, redraws, fx.display.redraws[data.Temp])
	assert.Empty(t, fx.actuator.sent, "no command without an active proximity reading")
}

func TestFeed_WindowEvictsOldest(t *testing.T) {
	fx := newFixture(t, 5)
	var labels []string
	for n := 1; n <= 11; n++ {
		labels = append(labels, fx.clock.Format(DefaultLabelLayout))
		require.NoError(t, fx.feed.Apply(&data.InboundMessage{Humm: active(float64(n))}))
		assert.Len(t, fx.feed.Snapshot().Series[data.Humm].Values, min(n, 10))
		fx.tick()
	}

	snap := fx.feed.Snapshot().Series[data.Humm]
	assert.Equal(t, []float64{2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, snap.Values)
	assert.Equal(t, labels[1:], snap.Labels)
	assert.Equal(t, 11, fx.display.appended[data.Humm])
	assert.Equal(t, 1, fx.display.evicted[data.Humm])
	assert.Equal(t, 11, fx.display.redraws[data.Humm])
}

func TestFeed_ThresholdBoundary(t *testing.T) {
	fx := newFixture(t, 50)

	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Proximity: active(50)}))
	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Proximity: active(49.999)}))

	assert.Equal(t, []data.LEDCommand{{LED: "on"}, {LED: "off"}}, fx.actuator.sent)
	assert.Equal(t, []string{"on", "off"}, fx.display.icons)
}

func TestFeed_ThresholdAppliesToNextMessageOnly(t *testing.T) {
	fx := newFixture(t, 50)

	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Proximity: active(60)}))
	fx.feed.SetThreshold(80)
	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Proximity: active(60)}))

	assert.Equal(t, []data.LEDCommand{{LED: "on"}, {LED: "off"}}, fx.actuator.sent)
	assert.Equal(t, 80.0, fx.feed.Threshold())
}

func TestFeed_NegativeThresholdAccepted(t *testing.T) {
	fx := newFixture(t, 50)
	fx.feed.SetThreshold(-1)

	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Proximity: active(0)}))
	assert.Equal(t, []data.LEDCommand{{LED: "on"}}, fx.actuator.sent)
}

func TestFeed_MalformedPayloadChangesNothing(t *testing.T) {
	fx := newFixture(t, 5)

	err := fx.feed.OnMessage([]byte(`{"temp":{"isActive":true,"value":1}}`))

	assert.ErrorIs(t, err, data.ErrMalformed)
	snap := fx.feed.Snapshot()
	for _, ch := range data.Charted {
		assert.Empty(t, snap.Series[ch].Values)
	}
	assert.Empty(t, fx.actuator.sent)
	assert.Empty(t, fx.display.readouts)
}

func TestFeed_ActuatorFailureIsReported(t *testing.T) {
	fx := newFixture(t, 5)
	fx.actuator.err = errors.New("link down")

	err := fx.feed.Apply(&data.InboundMessage{Temp: active(21), Proximity: active(9)})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotDelivered)
	assert.Contains(t, err.Error(), "link down")
	assert.Equal(t, []float64{21}, fx.feed.Snapshot().Series[data.Temp].Values)
	assert.Len(t, fx.actuator.sent, 1)
	assert.Equal(t, "9", fx.display.readouts[data.Proximity])
}

func TestFeed_SetAxisBound(t *testing.T) {
	fx := newFixture(t, 5)

	require.NoError(t, fx.feed.SetAxisBound(data.Temp, data.Max, 35))
	require.NoError(t, fx.feed.SetAxisBound(data.Light, data.Min, 10))

	snap := fx.feed.Snapshot()
	assert.Equal(t, AxisBounds{Min: 0, Max: 35}, snap.Axes[data.Temp])
	assert.Equal(t, AxisBounds{Min: 10, Max: 1000}, snap.Axes[data.Light])
	assert.NotContains(t, snap.Axes, data.Humm)
	assert.Equal(t, []string{"temp.max=35", "light.min=10"}, fx.display.axes)
	assert.Equal(t, 1, fx.display.redraws[data.Temp])
	assert.Empty(t, snap.Series[data.Temp].Values, "axis changes never touch the series")
}

func TestFeed_SetAxisBoundRejectsOtherCharts(t *testing.T) {
	fx := newFixture(t, 5)

	assert.ErrorIs(t, fx.feed.SetAxisBound(data.Humm, data.Max, 1), ErrUnsupportedAxis)
	assert.ErrorIs(t, fx.feed.SetAxisBound(data.Proximity, data.Min, 1), ErrUnsupportedAxis)
	assert.ErrorIs(t, fx.feed.SetAxisBound(data.Temp, data.Bound("mid"), 1), ErrUnsupportedAxis)
	assert.Empty(t, fx.display.axes)
}

func TestFeed_HandleFrameKeepsAppliedFrames(t *testing.T) {
	fx := newFixture(t, 5)
	fx.actuator.err = errors.New("link down")
	raw := []byte(`{"temp":{"isActive":"1","value":"20.000"},"humm":{"isActive":"0","value":"0"},` +
		`"light":{"isActive":"0","value":"0"},"proximity":{"isActive":"1","value":"9"}}`)

	assert.NoError(t, fx.feed.HandleFrame(raw), "an undelivered LED command does not drop the frame")
	assert.Equal(t, []float64{20}, fx.feed.Snapshot().Series[data.Temp].Values)
	assert.Equal(t, "on", fx.feed.Snapshot().LED)

	assert.ErrorIs(t, fx.feed.HandleFrame([]byte(`{"temp":`)), data.ErrMalformed)
}

func TestFeed_SnapshotCarriesLastReadouts(t *testing.T) {
	fx := newFixture(t, 5)
	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Temp: active(23.5), Light: active(300), Proximity: active(7)}))
	fx.tick()
	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Temp: active(24), Humm: active(41)}))

	assert.Equal(t, map[data.Channel]string{
		data.Temp:      "24 ℃",
		data.Humm:      "41 %",
		data.Light:     "300 lx",
		data.Proximity: "7",
	}, fx.feed.Snapshot().Readouts)
}

func TestFeed_WithSnapshotHoldsTheLock(t *testing.T) {
	fx := newFixture(t, 5)
	require.NoError(t, fx.feed.Apply(&data.InboundMessage{Light: active(1)}))

	applied := make(chan struct{})
	err := fx.feed.WithSnapshot(func(snap Snapshot) error {
		assert.Equal(t, []float64{1}, snap.Series[data.Light].Values)
		go func() {
			_ = fx.feed.Apply(&data.InboundMessage{Light: active(2)})
			close(applied)
		}()
		select {
		case <-applied:
			t.Error("Apply ran while the snapshot callback was active")
		case <-time.After(50 * time.Millisecond):
		}
		return errors.New("stop")
	})
	assert.EqualError(t, err, "stop")

	<-applied
	assert.Equal(t, []float64{1, 2}, fx.feed.Snapshot().Series[data.Light].Values)
}
