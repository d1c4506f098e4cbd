package settings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
)

type fakeTarget struct {
	threshold *float64
	axes      map[data.Channel]map[data.Bound]float64
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{axes: map[data.Channel]map[data.Bound]float64{}}
}

func (f *fakeTarget) SetThreshold(v float64) { f.threshold = &v }

func (f *fakeTarget) SetAxisBound(ch data.Channel, b data.Bound, v float64) error {
	if f.axes[ch] == nil {
		f.axes[ch] = map[data.Bound]float64{}
	}
	f.axes[ch][b] = v
	return nil
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"42", 42},
		{" 12.5 ", 12.5},
		{"-3", -3},
		{"1e2", 100},
	}
	for _, c := range cases {
		v, err := ParseValue(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, v, c.in)
	}

	for _, bad := range []string{"", "   ", "abc", "12px", "NaN", "Inf", "-Inf"} {
		_, err := ParseValue(bad)
		assert.ErrorIs(t, err, ErrInvalidValue, bad)
	}
}

func TestRouter_CommitsEachControl(t *testing.T) {
	target := newFakeTarget()
	r := NewRouter(target, zap.NewNop(), nil)

	require.NoError(t, r.Commit(CommitEvent{Control: TempAxisMax, Value: "40"}))
	require.NoError(t, r.Commit(CommitEvent{Control: TempAxisMin, Value: "-10"}))
	require.NoError(t, r.Commit(CommitEvent{Control: LightAxisMax, Value: "2000"}))
	require.NoError(t, r.Commit(CommitEvent{Control: LightAxisMin, Value: "0"}))
	require.NoError(t, r.Commit(CommitEvent{Control: ProximityThreshold, Value: "80"}))

	assert.Equal(t, 40.0, target.axes[data.Temp][data.Max])
	assert.Equal(t, -10.0, target.axes[data.Temp][data.Min])
	assert.Equal(t, 2000.0, target.axes[data.Light][data.Max])
	assert.Equal(t, 0.0, target.axes[data.Light][data.Min])
	require.NotNil(t, target.threshold)
	assert.Equal(t, 80.0, *target.threshold)
}

func TestRouter_InvalidInputKeepsPriorValue(t *testing.T) {
	target := newFakeTarget()
	r := NewRouter(target, zap.NewNop(), nil)
	require.NoError(t, r.Commit(CommitEvent{Control: ProximityThreshold, Value: "50"}))

	err := r.Commit(CommitEvent{Control: ProximityThreshold, Value: "fifty"})

	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Equal(t, 50.0, *target.threshold)
}

func TestRouter_UnknownControl(t *testing.T) {
	r := NewRouter(newFakeTarget(), zap.NewNop(), nil)

	err := r.Commit(CommitEvent{Control: "humm_yaxes_max", Value: "1"})

	assert.ErrorIs(t, err, ErrUnknownControl)
}

func TestRouter_Controls(t *testing.T) {
	r := NewRouter(newFakeTarget(), nil, nil)
	assert.Equal(t, []string{LightAxisMax, LightAxisMin, ProximityThreshold, TempAxisMax, TempAxisMin}, r.Controls())
}

func TestCommitEvent_DecodesStringOrNumber(t *testing.T) {
	var fromString, fromNumber CommitEvent
	require.NoError(t, json.Unmarshal([]byte(`{"control":"proximity_threshold","value":"42"}`), &fromString))
	require.NoError(t, json.Unmarshal([]byte(`{"control":"proximity_threshold","value":42.5}`), &fromNumber))

	assert.Equal(t, Input("42"), fromString.Value)
	assert.Equal(t, Input("42.5"), fromNumber.Value)

	var bad CommitEvent
	assert.Error(t, json.Unmarshal([]byte(`{"control":"x","value":true}`), &bad))
}
