package actuator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
)

type sinkFunc func(cmd data.LEDCommand) error

func (f sinkFunc) Send(cmd data.LEDCommand) error { return f(cmd) }

func TestDispatcher_NoSinks(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	assert.ErrorIs(t, d.Send(data.NewLEDCommand(true)), ErrNoSink)
}

func TestDispatcher_FansOutToEverySink(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	var board, mirror []string
	d.AddSink("board", sinkFunc(func(cmd data.LEDCommand) error { board = append(board, cmd.LED); return nil }))
	d.AddSink("mqtt", sinkFunc(func(cmd data.LEDCommand) error { mirror = append(mirror, cmd.LED); return nil }))

	require.NoError(t, d.Send(data.NewLEDCommand(true)))
	require.NoError(t, d.Send(data.NewLEDCommand(false)))

	assert.Equal(t, []string{"on", "off"}, board)
	assert.Equal(t, []string{"on", "off"}, mirror)
}

func TestDispatcher_FailureDoesNotStopOtherSinks(t *testing.T) {
	d := NewDispatcher(nil)
	linkDown := errors.New("link down")
	var mirrored int
	d.AddSink("board", sinkFunc(func(data.LEDCommand) error { return linkDown }))
	d.AddSink("mqtt", sinkFunc(func(data.LEDCommand) error { mirrored++; return nil }))

	err := d.Send(data.NewLEDCommand(true))

	assert.ErrorIs(t, err, linkDown)
	assert.Contains(t, err.Error(), "board")
	assert.Equal(t, 1, mirrored)
}
