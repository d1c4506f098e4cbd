// internal/actuator/dispatcher.go
package actuator

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
)

// ErrNoSink is returned when a command is dispatched with nowhere to go.
var ErrNoSink = errors.New("no actuator sink configured")

// Sink delivers LED commands to one destination.
type Sink interface {
	Send(cmd data.LEDCommand) error
}

type namedSink struct {
	name string
	sink Sink
}

// Dispatcher sends every LED command to all configured sinks (currently the
// board link and, optionally, an MQTT mirror).
type Dispatcher struct {
	mu     sync.RWMutex
	sinks  []namedSink
	logger *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger}
}

func (d *Dispatcher) AddSink(name string, s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, namedSink{name: name, sink: s})
	d.logger.Info("Actuator sink added", zap.String("sink", name))
}

// Send delivers cmd to every sink. A failing sink does not stop the others;
// all failures are joined into the returned error.
func (d *Dispatcher) Send(cmd data.LEDCommand) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.sinks) == 0 {
		return ErrNoSink
	}
	var errs []error
	for _, s := range d.sinks {
		if err := s.sink.Send(cmd); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		d.logger.Debug("LED command sent", zap.String("sink", s.name), zap.String("led", cmd.LED))
	}
	return errors.Join(errs...)
}
