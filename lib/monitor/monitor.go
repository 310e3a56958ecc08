// Package monitor owns the environmental monitor's state: the history
// window, the actuators and the periodic sensor sampling.
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/camera"
	"github.com/pbrmon/pbrmon/lib/history"
	"github.com/pbrmon/pbrmon/lib/logctx"
	"github.com/pbrmon/pbrmon/lib/sensor"
)

const (
	DefaultCapacity       = 100
	DefaultSampleInterval = time.Minute
)

// DataLog is the persisted record of samples.
type DataLog interface {
	Append(s history.Sample) error
	ReadTail(n int) ([]history.Sample, error)
}

// Clock formats the timestamp of a new sample. It never fails; an
// unsynchronized clock yields a placeholder.
type Clock interface {
	Now() string
}

type Config struct {
	Sensor    sensor.Source
	Clock     Clock
	Log       DataLog
	Actuators *actuator.Pair
	Camera    camera.Camera
	// Metrics may be nil.
	Metrics *Metrics
	// Capacity of the in-memory history window.
	Capacity int
	// How often the sensor is read
	SampleInterval time.Duration
	// Per-subscriber event buffer; a subscriber that falls this far behind
	// is dropped.
	EventBufferSize int
}

// State is a consistent view of the monitor at one instant.
type State struct {
	Actuators map[actuator.Name]bool
	// Latest is nil before the first sample.
	Latest   *history.Sample
	History  []history.Sample
	Capacity int
}

type Monitor struct {
	cfg     Config
	emitter *EventEmitter
	mu      sync.Mutex
	ring    *history.RingBuffer[history.Sample]
}

func New(cfg Config) *Monitor {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = DefaultSampleInterval
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 64
	}
	if cfg.Camera == nil {
		cfg.Camera = camera.Unavailable{}
	}
	if cfg.Actuators == nil {
		cfg.Actuators, _ = actuator.NewPair(nil)
	}
	m := &Monitor{
		cfg:     cfg,
		emitter: NewEventEmitter(cfg.EventBufferSize),
		ring:    history.NewRingBuffer[history.Sample](cfg.Capacity),
	}
	for name, on := range cfg.Actuators.States() {
		m.publishActuatorLocked(name, on)
	}
	return m
}

func (m *Monitor) Events() *EventEmitter {
	return m.emitter
}

func (m *Monitor) Camera() camera.Camera {
	return m.cfg.Camera
}

// Bootstrap seeds the history window with the tail of the data log. A
// missing or empty log leaves the window empty.
func (m *Monitor) Bootstrap(ctx context.Context) error {
	logger := logctx.From(ctx)
	if m.cfg.Log == nil {
		return nil
	}
	samples, err := m.cfg.Log.ReadTail(m.cfg.Capacity)
	if err != nil {
		return xerrors.Errorf("failed to read historical data: %w", err)
	}

	m.mu.Lock()
	m.ring.Load(samples)
	latest, ok := m.ring.Latest()
	n := m.ring.Len()
	m.mu.Unlock()

	if ok {
		m.emitter.EmitReading(latest)
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.temperature.Set(latest.Temperature)
			m.cfg.Metrics.humidity.Set(latest.Humidity)
			m.cfg.Metrics.historySamples.Set(float64(n))
		}
	}
	logger.Info("Loaded historical readings", "count", n)
	return nil
}

// SampleOnce reads the sensor and records the result. A failed read
// leaves the history and the log untouched. A failed log append is logged
// and does not undo the in-memory append.
func (m *Monitor) SampleOnce(ctx context.Context) (history.Sample, error) {
	logger := logctx.From(ctx)

	reading, err := m.cfg.Sensor.Read(ctx)
	if err != nil {
		if m.cfg.Metrics != nil {
			m.cfg.Metrics.readFailures.Inc()
		}
		logger.Warn("Failed to read from sensor", "error", err)
		return history.Sample{}, xerrors.Errorf("failed to sample: %w", err)
	}

	timestamp := history.TimestampUnavailable
	if m.cfg.Clock != nil {
		timestamp = m.cfg.Clock.Now()
	}
	s := history.Sample{
		Temperature: reading.Temperature,
		Humidity:    reading.Humidity,
		Timestamp:   timestamp,
	}

	m.mu.Lock()
	m.ring.Add(s)
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.observeSample(s, m.ring.Len())
	}
	m.emitter.EmitReading(s)
	m.mu.Unlock()

	if m.cfg.Log != nil {
		if err := m.cfg.Log.Append(s); err != nil {
			if m.cfg.Metrics != nil {
				m.cfg.Metrics.logFailures.Inc()
			}
			logger.Error("Failed to append to data log", "error", err)
		}
	}
	logger.Info("Sampled", "temperature", history.Round1(s.Temperature), "humidity", history.Round1(s.Humidity), "time", s.Timestamp)
	return s, nil
}

// StartSamplingLoop samples every SampleInterval until ctx is done. Failed
// reads are dropped; the next tick proceeds independently.
func (m *Monitor) StartSamplingLoop(ctx context.Context) {
	go m.Run(ctx)
}

// Run is the blocking form of StartSamplingLoop.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = m.SampleOnce(ctx)
		}
	}
}

// Toggle flips the named actuator and returns its new state. The flip and
// its event are one step under the monitor lock, so subscribers see states
// in the order they were applied.
func (m *Monitor) Toggle(ctx context.Context, name actuator.Name) (bool, error) {
	m.mu.Lock()
	on, err := m.cfg.Actuators.Toggle(name)
	if err == nil {
		m.publishActuatorLocked(name, on)
	}
	m.mu.Unlock()

	if err != nil {
		if !errors.Is(err, actuator.ErrUnknown) {
			logctx.From(ctx).Error("Failed to toggle actuator", "actuator", name, "error", err)
		}
		return on, err
	}
	logctx.From(ctx).Info("Actuator toggled", "actuator", name, "on", on)
	return on, nil
}

// Assumes the caller holds m.mu.
func (m *Monitor) publishActuatorLocked(name actuator.Name, on bool) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.observeActuator(name, on)
	}
	m.emitter.EmitActuator(name, on)
}

// Shutdown switches every actuator off.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	err := m.cfg.Actuators.Off()
	for name, on := range m.cfg.Actuators.States() {
		m.publishActuatorLocked(name, on)
	}
	m.mu.Unlock()
	if err != nil {
		return xerrors.Errorf("failed to switch actuators off: %w", err)
	}
	if err := m.cfg.Camera.Close(); err != nil {
		return xerrors.Errorf("failed to close camera: %w", err)
	}
	return nil
}

// Snapshot returns the actuator states and a copy of the history window.
// No sample or toggle can land while the copy is taken.
func (m *Monitor) Snapshot() State {
	m.mu.Lock()
	hist := m.ring.GetAll()
	latest, ok := m.ring.Latest()
	actuators := m.cfg.Actuators.States()
	m.mu.Unlock()

	st := State{
		Actuators: actuators,
		History:   hist,
		Capacity:  m.cfg.Capacity,
	}
	if ok {
		st.Latest = &latest
	}
	return st
}
