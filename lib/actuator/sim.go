package actuator

import (
	"log/slog"
)

// Simulated logs switch events instead of touching hardware.
type Simulated struct {
	name   Name
	logger *slog.Logger
}

func NewSimulated(name Name, logger *slog.Logger) *Simulated {
	return &Simulated{name: name, logger: logger}
}

func (s *Simulated) Set(on bool) error {
	s.logger.Debug("Simulated actuator switched", "actuator", s.name, "on", on)
	return nil
}

// NewSimulatedPair returns a pair backed by simulated drivers.
func NewSimulatedPair(logger *slog.Logger) (*Pair, error) {
	drivers := make(map[Name]Driver, len(Names))
	for _, n := range Names {
		drivers[n] = NewSimulated(n, logger)
	}
	return NewPair(drivers)
}
