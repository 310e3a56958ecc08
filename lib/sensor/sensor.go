// Package sensor reads temperature and humidity from a DHT-class sensor.
package sensor

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/xerrors"
)

// ErrReadFailed wraps every failed read. A failed read produces no reading.
var ErrReadFailed = xerrors.New("sensor read failed")

// Plausible range for DHT11/DHT22 parts. Anything outside is a bad read.
const (
	MinTemperature = -40.0
	MaxTemperature = 80.0
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
)

type Reading struct {
	Temperature float64
	Humidity    float64
}

func (r Reading) String() string {
	return fmt.Sprintf("temp=%.1fC humidity=%.1f%%", r.Temperature, r.Humidity)
}

// Validate rejects NaN and out-of-range values.
func (r Reading) Validate() error {
	if math.IsNaN(r.Temperature) || math.IsNaN(r.Humidity) {
		return xerrors.Errorf("NaN value: %w", ErrReadFailed)
	}
	if r.Temperature < MinTemperature || r.Temperature > MaxTemperature {
		return xerrors.Errorf("temperature %.1f out of range: %w", r.Temperature, ErrReadFailed)
	}
	if r.Humidity < MinHumidity || r.Humidity > MaxHumidity {
		return xerrors.Errorf("humidity %.1f out of range: %w", r.Humidity, ErrReadFailed)
	}
	return nil
}

type Source interface {
	// Read blocks until the sensor answers. Errors wrap ErrReadFailed.
	Read(ctx context.Context) (Reading, error)
}
