package sensor

import (
	"context"
	"path"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/xerrors"
)

// DefaultIIODevice is where the Linux dht11 overlay exposes the sensor.
const DefaultIIODevice = "/sys/bus/iio/devices/iio:device0"

const (
	iioTemperatureFile = "in_temp_input"
	iioHumidityFile    = "in_humidityrelative_input"
)

// IIO reads a sensor bound to the kernel's industrial I/O subsystem. Both
// channels report thousandths of a unit.
type IIO struct {
	fs     afero.Fs
	device string
}

func NewIIO(fs afero.Fs, device string) *IIO {
	if device == "" {
		device = DefaultIIODevice
	}
	return &IIO{fs: fs, device: device}
}

// Probe checks that the device exposes both channels.
func (s *IIO) Probe() error {
	for _, name := range []string{iioTemperatureFile, iioHumidityFile} {
		ok, err := afero.Exists(s.fs, path.Join(s.device, name))
		if err != nil {
			return xerrors.Errorf("failed to stat %s: %w", name, err)
		}
		if !ok {
			return xerrors.Errorf("iio device %s has no %s channel", s.device, name)
		}
	}
	return nil
}

func (s *IIO) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, xerrors.Errorf("sensor read canceled: %w", err)
	}
	temp, err := s.readChannel(iioTemperatureFile)
	if err != nil {
		return Reading{}, err
	}
	hum, err := s.readChannel(iioHumidityFile)
	if err != nil {
		return Reading{}, err
	}
	r := Reading{Temperature: temp, Humidity: hum}
	if err := r.Validate(); err != nil {
		return Reading{}, err
	}
	return r, nil
}

func (s *IIO) readChannel(name string) (float64, error) {
	// the dht11 driver answers EIO or ETIMEDOUT when the bus handshake fails
	raw, err := afero.ReadFile(s.fs, path.Join(s.device, name))
	if err != nil {
		return 0, xerrors.Errorf("read %s: %v: %w", name, err, ErrReadFailed)
	}
	milli, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, xerrors.Errorf("parse %s: %v: %w", name, err, ErrReadFailed)
	}
	return float64(milli) / 1000, nil
}
