package actuator

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type failingDriver struct {
	fail bool
	on   bool
}

func (d *failingDriver) Set(on bool) error {
	if d.fail {
		return xerrors.New("bus error")
	}
	d.on = on
	return nil
}

func TestPair_Toggle(t *testing.T) {
	pair, err := NewSimulatedPair(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	assert.Equal(t, map[Name]bool{NameLED: false, NamePump: false}, pair.States())

	on, err := pair.Toggle(NameLED)
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, map[Name]bool{NameLED: true, NamePump: false}, pair.States())

	on, err = pair.Toggle(NameLED)
	require.NoError(t, err)
	assert.False(t, on)

	on, err = pair.Toggle(NamePump)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, pair.States()[NamePump])

	_, err = pair.Toggle("heater")
	require.ErrorIs(t, err, ErrUnknown)
	assert.EqualError(t, err, `actuator "heater": unknown actuator`)
	assert.NotContains(t, pair.States(), Name("heater"))
}

func TestPair_DriverFailureKeepsState(t *testing.T) {
	d := &failingDriver{}
	pair, err := NewPair(map[Name]Driver{NameLED: d})
	require.NoError(t, err)

	d.fail = true
	on, err := pair.Toggle(NameLED)
	require.Error(t, err)
	assert.False(t, on)
	assert.False(t, pair.States()[NameLED])

	d.fail = false
	on, err = pair.Toggle(NameLED)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, d.on)
}

func TestPair_Off(t *testing.T) {
	led, pump := &failingDriver{}, &failingDriver{}
	pair, err := NewPair(map[Name]Driver{NameLED: led, NamePump: pump})
	require.NoError(t, err)
	_, err = pair.Toggle(NameLED)
	require.NoError(t, err)
	_, err = pair.Toggle(NamePump)
	require.NoError(t, err)
	require.True(t, led.on)

	require.NoError(t, pair.Off())
	assert.False(t, led.on)
	assert.False(t, pump.on)
	assert.Equal(t, map[Name]bool{NameLED: false, NamePump: false}, pair.States())
}

func TestParseName(t *testing.T) {
	n, err := ParseName("led")
	require.NoError(t, err)
	assert.Equal(t, NameLED, n)
	n, err = ParseName("pump")
	require.NoError(t, err)
	assert.Equal(t, NamePump, n)
	_, err = ParseName("LED")
	require.ErrorIs(t, err, ErrUnknown)
}

func TestDutyFromByte(t *testing.T) {
	assert.Equal(t, gpio.Duty(0), DutyFromByte(0))
	assert.Equal(t, gpio.DutyMax, DutyFromByte(255))
	assert.Equal(t, gpio.Duty(int64(gpio.DutyMax)*140/255), DutyFromByte(140))
}

func testPins() map[string]*gpiotest.Pin {
	pins := map[string]*gpiotest.Pin{}
	for _, name := range []string{"STBY", "A1", "A2", "PA", "B1", "B2", "PB"} {
		pins[name] = &gpiotest.Pin{N: name, L: gpio.Low}
	}
	return pins
}

func TestOpenPins(t *testing.T) {
	pins := testPins()
	byName := func(name string) gpio.PinIO {
		if p, ok := pins[name]; ok {
			return p
		}
		return nil
	}
	cfg := GPIOConfig{
		Standby: "STBY",
		LED:     ChannelPins{In1: "A1", In2: "A2", PWM: "PA", Level: 255},
		Pump:    ChannelPins{In1: "B1", In2: "B2", PWM: "PB", Level: 140},
	}
	pair, err := openPins(cfg, byName)
	require.NoError(t, err)
	assert.Equal(t, gpio.High, pins["STBY"].L)

	_, err = pair.Toggle(NamePump)
	require.NoError(t, err)
	assert.Equal(t, gpio.High, pins["B1"].L)
	assert.Equal(t, gpio.Low, pins["B2"].L)
	assert.Equal(t, DutyFromByte(140), pins["PB"].D)
	assert.Equal(t, PWMFrequency, pins["PB"].F)
	assert.Equal(t, gpio.Low, pins["A1"].L)

	_, err = pair.Toggle(NamePump)
	require.NoError(t, err)
	assert.Equal(t, gpio.Low, pins["B1"].L)
	assert.Equal(t, gpio.Low, pins["B2"].L)
	assert.Equal(t, gpio.Low, pins["PB"].L)

	cfg.Pump.PWM = "missing"
	_, err = openPins(cfg, byName)
	require.Error(t, err)
}
