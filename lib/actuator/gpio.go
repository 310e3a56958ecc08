package actuator

import (
	"golang.org/x/xerrors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// PWMFrequency is the carrier used on the driver's PWM inputs.
const PWMFrequency = physic.KiloHertz

// MotorChannel is one half of a TB6612FNG dual H-bridge: two direction
// inputs and a PWM speed input.
type MotorChannel struct {
	In1  gpio.PinOut
	In2  gpio.PinOut
	PWM  gpio.PinOut
	Duty gpio.Duty
}

// DutyFromByte maps an 8-bit analogWrite-style level onto a gpio.Duty.
func DutyFromByte(level uint8) gpio.Duty {
	return gpio.Duty(int64(gpio.DutyMax) * int64(level) / 255)
}

func (m *MotorChannel) Set(on bool) error {
	if !on {
		if err := m.In1.Out(gpio.Low); err != nil {
			return xerrors.Errorf("in1: %w", err)
		}
		if err := m.In2.Out(gpio.Low); err != nil {
			return xerrors.Errorf("in2: %w", err)
		}
		if err := m.PWM.Out(gpio.Low); err != nil {
			return xerrors.Errorf("pwm: %w", err)
		}
		return nil
	}
	if err := m.In1.Out(gpio.High); err != nil {
		return xerrors.Errorf("in1: %w", err)
	}
	if err := m.In2.Out(gpio.Low); err != nil {
		return xerrors.Errorf("in2: %w", err)
	}
	if err := m.PWM.PWM(m.Duty, PWMFrequency); err != nil {
		return xerrors.Errorf("pwm: %w", err)
	}
	return nil
}

// ChannelPins names the GPIO lines of one motor channel, e.g. "GPIO17".
type ChannelPins struct {
	In1   string
	In2   string
	PWM   string
	Level uint8
}

type GPIOConfig struct {
	Standby string
	LED     ChannelPins
	Pump    ChannelPins
}

// DefaultGPIOConfig drives the light at full brightness and the pump at
// 140/255, where it runs quieter.
var DefaultGPIOConfig = GPIOConfig{
	Standby: "GPIO25",
	LED:     ChannelPins{In1: "GPIO17", In2: "GPIO27", PWM: "GPIO18", Level: 255},
	Pump:    ChannelPins{In1: "GPIO23", In2: "GPIO24", PWM: "GPIO13", Level: 140},
}

// OpenGPIO initializes the host drivers, lifts the motor driver out of
// standby and returns the pair with both outputs off.
func OpenGPIO(cfg GPIOConfig) (*Pair, error) {
	if _, err := host.Init(); err != nil {
		return nil, xerrors.Errorf("failed to initialize periph host: %w", err)
	}
	return openPins(cfg, gpioreg.ByName)
}

func openPins(cfg GPIOConfig, byName func(string) gpio.PinIO) (*Pair, error) {
	lookup := func(name string) (gpio.PinIO, error) {
		p := byName(name)
		if p == nil {
			return nil, xerrors.Errorf("unknown gpio pin %q", name)
		}
		return p, nil
	}
	channel := func(pins ChannelPins) (*MotorChannel, error) {
		in1, err := lookup(pins.In1)
		if err != nil {
			return nil, err
		}
		in2, err := lookup(pins.In2)
		if err != nil {
			return nil, err
		}
		pwm, err := lookup(pins.PWM)
		if err != nil {
			return nil, err
		}
		return &MotorChannel{In1: in1, In2: in2, PWM: pwm, Duty: DutyFromByte(pins.Level)}, nil
	}

	stby, err := lookup(cfg.Standby)
	if err != nil {
		return nil, err
	}
	led, err := channel(cfg.LED)
	if err != nil {
		return nil, xerrors.Errorf("led: %w", err)
	}
	pump, err := channel(cfg.Pump)
	if err != nil {
		return nil, xerrors.Errorf("pump: %w", err)
	}
	if err := stby.Out(gpio.High); err != nil {
		return nil, xerrors.Errorf("failed to leave standby: %w", err)
	}
	return NewPair(map[Name]Driver{NameLED: led, NamePump: pump})
}

// Pins lists the channel's lines in in1, in2, pwm order.
func (c ChannelPins) Pins() []string {
	return []string{c.In1, c.In2, c.PWM}
}
