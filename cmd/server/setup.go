package server

import (
	"context"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/camera"
	"github.com/pbrmon/pbrmon/lib/datalog"
	"github.com/pbrmon/pbrmon/lib/logctx"
	"github.com/pbrmon/pbrmon/lib/monitor"
	"github.com/pbrmon/pbrmon/lib/sensor"
)

const (
	sensorIIO = "iio"
	sensorSim = "sim"

	actuatorsGPIO = "gpio"
	actuatorsSim  = "sim"

	cameraV4L2 = "v4l2"
	cameraTest = "test"
	cameraNone = "none"
)

// Peripherals that fail to open are logged and replaced so the monitor
// still serves what it can.

func openDataLog(ctx context.Context, fs afero.Fs) monitor.DataLog {
	logger := logctx.From(ctx)
	path := viper.GetString(FlagDataFile)
	l, err := datalog.Open(fs, path)
	if err != nil {
		logger.Error("Data log unavailable, samples are kept in memory only", "path", path, "error", err)
		return nil
	}
	logger.Info("Data log ready", "path", l.Path())
	return l
}

func openSensor(ctx context.Context, fs afero.Fs) sensor.Source {
	logger := logctx.From(ctx)
	switch kind := viper.GetString(FlagSensor); kind {
	case sensorSim:
		return sensor.NewSimulated(uint64(1), sensor.Reading{Temperature: 25, Humidity: 60}, 0.05)
	case sensorIIO:
		s := sensor.NewIIO(fs, viper.GetString(FlagIIODevice))
		if err := s.Probe(); err != nil {
			// reads keep failing and are retried every tick, the same as
			// a sensor that drops out at runtime
			logger.Error("Sensor not found", "error", err)
		}
		return s
	default:
		logger.Error("Unknown sensor source, using iio", "sensor", kind)
		return sensor.NewIIO(fs, viper.GetString(FlagIIODevice))
	}
}

func gpioConfig() (actuator.GPIOConfig, error) {
	channel := func(pinsFlag, levelFlag string) (actuator.ChannelPins, error) {
		pins := splitList(viper.GetStringSlice(pinsFlag))
		if len(pins) != 3 {
			return actuator.ChannelPins{}, xerrors.Errorf("--%s needs three pins (in1,in2,pwm), got %d", pinsFlag, len(pins))
		}
		level := viper.GetInt(levelFlag)
		if level < 0 || level > 255 {
			return actuator.ChannelPins{}, xerrors.Errorf("--%s must be between 0 and 255, got %d", levelFlag, level)
		}
		return actuator.ChannelPins{In1: pins[0], In2: pins[1], PWM: pins[2], Level: uint8(level)}, nil
	}
	led, err := channel(FlagLEDPins, FlagLEDLevel)
	if err != nil {
		return actuator.GPIOConfig{}, err
	}
	pump, err := channel(FlagPumpPins, FlagPumpLevel)
	if err != nil {
		return actuator.GPIOConfig{}, err
	}
	return actuator.GPIOConfig{
		Standby: viper.GetString(FlagStandbyPin),
		LED:     led,
		Pump:    pump,
	}, nil
}

func openActuators(ctx context.Context) *actuator.Pair {
	logger := logctx.From(ctx)
	if kind := viper.GetString(FlagActuators); kind == actuatorsGPIO {
		cfg, err := gpioConfig()
		if err == nil {
			var pair *actuator.Pair
			if pair, err = actuator.OpenGPIO(cfg); err == nil {
				return pair
			}
		}
		logger.Error("GPIO actuators unavailable, falling back to simulated drivers", "error", err)
	} else if kind != actuatorsSim {
		logger.Error("Unknown actuator driver, using simulated drivers", "actuators", kind)
	}
	pair, err := actuator.NewSimulatedPair(logger)
	if err != nil {
		// simulated drivers never fail to switch off
		panic(err)
	}
	return pair
}

func openCamera(ctx context.Context) camera.Camera {
	logger := logctx.From(ctx)
	cfg := camera.DefaultConfig
	cfg.VFlip = viper.GetBool(FlagCameraVFlip)
	cfg.JPEGQuality = viper.GetInt(FlagJPEGQuality)

	switch kind := viper.GetString(FlagCamera); kind {
	case cameraV4L2:
		cam, err := camera.OpenV4L2(cfg)
		if err != nil {
			logger.Error("Camera unavailable", "error", err)
			return camera.Unavailable{Reason: err}
		}
		return cam
	case cameraTest:
		return camera.NewTestPattern(cfg)
	case cameraNone:
		return camera.Unavailable{}
	default:
		logger.Error("Unknown camera source, camera disabled", "camera", kind)
		return camera.Unavailable{}
	}
}
