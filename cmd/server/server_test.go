package server

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/camera"
	"github.com/pbrmon/pbrmon/lib/logctx"
	"github.com/pbrmon/pbrmon/lib/sensor"
)

// Test helper to isolate viper config between tests
func isolateViper(t *testing.T) {
	// Save current state
	oldConfig := viper.AllSettings()

	// Reset viper
	viper.Reset()

	// Clear PBRMON_ env vars
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, envPrefix+"_") {
			parts := strings.SplitN(env, "=", 2)
			t.Setenv(parts[0], "")
			if err := os.Unsetenv(parts[0]); err != nil {
				t.Fatalf("Failed to unset env var %s: %v", parts[0], err)
			}
		}
	}

	t.Cleanup(func() {
		viper.Reset()
		for key, value := range oldConfig {
			viper.Set(key, value)
		}
	})
}

func testContext() context.Context {
	return logctx.WithLogger(context.Background(), slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func executeHelp(t *testing.T, args ...string) {
	t.Helper()
	serverCmd := CreateServerCmd()
	// --help parses flags without running the server
	serverCmd.SetArgs(append(args, "--help"))
	serverCmd.SetOut(&strings.Builder{})
	require.NoError(t, serverCmd.Execute())
}

// Test configuration values via ServerCmd execution
func TestServerCmd_AllArgs_Defaults(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		expected any
		getter   func() any
	}{
		{"port default", FlagPort, 8080, func() any { return viper.GetInt(FlagPort) }},
		{"data-file default", FlagDataFile, "data/sensor_data.csv", func() any { return viper.GetString(FlagDataFile) }},
		{"capacity default", FlagCapacity, 100, func() any { return viper.GetInt(FlagCapacity) }},
		{"sample-interval default", FlagSampleInterval, time.Minute, func() any { return viper.GetDuration(FlagSampleInterval) }},
		{"ntp-server default", FlagNTPServer, "pool.ntp.org", func() any { return viper.GetString(FlagNTPServer) }},
		{"tz-offset default", FlagTZOffset, 9 * time.Hour, func() any { return viper.GetDuration(FlagTZOffset) }},
		{"sensor default", FlagSensor, "iio", func() any { return viper.GetString(FlagSensor) }},
		{"actuators default", FlagActuators, "gpio", func() any { return viper.GetString(FlagActuators) }},
		{"led-pins default", FlagLEDPins, []string{"GPIO17", "GPIO27", "GPIO18"}, func() any { return viper.GetStringSlice(FlagLEDPins) }},
		{"led-level default", FlagLEDLevel, 255, func() any { return viper.GetInt(FlagLEDLevel) }},
		{"pump-level default", FlagPumpLevel, 140, func() any { return viper.GetInt(FlagPumpLevel) }},
		{"camera default", FlagCamera, "v4l2", func() any { return viper.GetString(FlagCamera) }},
		{"camera-vflip default", FlagCameraVFlip, true, func() any { return viper.GetBool(FlagCameraVFlip) }},
		{"allowed-hosts default", FlagAllowedHosts, []string{"*"}, func() any { return viper.GetStringSlice(FlagAllowedHosts) }},
		{"print-openapi default", FlagPrintOpenAPI, false, func() any { return viper.GetBool(FlagPrintOpenAPI) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateViper(t)
			executeHelp(t)
			assert.Equal(t, tt.expected, tt.getter())
		})
	}
}

func TestServerCmd_AllEnvVars(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		expected any
		getter   func() any
	}{
		{"PBRMON_PORT", "PBRMON_PORT", "9000", 9000, func() any { return viper.GetInt(FlagPort) }},
		{"PBRMON_DATA_FILE", "PBRMON_DATA_FILE", "/var/lib/pbr.csv", "/var/lib/pbr.csv", func() any { return viper.GetString(FlagDataFile) }},
		{"PBRMON_SAMPLE_INTERVAL", "PBRMON_SAMPLE_INTERVAL", "30s", 30 * time.Second, func() any { return viper.GetDuration(FlagSampleInterval) }},
		{"PBRMON_TZ_OFFSET", "PBRMON_TZ_OFFSET", "-5h", -5 * time.Hour, func() any { return viper.GetDuration(FlagTZOffset) }},
		{"PBRMON_SENSOR", "PBRMON_SENSOR", "sim", "sim", func() any { return viper.GetString(FlagSensor) }},
		{"PBRMON_CAMERA_VFLIP", "PBRMON_CAMERA_VFLIP", "false", false, func() any { return viper.GetBool(FlagCameraVFlip) }},
		{"PBRMON_PRINT_OPENAPI", "PBRMON_PRINT_OPENAPI", "true", true, func() any { return viper.GetBool(FlagPrintOpenAPI) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateViper(t)
			t.Setenv(tt.envVar, tt.envValue)
			executeHelp(t)
			assert.Equal(t, tt.expected, tt.getter())
		})
	}
}

func TestServerCmd_ArgsPrecedenceOverEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		args     []string
		expected any
		getter   func() any
	}{
		{
			"port: CLI overrides env",
			"PBRMON_PORT", "8080",
			[]string{"--port", "9090"},
			9090,
			func() any { return viper.GetInt(FlagPort) },
		},
		{
			"capacity: CLI overrides env",
			"PBRMON_CAPACITY", "50",
			[]string{"--capacity", "3"},
			3,
			func() any { return viper.GetInt(FlagCapacity) },
		},
		{
			"camera: CLI overrides env",
			"PBRMON_CAMERA", "none",
			[]string{"--camera", "test"},
			"test",
			func() any { return viper.GetString(FlagCamera) },
		},
		{
			"print-openapi: CLI overrides env",
			"PBRMON_PRINT_OPENAPI", "false",
			[]string{"--print-openapi"},
			true,
			func() any { return viper.GetBool(FlagPrintOpenAPI) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateViper(t)
			t.Setenv(tt.envVar, tt.envValue)
			executeHelp(t, tt.args...)
			assert.Equal(t, tt.expected, tt.getter())
		})
	}
}

func TestMixed_ConfigurationScenarios(t *testing.T) {
	t.Run("some env, some cli, some defaults", func(t *testing.T) {
		isolateViper(t)

		t.Setenv("PBRMON_SENSOR", "sim")
		t.Setenv("PBRMON_ALLOWED_HOSTS", "pbr.local,localhost")

		executeHelp(t, "--port", "9999", "--capacity", "10")

		assert.Equal(t, "sim", viper.GetString(FlagSensor))     // from env
		assert.Equal(t, 9999, viper.GetInt(FlagPort))           // from CLI
		assert.Equal(t, 10, viper.GetInt(FlagCapacity))         // from CLI
		assert.Equal(t, "gpio", viper.GetString(FlagActuators)) // default
		assert.Equal(t, []string{"pbr.local", "localhost"}, splitList(viper.GetStringSlice(FlagAllowedHosts)))
	})
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a,b", "c"}))
	assert.Equal(t, []string{"a", "b"}, splitList([]string{"a b"}))
	assert.Equal(t, []string{}, splitList([]string{"", ","}))
}

func TestGPIOConfig(t *testing.T) {
	isolateViper(t)
	executeHelp(t, "--pump-pins", "GPIO5,GPIO6,GPIO12", "--pump-level", "100")

	cfg, err := gpioConfig()
	require.NoError(t, err)
	assert.Equal(t, "GPIO25", cfg.Standby)
	assert.Equal(t, actuator.ChannelPins{In1: "GPIO17", In2: "GPIO27", PWM: "GPIO18", Level: 255}, cfg.LED)
	assert.Equal(t, actuator.ChannelPins{In1: "GPIO5", In2: "GPIO6", PWM: "GPIO12", Level: 100}, cfg.Pump)

	viper.Set(FlagLEDPins, []string{"GPIO17"})
	_, err = gpioConfig()
	require.Error(t, err)

	viper.Set(FlagLEDPins, []string{"GPIO17", "GPIO27", "GPIO18"})
	viper.Set(FlagPumpLevel, 300)
	_, err = gpioConfig()
	require.Error(t, err)
}

func TestGPIOConfig_Defaults(t *testing.T) {
	isolateViper(t)
	executeHelp(t)

	cfg, err := gpioConfig()
	require.NoError(t, err)
	assert.Equal(t, actuator.DefaultGPIOConfig, cfg)
}

func TestOpenPeripherals_Degraded(t *testing.T) {
	isolateViper(t)
	ctx := testContext()
	executeHelp(t, "--actuators", "sim", "--camera", "none", "--sensor", "sim")

	pair := openActuators(ctx)
	assert.Equal(t, map[actuator.Name]bool{actuator.NameLED: false, actuator.NamePump: false}, pair.States())

	_, ok := openCamera(ctx).(camera.Unavailable)
	assert.True(t, ok)

	_, ok = openSensor(ctx, afero.NewMemMapFs()).(*sensor.Simulated)
	assert.True(t, ok)

	// a data file that cannot be created leaves the monitor without a log
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	viper.Set(FlagDataFile, filepath.Join("data", "sensor_data.csv"))
	assert.Nil(t, openDataLog(ctx, fs))

	l := openDataLog(ctx, afero.NewMemMapFs())
	assert.NotNil(t, l)
}
