package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/xerrors"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/clock"
	"github.com/pbrmon/pbrmon/lib/httpapi"
	"github.com/pbrmon/pbrmon/lib/logctx"
	"github.com/pbrmon/pbrmon/lib/monitor"
)

const (
	FlagConfig         = "config"
	FlagPort           = "port"
	FlagDataFile       = "data-file"
	FlagCapacity       = "capacity"
	FlagSampleInterval = "sample-interval"
	FlagNTPServer      = "ntp-server"
	FlagNTPResync      = "ntp-resync"
	FlagTZOffset       = "tz-offset"
	FlagSensor         = "sensor"
	FlagIIODevice      = "iio-device"
	FlagActuators      = "actuators"
	FlagStandbyPin     = "standby-pin"
	FlagLEDPins        = "led-pins"
	FlagLEDLevel       = "led-level"
	FlagPumpPins       = "pump-pins"
	FlagPumpLevel      = "pump-level"
	FlagCamera         = "camera"
	FlagCameraVFlip    = "camera-vflip"
	FlagJPEGQuality    = "jpeg-quality"
	FlagAllowedHosts   = "allowed-hosts"
	FlagAllowedOrigins = "allowed-origins"
	FlagBasePath       = "base-path"
	FlagLogFile        = "log-file"
	FlagLogLevel       = "log-level"
	FlagPrintOpenAPI   = "print-openapi"
)

const envPrefix = "PBRMON"

func runServer(ctx context.Context, logger *slog.Logger) error {
	fs := afero.NewOsFs()
	bootID := uuid.New().String()
	ctx = logctx.With(logctx.WithLogger(ctx, logger), "bootId", bootID)
	logger = logctx.From(ctx)

	if viper.GetBool(FlagPrintOpenAPI) {
		// the schema does not depend on any peripheral
		mon := monitor.New(monitor.Config{})
		srv, err := httpapi.NewServer(ctx, httpapi.ServerConfig{Monitor: mon, Metrics: monitor.NewMetrics()})
		if err != nil {
			return xerrors.Errorf("failed to create server: %w", err)
		}
		fmt.Println(srv.GetOpenAPI())
		return nil
	}

	tzOffset := viper.GetDuration(FlagTZOffset)
	clk := clock.New(clock.Config{
		Server:    viper.GetString(FlagNTPServer),
		UTCOffset: tzOffset,
	})
	// Sampling and serving start while the first sync is still in flight.
	clk.StartSyncLoop(ctx, viper.GetDuration(FlagNTPResync))

	metrics := monitor.NewMetrics()
	mon := monitor.New(monitor.Config{
		Sensor:         openSensor(ctx, fs),
		Clock:          clk,
		Log:            openDataLog(ctx, fs),
		Actuators:      openActuators(ctx),
		Camera:         openCamera(ctx),
		Metrics:        metrics,
		Capacity:       viper.GetInt(FlagCapacity),
		SampleInterval: viper.GetDuration(FlagSampleInterval),
	})
	if err := mon.Bootstrap(ctx); err != nil {
		logger.Error("Failed to load history, starting empty", "error", err)
	}

	port := viper.GetInt(FlagPort)
	srv, err := httpapi.NewServer(ctx, httpapi.ServerConfig{
		Monitor:        mon,
		Metrics:        metrics,
		Clock:          clk,
		BootID:         bootID,
		Port:           port,
		BasePath:       viper.GetString(FlagBasePath),
		AllowedHosts:   splitList(viper.GetStringSlice(FlagAllowedHosts)),
		AllowedOrigins: splitList(viper.GetStringSlice(FlagAllowedOrigins)),
	})
	if err != nil {
		return xerrors.Errorf("failed to create server: %w", err)
	}

	mon.StartSamplingLoop(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop server", "error", err)
		}
	}()

	logger.Info("Starting server", "port", port)
	if err := srv.Start(); err != nil && err != context.Canceled && err != http.ErrServerClosed {
		return xerrors.Errorf("failed to start server: %w", err)
	}
	if err := mon.Shutdown(logctx.WithLogger(context.Background(), logger)); err != nil {
		return xerrors.Errorf("failed to shut down monitor: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// splitList accepts both repeated flags and a single comma or space
// separated value, as environment variables provide.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		for _, item := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' }) {
			out = append(out, item)
		}
	}
	return out
}

type flagSpec struct {
	name         string
	shorthand    string
	defaultValue any
	usage        string
}

func CreateServerCmd() *cobra.Command {
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the monitor",
		Long:  `Sample the sensor, log to the data file and serve the dashboard and API.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile := viper.GetString(FlagConfig); cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				if err := viper.ReadInConfig(); err != nil {
					return xerrors.Errorf("failed to read config file: %w", err)
				}
			}
			logger, closer, err := logctx.NewLogger(cmd.OutOrStdout(), logctx.LoggerConfig{
				Level:      viper.GetString(FlagLogLevel),
				File:       viper.GetString(FlagLogFile),
				MaxSizeMB:  10,
				MaxBackups: 3,
			})
			if err != nil {
				return err
			}
			defer closeQuietly(closer)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := runServer(logctx.WithLogger(ctx, logger), logger); err != nil {
				logger.Error("Server failed", "error", err)
				return err
			}
			return nil
		},
	}

	flagSpecs := []flagSpec{
		{FlagConfig, "c", "", "Optional config file (yaml, toml or json) with the same keys as the flags"},
		{FlagPort, "p", 8080, "Port to serve on"},
		{FlagDataFile, "d", "data/sensor_data.csv", "CSV file every sample is appended to"},
		{FlagCapacity, "", monitor.DefaultCapacity, "Samples kept in memory and charted"},
		{FlagSampleInterval, "i", monitor.DefaultSampleInterval, "Time between sensor reads"},
		{FlagNTPServer, "", clock.DefaultServer, "NTP server; empty trusts the system clock"},
		{FlagNTPResync, "", time.Hour, "Time between NTP resynchronizations"},
		{FlagTZOffset, "", 9 * time.Hour, "Offset from UTC that timestamps are written in"},
		{FlagSensor, "", sensorIIO, "Sensor source: iio or sim"},
		{FlagIIODevice, "", "", "IIO device directory of the temperature and humidity sensor"},
		{FlagActuators, "", actuatorsGPIO, "Actuator drivers: gpio or sim"},
		{FlagStandbyPin, "", actuator.DefaultGPIOConfig.Standby, "Motor driver standby pin"},
		{FlagLEDPins, "", actuator.DefaultGPIOConfig.LED.Pins(), "Grow light channel pins: in1,in2,pwm"},
		{FlagLEDLevel, "", int(actuator.DefaultGPIOConfig.LED.Level), "Grow light PWM level, 0-255"},
		{FlagPumpPins, "", actuator.DefaultGPIOConfig.Pump.Pins(), "Pump channel pins: in1,in2,pwm"},
		{FlagPumpLevel, "", int(actuator.DefaultGPIOConfig.Pump.Level), "Pump PWM level, 0-255"},
		{FlagCamera, "", cameraV4L2, "Camera source: v4l2, test or none"},
		{FlagCameraVFlip, "", true, "Flip camera frames vertically"},
		{FlagJPEGQuality, "", 80, "JPEG quality of camera frames, 1-100"},
		{FlagAllowedHosts, "a", []string{"*"}, "HTTP allowed hosts. Use '*' for all"},
		{FlagAllowedOrigins, "o", []string{"*"}, "HTTP allowed origins for CORS. Use '*' for all"},
		{FlagBasePath, "", "", "Path prefix the server is mounted under behind a reverse proxy"},
		{FlagLogFile, "", "", "Also write logs to this file, rotated by size"},
		{FlagLogLevel, "", "info", "Log level: debug, info, warn or error"},
		{FlagPrintOpenAPI, "", false, "Print the OpenAPI schema to stdout and exit"},
	}

	for _, spec := range flagSpecs {
		switch v := spec.defaultValue.(type) {
		case string:
			serverCmd.Flags().StringP(spec.name, spec.shorthand, v, spec.usage)
		case int:
			serverCmd.Flags().IntP(spec.name, spec.shorthand, v, spec.usage)
		case bool:
			serverCmd.Flags().BoolP(spec.name, spec.shorthand, v, spec.usage)
		case time.Duration:
			serverCmd.Flags().DurationP(spec.name, spec.shorthand, v, spec.usage)
		case []string:
			serverCmd.Flags().StringSliceP(spec.name, spec.shorthand, v, spec.usage)
		default:
			panic(fmt.Sprintf("unsupported flag type %T for %s", v, spec.name))
		}
		if err := viper.BindPFlag(spec.name, serverCmd.Flags().Lookup(spec.name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", spec.name, err))
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return serverCmd
}

func closeQuietly(c io.Closer) {
	_ = c.Close()
}
