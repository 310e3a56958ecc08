package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/history"
)

const metricsNamespace = "pbrmon"

// Metrics exports the monitor's state for Prometheus scraping.
type Metrics struct {
	Registry *prometheus.Registry

	temperature    prometheus.Gauge
	humidity       prometheus.Gauge
	readings       prometheus.Counter
	readFailures   prometheus.Counter
	logFailures    prometheus.Counter
	historySamples prometheus.Gauge
	actuators      *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "temperature_celsius",
			Help:      "Most recent temperature reading.",
		}),
		humidity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "humidity_percent",
			Help:      "Most recent relative humidity reading.",
		}),
		readings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sensor_readings_total",
			Help:      "Successful sensor reads.",
		}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sensor_read_failures_total",
			Help:      "Sensor reads that produced no sample.",
		}),
		logFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "datalog_append_failures_total",
			Help:      "Samples that could not be appended to the data log.",
		}),
		historySamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "history_samples",
			Help:      "Samples held in the in-memory history window.",
		}),
		actuators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "actuator_on",
			Help:      "1 when the actuator is switched on.",
		}, []string{"actuator"}),
	}
	m.Registry.MustRegister(
		m.temperature,
		m.humidity,
		m.readings,
		m.readFailures,
		m.logFailures,
		m.historySamples,
		m.actuators,
	)
	return m
}

func (m *Metrics) observeSample(s history.Sample, historyLen int) {
	m.temperature.Set(s.Temperature)
	m.humidity.Set(s.Humidity)
	m.readings.Inc()
	m.historySamples.Set(float64(historyLen))
}

func (m *Metrics) observeActuator(name actuator.Name, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	m.actuators.WithLabelValues(string(name)).Set(v)
}
