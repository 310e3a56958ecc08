package httpapi

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/util"
)

type ActuatorName actuator.Name

func (a ActuatorName) Schema(r huma.Registry) *huma.Schema {
	return util.OpenAPISchema(r, "ActuatorName", actuator.Names)
}

type ServerStatus string

const (
	ServerStatusRunning ServerStatus = "running"
)

var ServerStatusValues = []ServerStatus{
	ServerStatusRunning,
}

func (s ServerStatus) Schema(r huma.Registry) *huma.Schema {
	return util.OpenAPISchema(r, "ServerStatus", ServerStatusValues)
}

// StatusResponse represents the server status
type StatusResponse struct {
	Body struct {
		Status    ServerStatus `json:"status" doc:"Current server status"`
		BootID    string       `json:"bootId" doc:"Changes on every restart; clients refetch history when it does"`
		LEDState  bool         `json:"ledState" doc:"Whether the grow light is on"`
		PumpState bool         `json:"pumpState" doc:"Whether the pump is on"`
		Readings  int          `json:"readings" doc:"Samples in the in-memory history window"`
		Capacity  int          `json:"capacity" doc:"Maximum samples kept in memory"`
		ClockSync bool         `json:"clockSynced" doc:"Whether sample timestamps come from a synchronized clock"`
	}
}

// ChartDataResponse carries the latest sample and the chronological history
// as parallel arrays.
type ChartDataResponse struct {
	Body struct {
		CurrentTemp float64   `json:"currentTemp" example:"21.5" doc:"Latest temperature in Celsius, 0 when there is no sample"`
		CurrentHum  float64   `json:"currentHum" example:"60.1" doc:"Latest relative humidity in percent, 0 when there is no sample"`
		CurrentTime string    `json:"currentTime" example:"2024-01-01 10:00:00" doc:"Latest sample time, N/A when there is no sample"`
		Temps       []float64 `json:"temps" doc:"Temperatures, oldest first"`
		Hums        []float64 `json:"hums" doc:"Humidities, oldest first"`
		Times       []string  `json:"times" doc:"Sample times, oldest first"`
	}
}

type ToggleRequest struct {
	Actuator string `path:"actuator" example:"led" doc:"Actuator to flip: led or pump"`
}

// ToggleResponse reports the actuator state after the flip
type ToggleResponse struct {
	Body struct {
		Name  ActuatorName `json:"name" doc:"Actuator that was flipped"`
		State bool         `json:"state" doc:"Whether the actuator is now on"`
	}
}
