package httpapi

import (
	"embed"
	"html/template"
	"net/http"
	"strings"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/camera"
	"github.com/pbrmon/pbrmon/lib/logctx"
)

//go:embed templates/dashboard.html.tmpl
var templatesFS embed.FS

var dashboardTemplate = template.Must(template.ParseFS(templatesFS, "templates/dashboard.html.tmpl"))

type dashboardActuator struct {
	Name  actuator.Name
	Label string
	On    bool
}

type dashboardView struct {
	Actuators     []dashboardActuator
	StreamEnabled bool
	CurrentTemp   float64
	CurrentHum    float64
	CurrentTime   string
	Temps         []float64
	Hums          []float64
	Times         []string
}

func actuatorLabel(name actuator.Name) string {
	if name == actuator.NameLED {
		return "LED"
	}
	return strings.ToUpper(string(name[:1])) + string(name[1:])
}

// handleDashboard renders the single page UI. Everything it shows is taken
// from one snapshot, so the page never mixes two states of the monitor.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	st := s.monitor.Snapshot()
	chart := newChartData(st)

	view := dashboardView{
		CurrentTemp: chart.CurrentTemp,
		CurrentHum:  chart.CurrentHum,
		CurrentTime: chart.CurrentTime,
		Temps:       chart.Temps,
		Hums:        chart.Hums,
		Times:       chart.Times,
	}
	_, noCamera := s.monitor.Camera().(camera.Unavailable)
	view.StreamEnabled = !noCamera
	for _, name := range actuator.Names {
		on, ok := st.Actuators[name]
		if !ok {
			continue
		}
		view.Actuators = append(view.Actuators, dashboardActuator{Name: name, Label: actuatorLabel(name), On: on})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, view); err != nil {
		logctx.From(s.ctx).Error("Failed to render dashboard", "error", err)
	}
}
