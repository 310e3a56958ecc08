package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/xerrors"

	"github.com/pbrmon/pbrmon/internal/version"
	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/camera"
	"github.com/pbrmon/pbrmon/lib/datalog"
	"github.com/pbrmon/pbrmon/lib/history"
	"github.com/pbrmon/pbrmon/lib/logctx"
	"github.com/pbrmon/pbrmon/lib/monitor"
)

// SyncReporter tells whether sample timestamps come from a synchronized
// clock.
type SyncReporter interface {
	Synced() bool
}

// Server represents the HTTP server
type Server struct {
	router   chi.Router
	api      huma.API
	port     int
	srv      *http.Server
	ctx      context.Context
	monitor  *monitor.Monitor
	metrics  *monitor.Metrics
	clock    SyncReporter
	bootID   string
	basePath string
}

type ServerConfig struct {
	Monitor *monitor.Monitor
	// Metrics backs GET /metrics; the route is not registered when nil.
	Metrics        *monitor.Metrics
	Clock          SyncReporter
	BootID         string
	Port           int
	BasePath       string
	AllowedHosts   []string
	AllowedOrigins []string
}

// NewServer creates a new server instance
func NewServer(ctx context.Context, config ServerConfig) (*Server, error) {
	if config.Monitor == nil {
		return nil, xerrors.New("monitor is required")
	}
	router := chi.NewMux()
	logger := logctx.From(ctx)

	// Host validation runs first so a preflight from a foreign host is
	// rejected before CORS answers it.
	router.Use(hostAuthorizationMiddleware(config.AllowedHosts, logger))

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Cache-Control", "Last-Event-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	})
	router.Use(corsMiddleware.Handler)

	humaConfig := huma.DefaultConfig("pbrmon API", version.Version)
	humaConfig.Info.Description = "Photobioreactor environmental monitor: sensor history, actuator control and camera stills."
	api := humachi.New(router, humaConfig)

	s := &Server{
		router:   router,
		api:      api,
		port:     config.Port,
		ctx:      ctx,
		monitor:  config.Monitor,
		metrics:  config.Metrics,
		clock:    config.Clock,
		bootID:   config.BootID,
		basePath: config.BasePath,
	}

	s.registerRoutes()

	return s, nil
}

// Handler returns the router behind the base path middleware.
func (s *Server) Handler() http.Handler {
	return StripBasePath(s.basePath)(s.router)
}

// registerRoutes sets up all API endpoints
func (s *Server) registerRoutes() {
	// GET /status endpoint
	huma.Get(s.api, "/status", s.getStatus, func(o *huma.Operation) {
		o.Description = "Returns the current state of the monitor."
	})

	// GET /chartdata endpoint
	huma.Get(s.api, "/chartdata", s.getChartData, func(o *huma.Operation) {
		o.Description = "Returns the latest sample and the in-memory history, oldest first."
	})

	// GET /{actuator}/toggle endpoint
	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-actuator",
		Method:      http.MethodGet,
		Path:        "/{actuator}/toggle",
		Summary:     "Toggle an actuator",
		Description: "Flips the named actuator and returns its new state.",
		Errors:      []int{http.StatusNotFound, http.StatusInternalServerError},
	}, s.toggleActuator)

	// GET /events endpoint
	sse.Register(s.api, huma.Operation{
		OperationID: "subscribeEvents",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "Subscribe to events",
		Description: "The first events describe the current state: every actuator, then the latest reading if there is one. After that, a reading event follows each sample and an actuator event follows each toggle.",
	}, map[string]any{
		string(monitor.EventTypeReading):  monitor.ReadingBody{},
		string(monitor.EventTypeActuator): monitor.ActuatorBody{},
	}, s.subscribeEvents)

	s.router.Get("/", s.handleDashboard)
	s.router.Get("/stream", s.handleStream)
	s.router.Get("/history.csv", s.handleHistoryCSV)
	if s.metrics != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}
}

// getStatus handles GET /status
func (s *Server) getStatus(ctx context.Context, input *struct{}) (*StatusResponse, error) {
	st := s.monitor.Snapshot()

	resp := &StatusResponse{}
	resp.Body.Status = ServerStatusRunning
	resp.Body.BootID = s.bootID
	resp.Body.LEDState = st.Actuators[actuator.NameLED]
	resp.Body.PumpState = st.Actuators[actuator.NamePump]
	resp.Body.Readings = len(st.History)
	resp.Body.Capacity = st.Capacity
	resp.Body.ClockSync = s.clock == nil || s.clock.Synced()

	return resp, nil
}

// chartData mirrors the body of ChartDataResponse.
type chartData struct {
	CurrentTemp float64
	CurrentHum  float64
	CurrentTime string
	Temps       []float64
	Hums        []float64
	Times       []string
}

func newChartData(st monitor.State) chartData {
	data := chartData{
		CurrentTime: history.TimestampUnavailable,
		Temps:       make([]float64, 0, len(st.History)),
		Hums:        make([]float64, 0, len(st.History)),
		Times:       make([]string, 0, len(st.History)),
	}
	if st.Latest != nil {
		data.CurrentTemp = history.Round1(st.Latest.Temperature)
		data.CurrentHum = history.Round1(st.Latest.Humidity)
		data.CurrentTime = st.Latest.Timestamp
	}
	for _, sample := range st.History {
		data.Temps = append(data.Temps, history.Round1(sample.Temperature))
		data.Hums = append(data.Hums, history.Round1(sample.Humidity))
		data.Times = append(data.Times, sample.Timestamp)
	}
	return data
}

// getChartData handles GET /chartdata
func (s *Server) getChartData(ctx context.Context, input *struct{}) (*ChartDataResponse, error) {
	data := newChartData(s.monitor.Snapshot())

	resp := &ChartDataResponse{}
	resp.Body.CurrentTemp = data.CurrentTemp
	resp.Body.CurrentHum = data.CurrentHum
	resp.Body.CurrentTime = data.CurrentTime
	resp.Body.Temps = data.Temps
	resp.Body.Hums = data.Hums
	resp.Body.Times = data.Times

	return resp, nil
}

// toggleActuator handles GET /{actuator}/toggle
func (s *Server) toggleActuator(ctx context.Context, input *ToggleRequest) (*ToggleResponse, error) {
	name, err := actuator.ParseName(input.Actuator)
	if err != nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("unknown actuator %q", input.Actuator))
	}
	on, err := s.monitor.Toggle(s.ctx, name)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to toggle actuator", err)
	}

	resp := &ToggleResponse{}
	resp.Body.Name = ActuatorName(name)
	resp.Body.State = on

	return resp, nil
}

// subscribeEvents is an SSE endpoint that sends events to the client
func (s *Server) subscribeEvents(ctx context.Context, input *struct{}, send sse.Sender) {
	emitter := s.monitor.Events()
	subscriberId, ch, stateEvents := emitter.Subscribe()
	defer emitter.Unsubscribe(subscriberId)
	logger := logctx.From(s.ctx)
	logger.Info("New subscriber", "subscriberId", subscriberId)

	for _, event := range stateEvents {
		if err := send(sse.Message{ID: event.Id, Data: event.Payload}); err != nil {
			logger.Error("Failed to send event", "subscriberId", subscriberId, "error", err)
			return
		}
	}
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				logger.Info("Channel closed", "subscriberId", subscriberId)
				return
			}
			if err := send(sse.Message{ID: event.Id, Data: event.Payload}); err != nil {
				logger.Error("Failed to send event", "subscriberId", subscriberId, "error", err)
				return
			}
		case <-ctx.Done():
			logger.Info("Context done", "subscriberId", subscriberId)
			return
		}
	}
}

// handleStream serves a single JPEG frame. A failed capture affects only
// this request.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	frame, err := s.monitor.Camera().Capture(r.Context())
	if err != nil {
		if !errors.Is(err, camera.ErrUnavailable) {
			logctx.From(s.ctx).Warn("Camera capture failed", "error", err)
		}
		w.Header().Set("Cache-Control", "no-store")
		http.Error(w, "Camera capture failed", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", fmt.Sprint(len(frame)))
	_, _ = w.Write(frame)
}

// handleHistoryCSV exports the in-memory window in the data log format.
func (s *Server) handleHistoryCSV(w http.ResponseWriter, r *http.Request) {
	st := s.monitor.Snapshot()
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)
	if err := datalog.Export(w, st.History); err != nil {
		logctx.From(s.ctx).Error("Failed to export history", "error", err)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	return s.srv.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}

// GetOpenAPI returns the OpenAPI spec of the server.
func (s *Server) GetOpenAPI() string {
	jsonBytes, err := json.MarshalIndent(s.api.OpenAPI(), "", "  ")
	if err != nil {
		return ""
	}
	return string(jsonBytes)
}
