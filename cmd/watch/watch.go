package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	sse "github.com/tmaxmax/go-sse"
	"golang.org/x/term"
	"golang.org/x/xerrors"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/monitor"
)

type model struct {
	url       string
	reading   *monitor.ReadingBody
	actuators map[actuator.Name]bool
	lastError string
}

func newModel(url string) model {
	return model{url: url, actuators: map[actuator.Name]bool{}}
}

func (m model) Init() tea.Cmd {
	return nil
}

type eventMsg struct {
	event monitor.Event
}

type toggleErrMsg struct {
	err error
}

type finishMsg struct{}

// toggleKeys maps a key press to the actuator it flips.
var toggleKeys = map[string]actuator.Name{
	"l": actuator.NameLED,
	"p": actuator.NamePump,
}

//lint:ignore U1000 The Update function is used by the Bubble Tea framework
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		switch body := msg.event.Payload.(type) {
		case monitor.ReadingBody:
			m.reading = &body
		case monitor.ActuatorBody:
			actuators := make(map[actuator.Name]bool, len(m.actuators)+1)
			for k, v := range m.actuators {
				actuators[k] = v
			}
			actuators[body.Name] = body.State
			m.actuators = actuators
		}
	case toggleErrMsg:
		m.lastError = msg.err.Error()
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "ctrl+c", "q":
			return m, tea.Quit
		default:
			if name, ok := toggleKeys[key]; ok {
				m.lastError = ""
				url := m.url
				return m, func() tea.Msg {
					ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := ToggleOverHTTP(ctx, url, name); err != nil {
						return toggleErrMsg{err: err}
					}
					// the new state arrives as an actuator event
					return nil
				}
			}
		}
	case finishMsg:
		return m, tea.Quit
	}

	return m, nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString("Photobioreactor Monitor\n\n")
	if m.reading == nil {
		b.WriteString("No readings yet\n")
	} else {
		fmt.Fprintf(&b, "Temperature: %.1f °C\n", m.reading.Temperature)
		fmt.Fprintf(&b, "Humidity:    %.1f %%\n", m.reading.Humidity)
		fmt.Fprintf(&b, "Last update: %s\n", m.reading.Timestamp)
	}
	b.WriteString("\n")
	for _, name := range actuator.Names {
		on, ok := m.actuators[name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%-5s %s\n", strings.ToUpper(string(name))+":", onOff(on))
	}
	if m.lastError != "" {
		fmt.Fprintf(&b, "\nerror: %s\n", m.lastError)
	}
	b.WriteString("\n[l] toggle light  [p] toggle pump  [q] quit\n")
	return b.String()
}

// ReadEventsOverHTTP streams /events into ch until the body ends or ctx is
// done.
func ReadEventsOverHTTP(ctx context.Context, url string, ch chan<- monitor.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return xerrors.Errorf("failed to do request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return xerrors.Errorf("failed to subscribe: %w", errors.New(res.Status))
	}

	for ev, err := range sse.Read(res.Body, nil) {
		if err != nil {
			return xerrors.Errorf("failed to read sse: %w", err)
		}
		event := monitor.Event{Type: monitor.EventType(ev.Type)}
		switch event.Type {
		case monitor.EventTypeReading:
			var body monitor.ReadingBody
			if err := json.Unmarshal([]byte(ev.Data), &body); err != nil {
				return xerrors.Errorf("failed to unmarshal reading: %w", err)
			}
			event.Payload = body
		case monitor.EventTypeActuator:
			var body monitor.ActuatorBody
			if err := json.Unmarshal([]byte(ev.Data), &body); err != nil {
				return xerrors.Errorf("failed to unmarshal actuator: %w", err)
			}
			event.Payload = body
		default:
			continue
		}
		select {
		case ch <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func ToggleOverHTTP(ctx context.Context, baseURL string, name actuator.Name) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/toggle", baseURL, name), nil)
	if err != nil {
		return xerrors.Errorf("failed to create request: %w", err)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return xerrors.Errorf("failed to do request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return xerrors.Errorf("failed to toggle %s: %w", name, errors.New(res.Status))
	}
	return nil
}

func runWatch(remoteUrl string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return xerrors.New("watch needs a terminal")
	}

	p := tea.NewProgram(newModel(remoteUrl), tea.WithAltScreen())
	eventCh := make(chan monitor.Event, 64)

	readErrCh := make(chan error, 1)
	go func() {
		defer close(readErrCh)
		if err := ReadEventsOverHTTP(ctx, remoteUrl+"/events", eventCh); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			readErrCh <- xerrors.Errorf("failed to read events: %w", err)
		}
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				p.Send(eventMsg{event: event})
			}
		}
	}()
	pErrCh := make(chan error, 1)
	go func() {
		_, err := p.Run()
		pErrCh <- err
		close(pErrCh)
	}()

	var err error
	select {
	case err = <-readErrCh:
	case err = <-pErrCh:
		return err
	}

	p.Send(finishMsg{})
	select {
	case <-pErrCh:
	case <-time.After(1 * time.Second):
	}

	return err
}

var remoteUrlArg string

var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a running monitor",
	Long:  `Show live readings from a running monitor and toggle its actuators`,
	Run: func(cmd *cobra.Command, args []string) {
		remoteUrl := remoteUrlArg
		if remoteUrl == "" {
			fmt.Fprintln(os.Stderr, "URL is required")
			os.Exit(1)
		}
		if !strings.HasPrefix(remoteUrl, "http") {
			remoteUrl = "http://" + remoteUrl
		}
		remoteUrl = strings.TrimRight(remoteUrl, "/")
		if err := runWatch(remoteUrl); err != nil {
			fmt.Fprintf(os.Stderr, "Watch failed: %+v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	WatchCmd.Flags().StringVarP(&remoteUrlArg, "url", "u", "localhost:8080", "URL of the monitor. May optionally include a protocol and a base path.")
}
