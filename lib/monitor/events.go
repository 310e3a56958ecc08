package monitor

import (
	"sort"
	"sync"

	"github.com/pbrmon/pbrmon/lib/actuator"
	"github.com/pbrmon/pbrmon/lib/history"
)

type EventType string

const (
	EventTypeReading  EventType = "reading"
	EventTypeActuator EventType = "actuator"
)

type ReadingBody struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Timestamp   string  `json:"timestamp"`
}

type ActuatorBody struct {
	Name  actuator.Name `json:"name"`
	State bool          `json:"state"`
}

type Event struct {
	// Id's are monotonically increasing integers within a single subscription.
	// They are not globally unique.
	Id      int
	Type    EventType
	Payload any
}

type EventEmitter struct {
	mu                  sync.Mutex
	latest              *history.Sample
	actuators           map[actuator.Name]bool
	chans               map[int]chan Event
	chanEventIdx        map[int]int
	chanIdx             int
	subscriptionBufSize int
}

// subscriptionBufSize is the size of the buffer for each subscription.
// Once the buffer is full, the channel will be closed.
// Listeners must actively drain the channel.
func NewEventEmitter(subscriptionBufSize int) *EventEmitter {
	return &EventEmitter{
		actuators:           make(map[actuator.Name]bool),
		chans:               make(map[int]chan Event),
		chanEventIdx:        make(map[int]int),
		subscriptionBufSize: subscriptionBufSize,
	}
}

// Assumes the caller holds the lock.
func (e *EventEmitter) notifyChannels(eventType EventType, payload any) {
	chanIds := make([]int, 0, len(e.chans))
	for chanId := range e.chans {
		chanIds = append(chanIds, chanId)
	}
	for _, chanId := range chanIds {
		ch := e.chans[chanId]
		event := Event{
			Id:      e.chanEventIdx[chanId],
			Type:    eventType,
			Payload: payload,
		}
		e.chanEventIdx[chanId]++

		select {
		case ch <- event:
		default:
			// If the channel is full, close it.
			// Listeners must actively drain the channel.
			close(ch)
			delete(e.chans, chanId)
			delete(e.chanEventIdx, chanId)
		}
	}
}

func (e *EventEmitter) EmitReading(s history.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.latest = &s
	e.notifyChannels(EventTypeReading, readingBody(s))
}

// EmitActuator only notifies on an actual state change.
func (e *EventEmitter) EmitActuator(name actuator.Name, state bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prev, ok := e.actuators[name]; ok && prev == state {
		return
	}
	e.actuators[name] = state
	e.notifyChannels(EventTypeActuator, ActuatorBody{Name: name, State: state})
}

func readingBody(s history.Sample) ReadingBody {
	return ReadingBody{
		Temperature: history.Round1(s.Temperature),
		Humidity:    history.Round1(s.Humidity),
		Timestamp:   s.Timestamp,
	}
}

// Assumes the caller holds the lock.
func (e *EventEmitter) currentStateAsEvents() []Event {
	names := make([]string, 0, len(e.actuators))
	for name := range e.actuators {
		names = append(names, string(name))
	}
	sort.Strings(names)

	events := make([]Event, 0, len(names)+1)
	for _, name := range names {
		events = append(events, Event{
			Id:      len(events),
			Type:    EventTypeActuator,
			Payload: ActuatorBody{Name: actuator.Name(name), State: e.actuators[actuator.Name(name)]},
		})
	}
	if e.latest != nil {
		events = append(events, Event{
			Id:      len(events),
			Type:    EventTypeReading,
			Payload: readingBody(*e.latest),
		})
	}
	return events
}

// Subscribe returns a subscription id, a channel for receiving events and
// the events that recreate the current state right before the subscription.
func (e *EventEmitter) Subscribe() (int, <-chan Event, []Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	stateEvents := e.currentStateAsEvents()

	// Once a channel becomes full, it will be closed.
	ch := make(chan Event, e.subscriptionBufSize)
	id := e.chanIdx
	e.chans[id] = ch
	e.chanEventIdx[id] = len(stateEvents)
	e.chanIdx++
	return id, ch, stateEvents
}

// Unsubscribe closes the subscription's channel. Unknown ids are ignored.
func (e *EventEmitter) Unsubscribe(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ch, ok := e.chans[id]; ok {
		close(ch)
		delete(e.chans, id)
		delete(e.chanEventIdx, id)
	}
}
