// Package actuator drives the grow light and the circulation pump.
package actuator

import (
	"sort"
	"sync"

	"golang.org/x/xerrors"
)

type Name string

const (
	NameLED  Name = "led"
	NamePump Name = "pump"
)

// Names lists every actuator in display order.
var Names = []Name{NameLED, NamePump}

var ErrUnknown = xerrors.New("unknown actuator")

// Driver switches one physical output.
type Driver interface {
	Set(on bool) error
}

// Pair owns the on/off state of the actuators. All outputs start off.
type Pair struct {
	mu      sync.Mutex
	drivers map[Name]Driver
	states  map[Name]bool
}

// NewPair switches every driver off and returns the pair.
func NewPair(drivers map[Name]Driver) (*Pair, error) {
	p := &Pair{
		drivers: make(map[Name]Driver, len(drivers)),
		states:  make(map[Name]bool, len(drivers)),
	}
	for name, d := range drivers {
		if err := d.Set(false); err != nil {
			return nil, xerrors.Errorf("failed to switch %s off: %w", name, err)
		}
		p.drivers[name] = d
		p.states[name] = false
	}
	return p, nil
}

// Toggle flips the named output and returns its new state.
func (p *Pair) Toggle(name Name) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, ok := p.states[name]
	if !ok {
		return false, xerrors.Errorf("actuator %q: %w", name, ErrUnknown)
	}
	if err := p.setLocked(name, !state); err != nil {
		return state, err
	}
	return !state, nil
}

// setLocked drives the named output. The recorded state only changes when
// the driver succeeds. Assumes the caller holds the lock.
func (p *Pair) setLocked(name Name, on bool) error {
	d, ok := p.drivers[name]
	if !ok {
		return xerrors.Errorf("actuator %q: %w", name, ErrUnknown)
	}
	if err := d.Set(on); err != nil {
		return xerrors.Errorf("failed to switch %s: %w", name, err)
	}
	p.states[name] = on
	return nil
}

// States returns a copy of every actuator state.
func (p *Pair) States() map[Name]bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[Name]bool, len(p.states))
	for k, v := range p.states {
		out[k] = v
	}
	return out
}

// Off switches everything off, e.g. on shutdown. It keeps going after a
// failure and returns the first error.
func (p *Pair) Off() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.drivers))
	for name := range p.drivers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	var first error
	for _, name := range names {
		if err := p.setLocked(Name(name), false); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", xerrors.Errorf("actuator %q: %w", s, ErrUnknown)
}
