package connectivity

import (
	"context"
	"strings"
	"sync"

	"github.com/go-errors/errors"
)

type State int

const (
	Offline State = iota
	Online
)

func (s State) String() string {
	switch s {
	case Offline:
		return "OFFLINE"
	case Online:
		return "ONLINE"
	default:
		return "INVALID STATE"
	}
}

// ParseState is the inverse of State.String, ignoring case.
func ParseState(s string) (State, error) {
	switch strings.ToUpper(s) {
	case "OFFLINE":
		return Offline, nil
	case "ONLINE":
		return Online, nil
	default:
		return Offline, errors.Errorf("unknown connectivity state %v", s)
	}
}

type Reporter interface {
	CurrentState() State
	WaitForStateChange(context.Context, State) bool
}

type Config struct {
	// Name of the observed peer, used in log lines
	Name   string
	Logger Logger
}

// Monitor derives the reachability of the payment node from the outcome of
// the calls made to it. It starts out Offline until a call succeeds.
type Monitor struct {
	mu      sync.Mutex
	name    string
	state   State
	changed chan struct{}
	log     Logger
}

// Compile time check for protocol compatibility
var _ Reporter = (*Monitor)(nil)

func NewMonitor(config *Config) *Monitor {
	m := &Monitor{
		name:    config.Name,
		state:   Offline,
		changed: make(chan struct{}),
	}

	if m.name == "" {
		m.name = "node"
	}

	if config.Logger != nil {
		m.log = config.Logger
	} else {
		m.log = noopLogger{}
	}

	return m
}

// Report records whether the latest call reached the peer.
func (m *Monitor) Report(reachable bool) {
	next := Offline
	if reachable {
		next = Online
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == next {
		return
	}

	if next == Online {
		m.log.Infof("Connection to %v is %v", m.name, next)
	} else {
		m.log.Warnf("Connection to %v is %v", m.name, next)
	}

	m.state = next

	// wake up all waiters
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// WaitForStateChange blocks until the state differs from the given one. It
// returns false if the context is done first.
func (m *Monitor) WaitForStateChange(ctx context.Context, state State) bool {
	for {
		m.mu.Lock()
		if m.state != state {
			m.mu.Unlock()
			return true
		}
		changed := m.changed
		m.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return false
		}
	}
}
