// Package behavior drives the finite state machine representing the agent's
// externally observable conversational mode.
package behavior

import (
	"sync"
	"time"

	"github.com/VirbeHQ/being-core/core/events"
)

// State is the agent's current externally observable mode.
type State string

const (
	StateIdle               State = "Idle"
	StateFocused            State = "Focused"
	StateInConversation     State = "InConversation"
	StateListening          State = "Listening"
	StateRequestProcessing  State = "RequestProcessing"
	StateRequestReceived    State = "RequestReceived"
	StateRequestError       State = "RequestError"
	StatePlayingBeingAction State = "PlayingBeingAction"
)

// allowedFrom lists, per requested state, the states a transition is allowed
// to originate from. Requests from any other state are silently ignored.
var allowedFrom = map[State][]State{
	StateIdle:              {StateFocused},
	StateFocused:           {StateIdle, StateInConversation},
	StateInConversation:    {StateFocused, StateListening, StateRequestProcessing, StateRequestReceived, StateRequestError, StatePlayingBeingAction},
	StateListening:         {StateFocused, StateInConversation, StateRequestError},
	StateRequestProcessing: {StateListening, StateInConversation},
	StateRequestReceived:   {StateRequestProcessing, StateInConversation},
	StateRequestError:      {StateRequestProcessing, StateListening},
	// PlayingBeingAction is reachable only once a processed request arrived.
	StatePlayingBeingAction: {StateRequestReceived},
}

// revert describes the state-specific timeout scheduled on entering a state.
type revert struct {
	after time.Duration
	to    State
}

// Timeouts configures the auto-revert delays. Zero values fall back to
// defaults.
type Timeouts struct {
	Listening      time.Duration
	InConversation time.Duration
	RequestError   time.Duration
	Focused        time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Listening == 0 {
		t.Listening = 10 * time.Second
	}
	if t.InConversation == 0 {
		t.InConversation = 30 * time.Second
	}
	if t.RequestError == 0 {
		t.RequestError = 5 * time.Second
	}
	if t.Focused == 0 {
		t.Focused = 15 * time.Second
	}
	return t
}

// Machine is the behavior state machine. Transitions are serialized; at most
// one auto-revert timeout is pending at a time, and change callbacks are
// delivered one at a time in transition order.
type Machine struct {
	mu sync.Mutex

	state    State
	timeouts Timeouts
	timer    *time.Timer
	// timerGeneration invalidates an auto-revert callback that fired before
	// its timer could be stopped but has not run yet.
	timerGeneration uint64

	lastUserTurn  *events.Turn
	lastAgentTurn *events.Turn
	muted         bool

	// notifyMu serializes change callbacks. Lock order: notifyMu before mu.
	notifyMu       sync.Mutex
	pendingChanges []stateChange

	onChange func(previous, current State)
}

type stateChange struct {
	previous State
	current  State
}

type MachineOption func(*Machine)

func WithTimeouts(timeouts Timeouts) MachineOption {
	return func(m *Machine) { m.timeouts = timeouts.withDefaults() }
}

// WithChangeCallback registers a callback invoked, outside the machine lock,
// after every successful transition. Invocations are serialized and delivered
// in transition order; the callback must not call back into the machine.
func WithChangeCallback(onChange func(previous, current State)) MachineOption {
	return func(m *Machine) { m.onChange = onChange }
}

func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		state:    StateIdle,
		timeouts: Timeouts{}.withDefaults(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Request asks the machine to enter the given state. The transition happens
// only if the current state is in the requested state's allow-list; a
// disallowed request is a no-op. Every successful transition reschedules the
// state-specific timeout, cancelling any previously pending one.
func (m *Machine) Request(requested State) bool {
	m.mu.Lock()
	changed := m.requestLocked(requested)
	m.mu.Unlock()

	if changed {
		m.notifyChanges()
	}
	return changed
}

func (m *Machine) requestLocked(requested State) bool {
	allowed := false
	for _, from := range allowedFrom[requested] {
		if m.state == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	previous := m.state
	m.state = requested
	m.scheduleTimeoutLocked(requested)
	m.pendingChanges = append(m.pendingChanges, stateChange{previous: previous, current: requested})
	return true
}

// notifyChanges drains queued transitions one at a time. Holding notifyMu
// across each callback keeps deliveries serialized and in transition order
// even when transitions race from timer and caller goroutines.
func (m *Machine) notifyChanges() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	for {
		m.mu.Lock()
		if len(m.pendingChanges) == 0 {
			m.mu.Unlock()
			return
		}
		change := m.pendingChanges[0]
		m.pendingChanges = m.pendingChanges[1:]
		onChange := m.onChange
		m.mu.Unlock()

		if onChange != nil {
			onChange(change.previous, change.current)
		}
	}
}

// scheduleTimeoutLocked (re)arms the single pending timeout for the entered
// state; states without an auto-revert edge just cancel the previous timer.
func (m *Machine) scheduleTimeoutLocked(entered State) {
	m.timerGeneration++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	var r *revert
	switch entered {
	case StateListening:
		r = &revert{after: m.timeouts.Listening, to: StateInConversation}
	case StateInConversation:
		r = &revert{after: m.timeouts.InConversation, to: StateFocused}
	case StateRequestError:
		r = &revert{after: m.timeouts.RequestError, to: StateInConversation}
	case StateFocused:
		r = &revert{after: m.timeouts.Focused, to: StateIdle}
	}
	if r == nil {
		return
	}

	to := r.to
	generation := m.timerGeneration
	m.timer = time.AfterFunc(r.after, func() {
		m.mu.Lock()
		// A newer transition or Stop supersedes this revert even when it
		// fired before the timer could be stopped.
		if generation != m.timerGeneration {
			m.mu.Unlock()
			return
		}
		changed := m.requestLocked(to)
		m.mu.Unlock()

		if changed {
			m.notifyChanges()
		}
	})
}

// Stop cancels any pending auto-revert timeout, including one that has
// already fired but not yet run.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timerGeneration++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine) IsMuted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Machine) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}

// RecordUserTurn stores the last seen end-user turn.
func (m *Machine) RecordUserTurn(turn events.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUserTurn = &turn
}

// RecordAgentTurn stores the last seen agent turn.
func (m *Machine) RecordAgentTurn(turn events.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAgentTurn = &turn
}

func (m *Machine) LastUserTurn() *events.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastUserTurn
}

func (m *Machine) LastAgentTurn() *events.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastAgentTurn
}
