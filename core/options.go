package orchestration

import (
	"github.com/VirbeHQ/being-core/core/behavior"
	"github.com/VirbeHQ/being-core/core/events"
	"github.com/VirbeHQ/being-core/core/stream"
)

type OrchestratorOption func(*Orchestrator)

// WithHandlers registers additional transport handlers alongside the ones
// constructed from the capability profile, e.g. a provider-specific
// recognition backend.
func WithHandlers(handlers ...Handler) OrchestratorOption {
	return func(o *Orchestrator) {
		o.extraHandlers = append(o.extraHandlers, handlers...)
	}
}

// WithSynthesizer overrides the synthesis backend resolved from the profile.
func WithSynthesizer(synthesizer stream.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.synthesizer = synthesizer }
}

// WithBehaviorTimeouts overrides the auto-revert timeouts of the behavior
// state machine.
func WithBehaviorTimeouts(timeouts behavior.Timeouts) OrchestratorOption {
	return func(o *Orchestrator) { o.behaviorTimeouts = &timeouts }
}

// WithEventBuffer sizes the owner-context event channel. Transport loops
// enqueue; the orchestrator's event loop is the only drainer.
func WithEventBuffer(size int) OrchestratorOption {
	return func(o *Orchestrator) {
		if size > 0 {
			o.eventBuffer = size
		}
	}
}

// InitializeOptions carry the caller-supplied callbacks invoked from the
// orchestrator's event loop. All callbacks are optional.
type InitializeOptions struct {
	onUserTurn             func(turn events.Turn)
	onAgentTurn            func(turn events.AgentTurn)
	onInterimTranscript    func(transcript, language string)
	onSpeakingStateChanged func(speaking bool)
	onBehaviorChanged      func(previous, current behavior.State)
	onEngineStateChanged   func(state string)
	onEngineError          func(code, message string)
	onSignal               func(signal events.Signal)
	onNamedAction          func(action events.NamedAction)
	onUIAction             func(action events.UIAction)
	onCustomAction         func(action events.CustomAction)
	onEngineEvent          func(event events.EngineEvent)
}

type InitializeOption func(*InitializeOptions)

// OnUserTurn is invoked for every finalized end-user utterance, whichever
// transport surfaced it.
func OnUserTurn(callback func(turn events.Turn)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onUserTurn = callback }
}

// OnAgentTurn is invoked for every materialized agent turn, in arrival order.
// This is the feed consumed by an action player.
func OnAgentTurn(callback func(turn events.AgentTurn)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onAgentTurn = callback }
}

func OnInterimTranscript(callback func(transcript, language string)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onInterimTranscript = callback }
}

func OnSpeakingStateChanged(callback func(speaking bool)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onSpeakingStateChanged = callback }
}

func OnBehaviorChanged(callback func(previous, current behavior.State)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onBehaviorChanged = callback }
}

func OnEngineStateChanged(callback func(state string)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onEngineStateChanged = callback }
}

func OnEngineError(callback func(code, message string)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onEngineError = callback }
}

// OnSignal is invoked for engine-originated signals attached to a turn.
func OnSignal(callback func(signal events.Signal)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onSignal = callback }
}

func OnNamedAction(callback func(action events.NamedAction)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onNamedAction = callback }
}

func OnUIAction(callback func(action events.UIAction)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onUIAction = callback }
}

func OnCustomAction(callback func(action events.CustomAction)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onCustomAction = callback }
}

func OnEngineEvent(callback func(event events.EngineEvent)) InitializeOption {
	return func(opts *InitializeOptions) { opts.onEngineEvent = callback }
}
