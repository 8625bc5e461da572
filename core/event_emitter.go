package orchestration

import "github.com/VirbeHQ/being-core/core/events"

// newCallbackEventEmitter bridges domain events to the caller-supplied
// callbacks. It runs only on the orchestrator's event loop, so callbacks are
// never invoked concurrently.
func newCallbackEventEmitter(opts InitializeOptions) func(events.Event) {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.UserTurn:
			if opts.onUserTurn != nil {
				opts.onUserTurn(typedEvent.Turn)
			}
		case events.UserTranscriptInterim:
			if opts.onInterimTranscript != nil {
				opts.onInterimTranscript(typedEvent.Transcript, typedEvent.Language)
			}
		case events.UserSpeechStarted:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(true)
			}
		case events.UserSpeechEnded:
			if opts.onSpeakingStateChanged != nil {
				opts.onSpeakingStateChanged(false)
			}
		case events.AgentTurn:
			if opts.onAgentTurn != nil {
				opts.onAgentTurn(typedEvent)
			}
		case events.EngineStateChanged:
			if opts.onEngineStateChanged != nil {
				opts.onEngineStateChanged(typedEvent.State)
			}
		case events.EngineErrorReceived:
			if opts.onEngineError != nil {
				opts.onEngineError(typedEvent.Code, typedEvent.Message)
			}
		case events.SignalReceived:
			if opts.onSignal != nil {
				opts.onSignal(typedEvent.Signal)
			}
		case events.NamedActionReceived:
			if opts.onNamedAction != nil {
				opts.onNamedAction(typedEvent.Action)
			}
		case events.UIActionReceived:
			if opts.onUIAction != nil {
				opts.onUIAction(typedEvent.Action)
			}
		case events.CustomActionReceived:
			if opts.onCustomAction != nil {
				opts.onCustomAction(typedEvent.Action)
			}
		case events.EngineEventReceived:
			if opts.onEngineEvent != nil {
				opts.onEngineEvent(typedEvent.Event)
			}
		}
	}
}
