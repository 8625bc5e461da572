package behavior

import "github.com/VirbeHQ/being-core/core/events"

// Apply translates one domain event into a behavior state request. Disallowed
// requests are dropped by the machine itself, so callers can forward every
// event unconditionally.
func Apply(m *Machine, event events.Event) {
	switch typed := event.(type) {
	case events.UserSpeechStarted:
		m.Request(StateListening)
	case events.UserTurn:
		m.RecordUserTurn(typed.Turn)
		m.Request(StateRequestProcessing)
	case events.AgentTurn:
		m.RecordAgentTurn(typed.Turn)
		m.Request(StateRequestReceived)
	case events.PlaybackStarted:
		m.Request(StatePlayingBeingAction)
	case events.PlaybackEnded:
		m.Request(StateInConversation)
	case events.EngineErrorReceived:
		m.Request(StateRequestError)
	}
}
