package events

const (
	// KindEngineEvent identifies a conversation-engine event attached to a turn.
	KindEngineEvent Kind = "engine.event"
	// KindEngineState identifies an engine-side state announcement.
	KindEngineState Kind = "engine.state"
	// KindEngineError identifies an engine-side conversation error.
	KindEngineError Kind = "engine.error"
)

type EngineEventReceived struct {
	Base
	Event EngineEvent
}

func NewEngineEventReceived(event EngineEvent) EngineEventReceived {
	return EngineEventReceived{Base: NewBase(KindEngineEvent), Event: event}
}

type EngineStateChanged struct {
	Base
	State string
}

func NewEngineStateChanged(state string) EngineStateChanged {
	return EngineStateChanged{Base: NewBase(KindEngineState), State: state}
}

type EngineErrorReceived struct {
	Base
	Code    string
	Message string
}

func NewEngineErrorReceived(code, message string) EngineErrorReceived {
	return EngineErrorReceived{Base: NewBase(KindEngineError), Code: code, Message: message}
}
