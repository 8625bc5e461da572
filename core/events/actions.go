package events

const (
	// KindSignal identifies an engine-originated signal.
	KindSignal Kind = "signal.received"
	// KindNamedAction identifies a named action attached to a turn.
	KindNamedAction Kind = "action.named"
	// KindUIAction identifies a UI action attached to a turn.
	KindUIAction Kind = "action.ui"
	// KindCustomAction identifies a custom action attached to a turn.
	KindCustomAction Kind = "action.custom"
)

type SignalReceived struct {
	Base
	Signal Signal
}

func NewSignalReceived(signal Signal) SignalReceived {
	return SignalReceived{Base: NewBase(KindSignal), Signal: signal}
}

type NamedActionReceived struct {
	Base
	Action NamedAction
}

func NewNamedActionReceived(action NamedAction) NamedActionReceived {
	return NamedActionReceived{Base: NewBase(KindNamedAction), Action: action}
}

type UIActionReceived struct {
	Base
	Action UIAction
}

func NewUIActionReceived(action UIAction) UIActionReceived {
	return UIActionReceived{Base: NewBase(KindUIAction), Action: action}
}

type CustomActionReceived struct {
	Base
	Action CustomAction
}

func NewCustomActionReceived(action CustomAction) CustomActionReceived {
	return CustomActionReceived{Base: NewBase(KindCustomAction), Action: action}
}
