package events

import "github.com/VirbeHQ/being-core/core/synthesis"

const (
	// KindAgentTurn identifies a fully materialized agent turn: text, the
	// structured payload extracted at arrival time, and resolved speech.
	KindAgentTurn Kind = "agent_turn.materialized"
)

// AgentTurn is a materialized agent turn ready for sequential playback.
// Speech may be nil for turns whose text was empty.
type AgentTurn struct {
	Base
	Turn   Turn
	Speech *synthesis.Result
}

func NewAgentTurn(turn Turn, speech *synthesis.Result) AgentTurn {
	return AgentTurn{Base: NewBase(KindAgentTurn), Turn: turn, Speech: speech}
}
