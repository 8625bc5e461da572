package events

const (
	// KindUserTurn identifies a finalized end-user utterance.
	KindUserTurn Kind = "user_turn.received"
	// KindUserTranscriptInterim identifies a mutable interim recognition
	// snapshot. Interim snapshots never become user turns on their own.
	KindUserTranscriptInterim Kind = "user_turn.transcript_interim"
	// KindUserSpeechStarted identifies the start of user speech activity.
	KindUserSpeechStarted Kind = "user_turn.speech_started"
	// KindUserSpeechEnded identifies the end of user speech activity.
	KindUserSpeechEnded Kind = "user_turn.speech_ended"
)

// UserTurn carries a finalized end-user utterance.
type UserTurn struct {
	Base
	Turn Turn
}

func NewUserTurn(turn Turn) UserTurn {
	return UserTurn{Base: NewBase(KindUserTurn), Turn: turn}
}

// UserTranscriptInterim carries a non-final recognition snapshot.
type UserTranscriptInterim struct {
	Base
	Transcript string
	Language   string
}

func NewUserTranscriptInterim(transcript, language string) UserTranscriptInterim {
	return UserTranscriptInterim{Base: NewBase(KindUserTranscriptInterim), Transcript: transcript, Language: language}
}

type UserSpeechStarted struct{ Base }

func NewUserSpeechStarted() UserSpeechStarted {
	return UserSpeechStarted{Base: NewBase(KindUserSpeechStarted)}
}

type UserSpeechEnded struct{ Base }

func NewUserSpeechEnded() UserSpeechEnded {
	return UserSpeechEnded{Base: NewBase(KindUserSpeechEnded)}
}
