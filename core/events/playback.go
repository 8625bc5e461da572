package events

const (
	// KindPlaybackStarted identifies the start of agent turn playback.
	KindPlaybackStarted Kind = "playback.started"
	// KindPlaybackEnded identifies the end of agent turn playback.
	KindPlaybackEnded Kind = "playback.ended"
)

type PlaybackStarted struct {
	Base
	Turn Turn
}

func NewPlaybackStarted(turn Turn) PlaybackStarted {
	return PlaybackStarted{Base: NewBase(KindPlaybackStarted), Turn: turn}
}

type PlaybackEnded struct {
	Base
	Turn Turn
}

func NewPlaybackEnded(turn Turn) PlaybackEnded {
	return PlaybackEnded{Base: NewBase(KindPlaybackEnded), Turn: turn}
}
