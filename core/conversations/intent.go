package conversations

import "github.com/VirbeHQ/being-core/core/capability"

// Intent is one outbound user intent, tagged by the capability flag a handler
// must declare to accept it.
type Intent struct {
	Capability capability.Capability

	// Text is set for capability.Text intents.
	Text string
	// Name and Value are set for capability.NamedAction intents.
	Name  string
	Value string
	// Audio is set for capability.Audio intents.
	Audio []byte
	// Chunk is set for capability.AudioStream intents.
	Chunk []byte
}

func SendText(text string) Intent {
	return Intent{Capability: capability.Text, Text: text}
}

func SendNamedAction(name, value string) Intent {
	return Intent{Capability: capability.NamedAction, Name: name, Value: value}
}

func SendAudio(audio []byte) Intent {
	return Intent{Capability: capability.Audio, Audio: audio}
}

func SendAudioChunk(chunk []byte) Intent {
	return Intent{Capability: capability.AudioStream, Chunk: chunk}
}
