package stream

import (
	"encoding/json"
	"fmt"

	"github.com/VirbeHQ/being-core/core/room"
)

// Wire-level event names. These are part of the protocol contract and must
// not be renamed.
const (
	eventConversationInit    = "conversation-init"
	eventConversationMessage = "conversation-message"
	eventSpeechRecognized    = "speech-recognized"
	eventSpeechStart         = "speech-start"
	eventSpeechEnd           = "speech-end"
	eventSpeechAudio         = "speech-audio"
	eventState               = "state"
	eventConversationError   = "conversation-error"
)

type envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func newEnvelope(name string, payload any) (*envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error marshalling payload: %w", err)
	}
	return &envelope{Name: name, Payload: raw}, nil
}

type initPayload struct {
	EndUserID      string  `json:"endUserId"`
	ConversationID *string `json:"conversationId,omitempty"`
}

type speechRecognizedPayload struct {
	Chunk    string `json:"chunk"`
	Language string `json:"language"`
	IsFinal  bool   `json:"isFinal"`
}

type speechAudioPayload struct {
	Chunk []byte `json:"chunk"`
}

type statePayload struct {
	State string `json:"state"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type outboundMessagePayload struct {
	EndUserID string             `json:"endUserId"`
	Action    room.MessageAction `json:"action"`
}

// parseConversationMessage extracts the first message of a
// conversation-message payload, which may be a single object or a list. A
// malformed payload yields nil rather than an error so one bad event cannot
// halt the pipeline.
func parseConversationMessage(payload json.RawMessage) *room.Message {
	var list []room.Message
	if err := json.Unmarshal(payload, &list); err == nil {
		if len(list) == 0 {
			return nil
		}
		return &list[0]
	}

	var single room.Message
	if err := json.Unmarshal(payload, &single); err != nil {
		return nil
	}
	return &single
}
