package room

import (
	"time"

	"github.com/VirbeHQ/being-core/core/events"
)

// Room is the turn-store resource backing one conversation.
type Room struct {
	ID         string    `json:"id"`
	LocationID string    `json:"locationId"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// ParticipantType mirrors the wire-level participant attribution.
type ParticipantType string

const (
	ParticipantEndUser ParticipantType = "EndUser"
	ParticipantAPI     ParticipantType = "Api"
	ParticipantUser    ParticipantType = "User"
)

type messagesResponse struct {
	Count   int       `json:"count"`
	Results []Message `json:"results"`
}

// Message is one stored turn. Results arrive newest-first from the store.
type Message struct {
	ID              string          `json:"id"`
	RoomID          string          `json:"roomId"`
	ParticipantType ParticipantType `json:"participantType"`
	Action          MessageAction   `json:"action"`
	CreatedAt       time.Time       `json:"createdAt"`
	ModifiedAt      time.Time       `json:"modifiedAt"`
}

// MessageAction is the structured payload of a stored turn. Every section is
// optional; a missing or malformed section normalizes to nil.
type MessageAction struct {
	Text           *textAction            `json:"text,omitempty"`
	Speech         *speechAction          `json:"speech,omitempty"`
	UIAction       *events.UIAction       `json:"uiAction,omitempty"`
	NamedAction    *events.NamedAction    `json:"namedAction,omitempty"`
	BehaviorAction *events.BehaviorAction `json:"behaviorAction,omitempty"`
	CustomAction   *events.CustomAction   `json:"customAction,omitempty"`
	Signal         *events.Signal         `json:"signal,omitempty"`
	EngineEvent    *events.EngineEvent    `json:"engineEvent,omitempty"`
	Buttons        []events.Button        `json:"buttons,omitempty"`
	Cards          []events.Card          `json:"cards,omitempty"`
}

type textAction struct {
	Text string `json:"text"`
}

// speechAction marks that pre-rendered voice data exists for this message; the
// data itself is fetched through a separate call.
type speechAction struct {
	HasVoice bool `json:"hasVoice"`
}

type createRoomRequest struct {
	LocationID string `json:"locationId"`
	EndUserID  string `json:"endUserId"`
}

type sendMessageRequest struct {
	EndUserID string        `json:"endUserId"`
	Action    MessageAction `json:"action"`
}

// TextMessageAction builds the action for a plain text turn.
func TextMessageAction(text string) MessageAction {
	return MessageAction{Text: &textAction{Text: text}}
}

// NamedMessageAction builds the action for a named action turn.
func NamedMessageAction(name, value string) MessageAction {
	return MessageAction{NamedAction: &events.NamedAction{Name: name, Value: value}}
}

// Payload normalizes the wire action into the domain payload.
func (a MessageAction) Payload() events.ActionPayload {
	return events.ActionPayload{
		Buttons:        a.Buttons,
		Cards:          a.Cards,
		NamedAction:    a.NamedAction,
		BehaviorAction: a.BehaviorAction,
		CustomAction:   a.CustomAction,
		UIAction:       a.UIAction,
		Signal:         a.Signal,
		EngineEvent:    a.EngineEvent,
	}
}

// Text returns the plain text of the action, empty when absent.
func (a MessageAction) PlainText() string {
	if a.Text == nil {
		return ""
	}
	return a.Text.Text
}
