package room

import (
	"context"
	"fmt"
	"time"

	"github.com/VirbeHQ/being-core/core/capability"
	"github.com/VirbeHQ/being-core/core/conversations"
	"github.com/VirbeHQ/being-core/core/events"
)

const defaultPollInterval = 500 * time.Millisecond

// Handler is the polling transport: an HTTP request/response loop against a
// turn-based message store. It creates the store lazily on prepare, polls it
// on a fixed interval, and emits normalized turns oldest-first.
type Handler struct {
	client     *Client
	descriptor capability.Descriptor
	correlator *conversations.Correlator
	emit       func(events.Event)

	pollInterval time.Duration

	session *conversations.Session
	cancel  context.CancelFunc

	// lastSeen is the newest server creation timestamp processed so far.
	lastSeen time.Time
	// lastModified is the store modification timestamp at the last successful
	// fetch; an unchanged value is treated as a stale-protocol skip.
	lastModified time.Time

	initialized bool
}

type HandlerOption func(*Handler)

func WithPollInterval(interval time.Duration) HandlerOption {
	return func(h *Handler) { h.pollInterval = interval }
}

func WithClient(client *Client) HandlerOption {
	return func(h *Handler) { h.client = client }
}

func NewHandler(descriptor capability.Descriptor, correlator *conversations.Correlator, emit func(events.Event), opts ...HandlerOption) *Handler {
	h := &Handler{
		client:       NewClient(descriptor.Path, descriptor.Credential, descriptor.LocationID),
		descriptor:   descriptor,
		correlator:   correlator,
		emit:         emit,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Capabilities() capability.Set { return h.descriptor.Capabilities }

// Prepare creates the turn-store resource when the session has no
// conversation id yet, records the assigned id, and starts the poll loop.
// Creation is not retried; a failed call leaves the handler unprepared and
// must be retried by the caller.
func (h *Handler) Prepare(ctx context.Context, session *conversations.Session) error {
	if conversationID := session.ConversationID(); conversationID == nil {
		room, err := h.client.CreateRoom(ctx, session.EndUserID())
		if err != nil {
			return fmt.Errorf("failed to prepare room handler: %w", err)
		}
		session.AssignConversation(room.ID)
	}

	h.session = session

	loopCtx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.initialized = true
	go h.pollLoop(loopCtx)

	return nil
}

// Handle stores outbound intents in the room. Intents outside the declared
// capability mask are ignored.
func (h *Handler) Handle(ctx context.Context, intent conversations.Intent) error {
	if !h.initialized || !h.descriptor.Capabilities.Has(intent.Capability) {
		return nil
	}

	roomID := h.session.ConversationID()
	if roomID == nil {
		return fmt.Errorf("no room assigned to session")
	}

	var action MessageAction
	switch intent.Capability {
	case capability.Text:
		action.Text = &textAction{Text: intent.Text}
	case capability.NamedAction:
		action.NamedAction = &events.NamedAction{Name: intent.Name, Value: intent.Value}
	default:
		return nil
	}

	return h.client.SendMessage(ctx, *roomID, h.session.EndUserID(), action)
}

// Dispose stops the poll loop. Safe to call multiple times.
func (h *Handler) Dispose() error {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.initialized = false
	return nil
}

func (h *Handler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.pollOnce(ctx)
		}
	}
}

// pollOnce runs one fetch cycle. Individual fetch failures are logged and the
// loop continues to the next interval; nothing here terminates polling except
// cancellation.
func (h *Handler) pollOnce(ctx context.Context) {
	roomID := h.session.ConversationID()
	if roomID == nil {
		return
	}

	room, err := h.client.Room(ctx, *roomID)
	if err != nil {
		if ctx.Err() == nil {
			logger.WarnContext(ctx, "room fetch failed", "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	if !room.ModifiedAt.After(h.lastModified) {
		// Unchanged modification timestamp: stale-protocol condition, skip.
		logger.DebugContext(ctx, "room not modified since last fetch, skipping cycle",
			"modified_at", room.ModifiedAt)
		return
	}

	_, results, err := h.client.Messages(ctx, *roomID, h.lastSeen)
	if err != nil {
		if ctx.Err() == nil {
			logger.WarnContext(ctx, "messages fetch failed", "error", err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	h.lastModified = room.ModifiedAt
	if len(results) == 0 {
		return
	}

	// Results arrive newest-first; reverse so turns are emitted oldest-first.
	for i := len(results) - 1; i >= 0; i-- {
		h.processMessage(ctx, *roomID, results[i])
		if ctx.Err() != nil {
			return
		}
	}
}

func (h *Handler) processMessage(ctx context.Context, roomID string, message Message) {
	if message.CreatedAt.After(h.lastSeen) {
		h.lastSeen = message.CreatedAt
	}

	turn := events.Turn{
		Text:          message.Action.PlainText(),
		Payload:       message.Action.Payload(),
		CorrelationID: message.ID,
		Seq:           h.correlator.NextSeq(),
	}

	switch message.ParticipantType {
	case ParticipantEndUser:
		turn.Role = events.RoleEndUser
		h.emit(events.NewUserTurn(turn))

	default:
		// Agent and operator turns are materialized with their pre-rendered
		// voice data before emission.
		turn.Role = events.RoleAgent
		speech, err := h.client.VoiceData(ctx, roomID, message.ID)
		if err != nil {
			logger.WarnContext(ctx, "voice data fetch failed",
				"message_id", message.ID, "error", err)
			speech = nil
		}
		if ctx.Err() != nil {
			return
		}
		h.emit(events.NewAgentTurn(turn, speech))
	}
}
