package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/VirbeHQ/being-core/core/capability"
	"github.com/VirbeHQ/being-core/core/conversations"
	"github.com/VirbeHQ/being-core/core/events"
	"github.com/VirbeHQ/being-core/core/room"
	"github.com/VirbeHQ/being-core/core/synthesis"
	"github.com/gorilla/websocket"
)

const defaultSendInterval = 20 * time.Millisecond

// Synthesizer resolves agent text into speech audio plus timing marks.
type Synthesizer interface {
	Process(ctx context.Context, text string, correlationID string) (*synthesis.Result, error)
}

// Handler is the persistent bidirectional socket transport. It carries
// conversation turns and live speech-recognition events, owns the
// pending-turn queue that restores arrival order across asynchronous
// synthesis completions, and drains outbound recorded-audio chunks through a
// dedicated send loop.
//
// Reconnection is not automatic: a disconnect cancels the audio-sending loop
// and is logged, and the handler stays down until re-prepared.
type Handler struct {
	descriptor  capability.Descriptor
	correlator  *conversations.Correlator
	emit        func(events.Event)
	synthesizer Synthesizer

	dialer *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	queue  *pendingTurnQueue
	chunks *chunkQueue

	session *conversations.Session

	// connCancel covers the connection lifetime; sendCancel covers one run of
	// the audio-sending loop and is renewed each time streaming starts.
	// Cancelled tokens are never reused.
	connCancel context.CancelFunc
	sendMu     sync.Mutex
	sendCancel context.CancelFunc

	baseCtx context.Context

	resolveTimeout time.Duration
	sendInterval   time.Duration
	initialized    bool
}

type HandlerOption func(*Handler)

// WithResolveTimeout bounds how long an agent turn may wait for its synthesis
// response before being evicted from the pending-turn queue.
func WithResolveTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) { h.resolveTimeout = timeout }
}

func WithSendInterval(interval time.Duration) HandlerOption {
	return func(h *Handler) { h.sendInterval = interval }
}

func WithDialer(dialer *websocket.Dialer) HandlerOption {
	return func(h *Handler) { h.dialer = dialer }
}

func NewHandler(descriptor capability.Descriptor, correlator *conversations.Correlator, emit func(events.Event), synthesizer Synthesizer, opts ...HandlerOption) *Handler {
	h := &Handler{
		descriptor:   descriptor,
		correlator:   correlator,
		emit:         emit,
		synthesizer:  synthesizer,
		dialer:       websocket.DefaultDialer,
		chunks:       newChunkQueue(),
		sendInterval: defaultSendInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.queue = newPendingTurnQueue(func(turn events.Turn, speech *synthesis.Result) {
		h.emit(events.NewAgentTurn(turn, speech))
	}, h.resolveTimeout)
	return h
}

func (h *Handler) Capabilities() capability.Set { return h.descriptor.Capabilities }

// Prepare connects the socket, announces the session, and starts the read
// loop. The socket outlives the prepare call; its lifetime is bounded by
// Dispose or a read failure.
func (h *Handler) Prepare(ctx context.Context, session *conversations.Session) error {
	header := http.Header{}
	if h.descriptor.Credential != "" {
		header.Set("X-Api-Key", h.descriptor.Credential)
	}

	conn, _, err := h.dialer.DialContext(ctx, h.descriptor.Path, header)
	if err != nil {
		return fmt.Errorf("failed to open socket connection: %w", err)
	}

	h.session = session

	connCtx, cancel := context.WithCancel(context.Background())
	h.baseCtx = connCtx
	h.connCancel = cancel

	h.connMu.Lock()
	h.conn = conn
	h.connMu.Unlock()

	if err := h.writeEnvelope(eventConversationInit, initPayload{
		EndUserID:      session.EndUserID(),
		ConversationID: session.ConversationID(),
	}); err != nil {
		cancel()
		conn.Close()
		return fmt.Errorf("failed to announce session: %w", err)
	}

	h.initialized = true
	go h.readLoop(connCtx, conn)

	return nil
}

func (h *Handler) writeEnvelope(name string, payload any) error {
	env, err := newEnvelope(name, payload)
	if err != nil {
		return err
	}

	h.connMu.Lock()
	defer h.connMu.Unlock()

	if h.conn == nil {
		return fmt.Errorf("socket not connected")
	}
	if err := h.conn.WriteJSON(env); err != nil {
		return fmt.Errorf("failed to write to socket: %w", err)
	}
	return nil
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				log.Println("Failed to read stream socket message", "error", err)
			}

			// Disconnection cancels the audio-sending loop; reconnection is
			// the caller's decision.
			h.stopSendLoop()
			h.connMu.Lock()
			h.conn = nil
			h.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		// Events are processed inline: arrival order assigns the sequence
		// numbers the reassembly queue is keyed on.
		h.processEvent(ctx, msg)
	}
}

func (h *Handler) processEvent(ctx context.Context, msg []byte) {
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		log.Println("Failed to unmarshal stream socket message", "error", err)
		return
	}

	switch env.Name {
	case eventConversationInit:
		var payload struct {
			ConversationID string `json:"conversationId"`
		}
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Println("Failed to unmarshal conversation-init payload", "error", err)
			return
		}
		if payload.ConversationID != "" {
			h.session.AssignConversation(payload.ConversationID)
		}

	case eventConversationMessage:
		h.processConversationMessage(ctx, env.Payload)

	case eventSpeechRecognized:
		var payload speechRecognizedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.Println("Failed to unmarshal speech-recognized payload", "error", err)
			return
		}
		if !payload.IsFinal {
			h.emit(events.NewUserTranscriptInterim(payload.Chunk, payload.Language))
			return
		}
		if payload.Chunk == "" {
			return
		}
		h.emit(events.NewUserTurn(events.Turn{
			Role: events.RoleEndUser,
			Text: payload.Chunk,
			Seq:  h.correlator.NextSeq(),
		}))

	case eventSpeechStart:
		h.emit(events.NewUserSpeechStarted())

	case eventSpeechEnd:
		h.emit(events.NewUserSpeechEnded())

	case eventState:
		var payload statePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return
		}
		h.emit(events.NewEngineStateChanged(payload.State))

	case eventConversationError:
		var payload errorPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return
		}
		h.emit(events.NewEngineErrorReceived(payload.Code, payload.Message))
	}
}

func (h *Handler) processConversationMessage(ctx context.Context, payload json.RawMessage) {
	message := parseConversationMessage(payload)
	if message == nil {
		return
	}

	correlationID := message.ID
	if correlationID == "" {
		correlationID = h.correlator.NewCorrelationID()
	}

	turn := events.Turn{
		Text:          message.Action.PlainText(),
		Payload:       message.Action.Payload(),
		CorrelationID: correlationID,
		Seq:           h.correlator.NextSeq(),
	}

	if message.ParticipantType == room.ParticipantEndUser {
		turn.Role = events.RoleEndUser
		h.emit(events.NewUserTurn(turn))
		return
	}

	turn.Role = events.RoleAgent
	if turn.Text == "" {
		// Nothing to synthesize; keep the turn in line behind earlier ones.
		h.queue.PushResolved(turn, nil)
		return
	}

	h.queue.Push(turn)

	// Fire-and-forget relative to the read loop; the queue reassembles
	// completions whatever order they resolve in.
	go func() {
		result, err := h.synthesizer.Process(ctx, turn.Text, turn.CorrelationID)
		if err != nil {
			logger.WarnContext(ctx, "synthesis failed for pending turn",
				"correlation_id", turn.CorrelationID, "error", err)
			h.queue.Fail(turn.CorrelationID)
			return
		}
		h.queue.Resolve(turn.CorrelationID, result)
	}()
}

// Handle dispatches one outbound intent over the socket. Intents outside the
// declared capability mask are ignored.
func (h *Handler) Handle(ctx context.Context, intent conversations.Intent) error {
	if !h.initialized || !h.descriptor.Capabilities.Has(intent.Capability) {
		return nil
	}

	switch intent.Capability {
	case capability.Text:
		return h.writeEnvelope(eventConversationMessage, outboundMessagePayload{
			EndUserID: h.session.EndUserID(),
			Action:    room.TextMessageAction(intent.Text),
		})

	case capability.NamedAction:
		return h.writeEnvelope(eventConversationMessage, outboundMessagePayload{
			EndUserID: h.session.EndUserID(),
			Action:    room.NamedMessageAction(intent.Name, intent.Value),
		})

	case capability.Audio:
		if err := h.writeEnvelope(eventSpeechStart, struct{}{}); err != nil {
			return err
		}
		if err := h.writeEnvelope(eventSpeechAudio, speechAudioPayload{Chunk: intent.Audio}); err != nil {
			return err
		}
		return h.writeEnvelope(eventSpeechEnd, struct{}{})

	case capability.AudioStream:
		h.ensureSendLoop()
		h.chunks.Enqueue(intent.Chunk)
		return nil
	}

	return nil
}

// ensureSendLoop starts the outbound audio loop with a fresh cancellation
// token if it is not already running.
func (h *Handler) ensureSendLoop() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()

	if h.sendCancel != nil {
		return
	}

	if err := h.writeEnvelope(eventSpeechStart, struct{}{}); err != nil {
		logger.Warn("failed to announce speech start", "error", err)
	}

	sendCtx, cancel := context.WithCancel(h.baseCtx)
	h.sendCancel = cancel
	go h.sendLoop(sendCtx)
}

// StopStreaming ends the outbound audio stream: the send loop is cancelled
// and a speech-end marker is written. Starting a new stream constructs a
// fresh token.
func (h *Handler) StopStreaming() {
	h.stopSendLoop()
	if err := h.writeEnvelope(eventSpeechEnd, struct{}{}); err != nil {
		logger.Warn("failed to announce speech end", "error", err)
	}
}

func (h *Handler) stopSendLoop() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if h.sendCancel != nil {
		h.sendCancel()
		h.sendCancel = nil
	}
}

// sendLoop drains one chunk at a time, sleeping a short fixed interval when
// the queue is empty, until its token is cancelled.
func (h *Handler) sendLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		chunk, ok := h.chunks.Dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(h.sendInterval):
			}
			continue
		}

		if err := h.writeEnvelope(eventSpeechAudio, speechAudioPayload{Chunk: chunk}); err != nil {
			logger.Warn("failed to send audio chunk", "error", err)
		}
	}
}

// Dispose cancels both loops and releases the socket. Safe to call multiple
// times.
func (h *Handler) Dispose() error {
	h.stopSendLoop()

	if h.connCancel != nil {
		h.connCancel()
		h.connCancel = nil
	}

	h.connMu.Lock()
	conn := h.conn
	h.conn = nil
	h.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}

	if h.queue != nil {
		h.queue.Clear()
	}
	h.chunks.Clear()
	h.initialized = false
	return nil
}

// chunkQueue is the thread-safe FIFO for outbound recorded-audio chunks. The
// I/O context enqueues; only the send loop drains.
type chunkQueue struct {
	mu     sync.Mutex
	chunks [][]byte
}

func newChunkQueue() *chunkQueue { return &chunkQueue{} }

func (q *chunkQueue) Enqueue(chunk []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = append(q.chunks, chunk)
}

func (q *chunkQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.chunks) == 0 {
		return nil, false
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, true
}

func (q *chunkQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = nil
}
