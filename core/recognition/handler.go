// Package recognition implements the dedicated speech-recognition socket:
// recorded audio streams out, recognized text streams back. The handler never
// participates in turn reassembly; it exists only when no other configured
// backend declares audio support.
package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/VirbeHQ/being-core/core/capability"
	"github.com/VirbeHQ/being-core/core/conversations"
	"github.com/VirbeHQ/being-core/core/events"
	"github.com/gorilla/websocket"
)

const (
	defaultSendInterval = 20 * time.Millisecond
	// disposeGrace gives the read loop a moment to deliver trailing
	// recognition results before the accumulated text is flushed.
	disposeGrace = 100 * time.Millisecond
)

// SendText forwards recognized text as an outbound text-send request.
type SendText func(ctx context.Context, text string) error

type recognizedPayload struct {
	Chunk    string `json:"chunk"`
	Language string `json:"language"`
	IsFinal  bool   `json:"isFinal"`
}

// Handler streams captured audio to a speech-recognition backend over its own
// persistent socket and accumulates interim results. On socket close the
// accumulated text, if any, is flushed as a single text-send request.
type Handler struct {
	descriptor capability.Descriptor
	emit       func(events.Event)
	sendText   SendText

	dialer *websocket.Dialer

	connMu sync.Mutex
	conn   *websocket.Conn

	// accumulator is append-only between flushes.
	accMu       sync.Mutex
	accumulated string

	chunks sendQueue

	connCancel context.CancelFunc
	sendMu     sync.Mutex
	sendCancel context.CancelFunc
	baseCtx    context.Context

	sendInterval time.Duration
	initialized  bool
}

type HandlerOption func(*Handler)

func WithSendInterval(interval time.Duration) HandlerOption {
	return func(h *Handler) { h.sendInterval = interval }
}

func WithDialer(dialer *websocket.Dialer) HandlerOption {
	return func(h *Handler) { h.dialer = dialer }
}

func NewHandler(descriptor capability.Descriptor, emit func(events.Event), sendText SendText, opts ...HandlerOption) *Handler {
	h := &Handler{
		descriptor:   descriptor,
		emit:         emit,
		sendText:     sendText,
		dialer:       websocket.DefaultDialer,
		sendInterval: defaultSendInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Capabilities() capability.Set { return h.descriptor.Capabilities }

func (h *Handler) Prepare(ctx context.Context, _ *conversations.Session) error {
	header := http.Header{}
	if h.descriptor.Credential != "" {
		header.Set("X-Api-Key", h.descriptor.Credential)
	}

	conn, _, err := h.dialer.DialContext(ctx, h.descriptor.Path, header)
	if err != nil {
		return fmt.Errorf("failed to open recognition socket: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	h.baseCtx = connCtx
	h.connCancel = cancel

	h.connMu.Lock()
	h.conn = conn
	h.connMu.Unlock()

	h.initialized = true
	go h.readLoop(connCtx, conn)

	return nil
}

// Handle streams recorded audio. Whole-utterance audio is sent as one
// message; streamed chunks go through the send queue so the socket writer
// never runs on the caller's context.
func (h *Handler) Handle(ctx context.Context, intent conversations.Intent) error {
	if !h.initialized || !h.descriptor.Capabilities.Has(intent.Capability) {
		return nil
	}

	switch intent.Capability {
	case capability.Audio:
		return h.writeAudio(intent.Audio)
	case capability.AudioStream:
		h.ensureSendLoop()
		h.chunks.Enqueue(intent.Chunk)
	}
	return nil
}

func (h *Handler) writeAudio(audio []byte) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.conn == nil {
		return fmt.Errorf("recognition socket not connected")
	}
	if err := h.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to recognition socket: %w", err)
	}
	return nil
}

func (h *Handler) ensureSendLoop() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if h.sendCancel != nil {
		return
	}
	sendCtx, cancel := context.WithCancel(h.baseCtx)
	h.sendCancel = cancel
	go h.sendLoop(sendCtx)
}

// StopStreaming cancels the outbound send loop. Starting a new stream arms a
// fresh token.
func (h *Handler) StopStreaming() {
	h.stopSendLoop()
}

func (h *Handler) stopSendLoop() {
	h.sendMu.Lock()
	defer h.sendMu.Unlock()
	if h.sendCancel != nil {
		h.sendCancel()
		h.sendCancel = nil
	}
}

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
		if err := h.writeAudio(chunk); err != nil {
			logger.Warn("failed to send audio chunk", "error", err)
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				log.Println("Failed to read recognition socket message", "error", err)
			}

			h.stopSendLoop()
			h.connMu.Lock()
			h.conn = nil
			h.connMu.Unlock()
			conn.Close()

			h.flush(ctx)
			return
		}
		if msgType == websocket.BinaryMessage {
			continue
		}
		h.processMessage(ctx, msg)
	}
}

func (h *Handler) processMessage(_ context.Context, msg []byte) {
	var payload recognizedPayload
	if err := json.Unmarshal(msg, &payload); err != nil {
		log.Println("Failed to unmarshal recognition message", "error", err)
		return
	}

	if !payload.IsFinal {
		h.emit(events.NewUserTranscriptInterim(payload.Chunk, payload.Language))
		return
	}

	chunk := strings.TrimSpace(payload.Chunk)
	if chunk == "" {
		return
	}

	h.accMu.Lock()
	if h.accumulated == "" {
		h.accumulated = chunk
	} else {
		h.accumulated += " " + chunk
	}
	h.accMu.Unlock()
}

// flush sends the accumulated recognized text, if any, as a single text-send
// request and clears the accumulator.
func (h *Handler) flush(ctx context.Context) {
	h.accMu.Lock()
	text := strings.TrimSpace(h.accumulated)
	h.accumulated = ""
	h.accMu.Unlock()

	if text == "" || h.sendText == nil {
		return
	}
	if err := h.sendText(ctx, text); err != nil {
		logger.WarnContext(ctx, "failed to flush recognized text", "error", err)
	}
}

// Dispose cancels the loops, waits a short grace delay for trailing results,
// flushes accumulated text and releases the socket. Safe to call multiple
// times.
func (h *Handler) Dispose() error {
	h.stopSendLoop()

	h.connMu.Lock()
	conn := h.conn
	h.conn = nil
	h.connMu.Unlock()

	if conn != nil {
		time.Sleep(disposeGrace)
		conn.Close()
	}

	if h.connCancel != nil {
		h.connCancel()
		h.connCancel = nil
	}

	h.flush(context.Background())
	h.chunks.Clear()
	h.initialized = false
	return nil
}

// sendQueue is the thread-safe FIFO for outbound audio chunks.
type sendQueue struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (q *sendQueue) Enqueue(chunk []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = append(q.chunks, chunk)
}

func (q *sendQueue) Dequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.chunks) == 0 {
		return nil, false
	}
	chunk := q.chunks[0]
	q.chunks = q.chunks[1:]
	return chunk, true
}

func (q *sendQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.chunks = nil
}
