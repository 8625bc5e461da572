// Package deepgram provides an alternate recognition backend speaking the
// Deepgram listen websocket. It satisfies the same handler contract as the
// engine recognition socket, so a profile can swap it in for local
// speech-to-text without touching the orchestrator.
package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"

	"github.com/VirbeHQ/being-core/core/capability"
	"github.com/VirbeHQ/being-core/core/conversations"
	"github.com/VirbeHQ/being-core/core/events"
	"github.com/VirbeHQ/being-core/core/recognition"
)

const defaultListenURL = "wss://api.deepgram.com/v1/listen"

// Handler streams recorded audio to Deepgram and forwards recognized text as
// outbound text-send requests, the same contract the engine recognition
// socket fulfills.
type Handler struct {
	descriptor capability.Descriptor
	emit       func(events.Event)
	sendText   recognition.SendText

	sampleRate int
	encoding   string
	language   string
	model      string

	connMu sync.Mutex
	conn   *websocket.Conn

	// accMu guards the transcript accumulator; the read loop and Dispose can
	// both reach flush.
	accMu          sync.Mutex
	accumulated    string
	unendedSegment bool

	connCancel  context.CancelFunc
	lastMsgTs   time.Time
	initialized bool
}

type HandlerOption func(*Handler)

func WithEncoding(encoding string, sampleRate int) HandlerOption {
	return func(h *Handler) {
		h.encoding = encoding
		h.sampleRate = sampleRate
	}
}

func WithLanguage(language string) HandlerOption {
	return func(h *Handler) { h.language = language }
}

func WithModel(model string) HandlerOption {
	return func(h *Handler) { h.model = model }
}

func NewHandler(descriptor capability.Descriptor, emit func(events.Event), sendText recognition.SendText, opts ...HandlerOption) *Handler {
	h := &Handler{
		descriptor: descriptor,
		emit:       emit,
		sendText:   sendText,
		sampleRate: 16000,
		encoding:   "linear16",
		language:   "en-US",
		model:      "nova-3",
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Capabilities() capability.Set { return h.descriptor.Capabilities }

func (h *Handler) Prepare(ctx context.Context, _ *conversations.Session) error {
	apiKey := h.descriptor.Credential
	if apiKey == "" {
		var ok bool
		apiKey, ok = os.LookupEnv("DEEPGRAM_API_KEY")
		if !ok {
			return fmt.Errorf("deepgram api key not found")
		}
	}

	listenURL := h.descriptor.Path
	if listenURL == "" {
		listenURL = defaultListenURL
	}
	parsed, err := url.Parse(listenURL)
	if err != nil {
		return fmt.Errorf("invalid listen url: %w", err)
	}

	queryParams := parsed.Query()
	queryParams.Set("encoding", h.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(h.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", h.model)
	queryParams.Set("language", h.language)
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	parsed.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, parsed.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	h.connCancel = cancel

	h.connMu.Lock()
	h.conn = conn
	h.connMu.Unlock()

	h.initialized = true
	go h.readLoop(connCtx, conn)

	return nil
}

func (h *Handler) Handle(ctx context.Context, intent conversations.Intent) error {
	if !h.initialized || !h.descriptor.Capabilities.Has(intent.Capability) {
		return nil
	}

	switch intent.Capability {
	case capability.Audio:
		return h.sendAudio(intent.Audio)
	case capability.AudioStream:
		return h.sendAudio(intent.Chunk)
	}
	return nil
}

func (h *Handler) sendAudio(audio []byte) error {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	if h.conn == nil {
		return fmt.Errorf("deepgram socket not connected")
	}
	h.lastMsgTs = time.Now()
	if err := h.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn) {
	keepAliveCtx, keepAliveCancel := context.WithCancel(ctx)
	defer keepAliveCancel()
	go h.keepAlive(keepAliveCtx)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				log.Println("Failed to read deepgram websocket message", "error", err)
			}

			h.connMu.Lock()
			h.conn = nil
			h.connMu.Unlock()
			conn.Close()
			h.flush(ctx)
			return
		}
		if msgType != websocket.BinaryMessage {
			h.processMessage(msg)
		}
	}
}

func (h *Handler) processMessage(msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		log.Println("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}
		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		if transcript == "" {
			return
		}

		if !msgResp.IsFinal {
			h.accMu.Lock()
			interim := h.joinedLocked(transcript)
			h.accMu.Unlock()
			h.emit(events.NewUserTranscriptInterim(interim, h.language))
			return
		}

		h.accMu.Lock()
		h.accumulated = h.joinedLocked(transcript)
		h.accMu.Unlock()
		if msgResp.SpeechFinal {
			h.onSpeechEnded()
		}

	case api.TypeUtteranceEndResponse:
		h.accMu.Lock()
		unended := h.unendedSegment
		h.accMu.Unlock()
		if unended {
			h.onSpeechEnded()
		}

	case api.TypeSpeechStartedResponse:
		h.accMu.Lock()
		h.unendedSegment = true
		h.accMu.Unlock()
		h.emit(events.NewUserSpeechStarted())
	}
}

// joinedLocked appends the transcript to the accumulated text; callers hold
// accMu.
func (h *Handler) joinedLocked(transcript string) string {
	if h.accumulated == "" {
		return transcript
	}
	return h.accumulated + " " + transcript
}

func (h *Handler) onSpeechEnded() {
	h.accMu.Lock()
	h.unendedSegment = false
	h.accMu.Unlock()
	h.emit(events.NewUserSpeechEnded())
	h.flush(context.Background())
}

// flush takes and clears the accumulated transcript, then forwards it as a
// single text-send request. Concurrent flushes forward at most once.
func (h *Handler) flush(ctx context.Context) {
	h.accMu.Lock()
	transcript := strings.TrimSpace(h.accumulated)
	h.accumulated = ""
	h.accMu.Unlock()

	if transcript == "" || h.sendText == nil {
		return
	}
	if err := h.sendText(ctx, transcript); err != nil {
		log.Println("Failed to forward recognized text", "error", err)
	}
}

// keepAlive keeps the listen socket open across quiet periods.
func (h *Handler) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.connMu.Lock()
			if h.conn != nil && time.Since(h.lastMsgTs) > 5*time.Second {
				if err := h.conn.WriteJSON(struct {
					Type string `json:"type"`
				}{Type: "KeepAlive"}); err != nil {
					log.Println("Failed to write to deepgram client", "error", err)
				}
			}
			h.connMu.Unlock()
		}
	}
}

// Dispose closes the stream and releases the socket. Safe to call multiple
// times.
func (h *Handler) Dispose() error {
	h.connMu.Lock()
	conn := h.conn
	h.conn = nil
	h.connMu.Unlock()

	if conn != nil {
		_ = conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)})
		conn.Close()
	}

	if h.connCancel != nil {
		h.connCancel()
		h.connCancel = nil
	}

	h.flush(context.Background())
	h.initialized = false
	return nil
}
