package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VirbeHQ/being-core/core/capability"
	"github.com/VirbeHQ/being-core/core/conversations"
	"github.com/VirbeHQ/being-core/core/events"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	t *testing.T

	room         Room
	messages     []Message // newest-first, as the store serves them
	messageCalls atomic.Int32
	voiceCalls   atomic.Int32
}

func (s *fakeStore) server() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rooms", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&body))
		require.NotEmpty(s.t, body["endUserId"])
		json.NewEncoder(w).Encode(s.room)
	})
	mux.HandleFunc("GET /rooms/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(s.room)
	})
	mux.HandleFunc("GET /rooms/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		s.messageCalls.Add(1)
		json.NewEncoder(w).Encode(messagesResponse{Count: len(s.messages), Results: s.messages})
	})
	mux.HandleFunc("GET /rooms/{id}/messages/{mid}/voice", func(w http.ResponseWriter, r *http.Request) {
		s.voiceCalls.Add(1)
		w.Write([]byte(`{"marks":[{"time":0,"type":"viseme","value":"sil"}],"speech":[1,2],"audioParameters":{"sampleRate":16000}}`))
	})
	mux.HandleFunc("POST /rooms/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	return httptest.NewServer(mux)
}

func newTestHandler(t *testing.T, store *fakeStore, emit func(events.Event)) (*Handler, *conversations.Session) {
	server := store.server()
	t.Cleanup(server.Close)

	descriptor := capability.Descriptor{
		Protocol:     capability.ProtocolPollingHTTP,
		Capabilities: capability.NewSet(capability.Text, capability.NamedAction),
		Path:         server.URL,
		LocationID:   "loc-1",
	}
	handler := NewHandler(descriptor, conversations.NewCorrelator(), emit,
		WithPollInterval(time.Hour)) // cycles driven manually in tests

	session := conversations.NewSession("user-1", nil)
	require.NoError(t, handler.Prepare(context.Background(), session))
	t.Cleanup(func() { handler.Dispose() })

	return handler, session
}

func turnMessage(id string, participant ParticipantType, text string, createdAt time.Time) Message {
	return Message{
		ID:              id,
		ParticipantType: participant,
		Action:          MessageAction{Text: &textAction{Text: text}},
		CreatedAt:       createdAt,
		ModifiedAt:      createdAt,
	}
}

func TestPrepareCreatesRoomAndAssignsConversation(t *testing.T) {
	store := &fakeStore{t: t, room: Room{ID: "room-1", ModifiedAt: time.Now()}}
	_, session := newTestHandler(t, store, func(events.Event) {})

	conversationID := session.ConversationID()
	require.NotNil(t, conversationID)
	require.Equal(t, "room-1", *conversationID)
}

func TestPollProcessesNewestFirstResultsInChronologicalOrder(t *testing.T) {
	base := time.Now()
	store := &fakeStore{t: t, room: Room{ID: "room-1", ModifiedAt: base}}
	store.messages = []Message{
		turnMessage("T3", ParticipantEndUser, "third", base.Add(3*time.Second)),
		turnMessage("T2", ParticipantEndUser, "second", base.Add(2*time.Second)),
		turnMessage("T1", ParticipantEndUser, "first", base.Add(time.Second)),
	}

	var emitted []string
	handler, _ := newTestHandler(t, store, func(e events.Event) {
		if userTurn, ok := e.(events.UserTurn); ok {
			emitted = append(emitted, userTurn.Turn.Text)
		}
	})

	handler.pollOnce(context.Background())
	require.Equal(t, []string{"first", "second", "third"}, emitted)
}

func TestPollSkipsCycleWhenStoreNotModified(t *testing.T) {
	store := &fakeStore{t: t, room: Room{ID: "room-1", ModifiedAt: time.Now()}}
	handler, _ := newTestHandler(t, store, func(events.Event) {})

	handler.pollOnce(context.Background())
	handler.pollOnce(context.Background())

	require.Equal(t, int32(1), store.messageCalls.Load(),
		"second cycle must skip without fetching messages")
}

func TestAgentTurnsAreMaterializedWithVoiceData(t *testing.T) {
	base := time.Now()
	store := &fakeStore{t: t, room: Room{ID: "room-1", ModifiedAt: base}}
	store.messages = []Message{turnMessage("A1", ParticipantAPI, "hello there", base)}

	var agentTurns []events.AgentTurn
	handler, _ := newTestHandler(t, store, func(e events.Event) {
		if agentTurn, ok := e.(events.AgentTurn); ok {
			agentTurns = append(agentTurns, agentTurn)
		}
	})

	handler.pollOnce(context.Background())

	require.Len(t, agentTurns, 1)
	require.Equal(t, int32(1), store.voiceCalls.Load())
	require.Equal(t, events.RoleAgent, agentTurns[0].Turn.Role)
	require.NotNil(t, agentTurns[0].Speech)
	require.Equal(t, []byte{1, 2}, agentTurns[0].Speech.Audio)
}

func TestSequenceNumbersFollowEmissionOrder(t *testing.T) {
	base := time.Now()
	store := &fakeStore{t: t, room: Room{ID: "room-1", ModifiedAt: base}}
	store.messages = []Message{
		turnMessage("T2", ParticipantEndUser, "b", base.Add(2*time.Second)),
		turnMessage("T1", ParticipantEndUser, "a", base.Add(time.Second)),
	}

	var seqs []uint64
	handler, _ := newTestHandler(t, store, func(e events.Event) {
		if userTurn, ok := e.(events.UserTurn); ok {
			seqs = append(seqs, userTurn.Turn.Seq)
		}
	})

	handler.pollOnce(context.Background())
	require.Len(t, seqs, 2)
	require.Less(t, seqs[0], seqs[1])
}

func TestHandleIgnoresIntentsOutsideCapabilityMask(t *testing.T) {
	store := &fakeStore{t: t, room: Room{ID: "room-1", ModifiedAt: time.Now()}}
	handler, _ := newTestHandler(t, store, func(events.Event) {})

	require.NoError(t, handler.Handle(context.Background(), conversations.SendAudio([]byte{1})))
	require.NoError(t, handler.Handle(context.Background(), conversations.SendText("hi")))
}

func TestDisposeIsIdempotent(t *testing.T) {
	store := &fakeStore{t: t, room: Room{ID: "room-1", ModifiedAt: time.Now()}}
	handler, _ := newTestHandler(t, store, func(events.Event) {})

	require.NoError(t, handler.Dispose())
	require.NoError(t, handler.Dispose())
}
