// Package conversations holds the session identity and correlation primitives
// shared by the orchestrator and its transport handlers.
package conversations

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

// Session is the identity tuple for one conversation attempt. The end-user id
// is stable; the conversation id is nil until a backend assigns one and is
// cleared again when the conversation ends.
type Session struct {
	mu sync.Mutex

	endUserID      string
	conversationID *string
}

func NewSession(endUserID string, conversationID *string) *Session {
	return &Session{endUserID: endUserID, conversationID: conversationID}
}

func (s *Session) EndUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endUserID
}

// ConversationID returns the assigned conversation id, or nil before the
// first turn-store or stream acknowledgement assigns one.
func (s *Session) ConversationID() *string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversationID == nil {
		return nil
	}
	id := *s.conversationID
	return &id
}

// AssignConversation records the conversation id handed out by a backend.
func (s *Session) AssignConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = &conversationID
}

// End clears the conversation id; the end-user id survives the session.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversationID = nil
}

// SessionSnapshot is a point-in-time copy of session identity.
type SessionSnapshot struct {
	EndUserID      string
	ConversationID *string
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snapshot SessionSnapshot
	copier.CopyWithOption(&snapshot, &struct {
		EndUserID      string
		ConversationID *string
	}{EndUserID: s.endUserID, ConversationID: s.conversationID}, copier.Option{DeepCopy: true})
	return snapshot
}

// NewEndUserID generates a stable random identifier for an anonymous end
// user.
func NewEndUserID() string { return uuid.NewString() }
