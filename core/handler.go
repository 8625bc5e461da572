package orchestration

import (
	"context"

	"github.com/VirbeHQ/being-core/core/capability"
	"github.com/VirbeHQ/being-core/core/conversations"
)

// Handler is the shared transport contract. The orchestrator owns a tagged
// list of handlers and filters dispatch by capability mask; a handler accepts
// an intent iff its declared mask includes the intent's capability flag.
type Handler interface {
	// Prepare brings the handler into a ready state for the session:
	// connecting sockets, creating turn-store resources, starting read
	// loops. A Prepare failure aborts the whole initialization.
	Prepare(ctx context.Context, session *conversations.Session) error

	// Capabilities reports the payload kinds this handler accepts.
	Capabilities() capability.Set

	// Handle delivers one outbound intent. Handlers whose mask does not
	// include the intent's capability must treat the call as a no-op.
	Handle(ctx context.Context, intent conversations.Intent) error

	// Dispose releases the handler's resources. Must be idempotent.
	Dispose() error
}

// streamCloser is implemented by handlers that run an outbound audio send
// loop which must be told when a recorded-audio stream ends.
type streamCloser interface {
	StopStreaming()
}
