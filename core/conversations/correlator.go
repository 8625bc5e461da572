package conversations

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Correlator hands out arrival sequence numbers and correlation ids. One
// correlator is shared by every handler the orchestrator constructs, so
// sequence numbers are a total order over all inbound turns of the session.
type Correlator struct {
	seq atomic.Uint64
}

func NewCorrelator() *Correlator { return &Correlator{} }

// NextSeq returns the next arrival sequence number. Sequence numbers start at
// 1; zero means unassigned.
func (c *Correlator) NextSeq() uint64 { return c.seq.Add(1) }

// NewCorrelationID returns a fresh id linking a synthesis request to its
// eventual response and to the originating turn.
func (c *Correlator) NewCorrelationID() string { return uuid.NewString() }
