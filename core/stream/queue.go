package stream

import (
	"sync"
	"time"

	"github.com/VirbeHQ/being-core/core/events"
	"github.com/VirbeHQ/being-core/core/synthesis"
)

const defaultResolveTimeout = 20 * time.Second

// pendingTurn is one queued agent turn awaiting its synthesis response.
type pendingTurn struct {
	turn     events.Turn
	speech   *synthesis.Result
	resolved bool
	failed   bool
	timer    *time.Timer
}

// pendingTurnQueue restores arrival order of agent turns despite out-of-order
// synthesis completion. Entries are ordered by arrival sequence number; an
// entry leaves the front only once its synthesis response is present, so a
// later-arriving turn whose synthesis completes first waits behind every turn
// that arrived before it.
//
// A synthesis failure, or a response that never arrives within the resolve
// timeout, marks the entry failed; failed entries are skipped during the
// drain so the head can never block emission forever.
type pendingTurnQueue struct {
	// emitMu serializes drains so materialized turns are emitted in queue
	// order even when resolutions race. Lock order: emitMu before mu.
	emitMu sync.Mutex
	mu     sync.Mutex

	entries        []*pendingTurn
	resolveTimeout time.Duration

	emit func(events.Turn, *synthesis.Result)
}

func newPendingTurnQueue(emit func(events.Turn, *synthesis.Result), resolveTimeout time.Duration) *pendingTurnQueue {
	if resolveTimeout <= 0 {
		resolveTimeout = defaultResolveTimeout
	}
	return &pendingTurnQueue{
		resolveTimeout: resolveTimeout,
		emit:           emit,
	}
}

// Push appends an agent turn awaiting synthesis and arms its eviction timer.
func (q *pendingTurnQueue) Push(turn events.Turn) {
	entry := &pendingTurn{turn: turn}

	correlationID := turn.CorrelationID
	entry.timer = time.AfterFunc(q.resolveTimeout, func() {
		logger.Warn("synthesis response never arrived, evicting pending turn",
			"correlation_id", correlationID)
		q.Fail(correlationID)
	})

	q.mu.Lock()
	q.entries = append(q.entries, entry)
	q.mu.Unlock()
}

// PushResolved appends a turn that needs no synthesis, keeping it in line
// behind turns that arrived earlier, then drains whatever became releasable.
func (q *pendingTurnQueue) PushResolved(turn events.Turn, speech *synthesis.Result) {
	q.mu.Lock()
	q.entries = append(q.entries, &pendingTurn{turn: turn, speech: speech, resolved: true})
	q.mu.Unlock()

	q.drain()
}

// Resolve attaches a synthesis response to the matching entry, wherever it
// sits in the queue, then emits every turn that became releasable at the
// front.
func (q *pendingTurnQueue) Resolve(correlationID string, speech *synthesis.Result) {
	q.mu.Lock()
	for _, entry := range q.entries {
		if entry.turn.CorrelationID == correlationID && !entry.resolved && !entry.failed {
			entry.speech = speech
			entry.resolved = true
			if entry.timer != nil {
				entry.timer.Stop()
			}
			break
		}
	}
	q.mu.Unlock()

	q.drain()
}

// Fail marks the matching entry as permanently unresolvable; the drain skips
// it without emitting.
func (q *pendingTurnQueue) Fail(correlationID string) {
	q.mu.Lock()
	for _, entry := range q.entries {
		if entry.turn.CorrelationID == correlationID && !entry.resolved && !entry.failed {
			entry.failed = true
			if entry.timer != nil {
				entry.timer.Stop()
			}
			break
		}
	}
	q.mu.Unlock()

	q.drain()
}

// drain repeatedly pops the front while it is resolved or failed, emitting
// resolved turns in arrival order. It stops at the first entry still awaiting
// its response.
func (q *pendingTurnQueue) drain() {
	q.emitMu.Lock()
	defer q.emitMu.Unlock()

	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.mu.Unlock()
			return
		}
		front := q.entries[0]
		if !front.resolved && !front.failed {
			q.mu.Unlock()
			return
		}
		q.entries = q.entries[1:]
		q.mu.Unlock()

		if front.failed {
			continue
		}
		q.emit(front.turn, front.speech)
	}
}

// Len reports the number of turns still awaiting emission.
func (q *pendingTurnQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Clear drops every pending entry and stops their timers.
func (q *pendingTurnQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, entry := range q.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	q.entries = nil
}
