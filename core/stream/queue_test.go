package stream

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/VirbeHQ/being-core/core/events"
	"github.com/VirbeHQ/being-core/core/synthesis"
)

func agentTurn(correlationID string, seq uint64) events.Turn {
	return events.Turn{
		Role:          events.RoleAgent,
		Text:          "text " + correlationID,
		CorrelationID: correlationID,
		Seq:           seq,
	}
}

func speechFor(correlationID string) *synthesis.Result {
	return &synthesis.Result{CorrelationID: correlationID}
}

func TestReassemblyEmitsInArrivalOrder(t *testing.T) {
	var emitted []string
	q := newPendingTurnQueue(func(turn events.Turn, speech *synthesis.Result) {
		emitted = append(emitted, turn.CorrelationID)
	}, time.Minute)

	q.Push(agentTurn("A", 1))
	q.Push(agentTurn("B", 2))
	q.Push(agentTurn("C", 3))

	// Synthesis completes B, A, C.
	q.Resolve("B", speechFor("B"))
	if len(emitted) != 0 {
		t.Fatalf("expected no emission while the head is unresolved, got %v", emitted)
	}

	q.Resolve("A", speechFor("A"))
	q.Resolve("C", speechFor("C"))

	if fmt.Sprint(emitted) != "[A B C]" {
		t.Fatalf("expected emission order A,B,C, got %v", emitted)
	}
}

func TestReassemblyUnderArbitraryPermutations(t *testing.T) {
	const n = 16
	rng := rand.New(rand.NewSource(42))

	for trial := range 20 {
		var mu sync.Mutex
		var emitted []string
		q := newPendingTurnQueue(func(turn events.Turn, speech *synthesis.Result) {
			mu.Lock()
			emitted = append(emitted, turn.CorrelationID)
			mu.Unlock()
		}, time.Minute)

		ids := make([]string, n)
		for i := range n {
			ids[i] = fmt.Sprintf("turn-%d", i)
			q.Push(agentTurn(ids[i], uint64(i+1)))
		}

		order := rng.Perm(n)
		var wg sync.WaitGroup
		for _, i := range order {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				q.Resolve(id, speechFor(id))
			}(ids[i])
		}
		wg.Wait()

		mu.Lock()
		got := fmt.Sprint(emitted)
		mu.Unlock()
		if got != fmt.Sprint(ids) {
			t.Fatalf("trial %d: expected emission in arrival order %v, got %v", trial, ids, got)
		}
		if q.Len() != 0 {
			t.Fatalf("trial %d: expected empty queue, got %d entries", trial, q.Len())
		}
	}
}

func TestFailedSynthesisIsSkippedWithoutBlockingSuccessors(t *testing.T) {
	var emitted []string
	q := newPendingTurnQueue(func(turn events.Turn, speech *synthesis.Result) {
		emitted = append(emitted, turn.CorrelationID)
	}, time.Minute)

	q.Push(agentTurn("A", 1))
	q.Push(agentTurn("B", 2))

	q.Resolve("B", speechFor("B"))
	q.Fail("A")

	if fmt.Sprint(emitted) != "[B]" {
		t.Fatalf("expected only B to be emitted, got %v", emitted)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d entries", q.Len())
	}
}

func TestUnresolvedHeadIsEvictedAfterBoundedWait(t *testing.T) {
	emitted := make(chan string, 2)
	q := newPendingTurnQueue(func(turn events.Turn, speech *synthesis.Result) {
		emitted <- turn.CorrelationID
	}, 30*time.Millisecond)

	q.Push(agentTurn("A", 1))
	q.Push(agentTurn("B", 2))
	q.Resolve("B", speechFor("B"))

	select {
	case id := <-emitted:
		if id != "B" {
			t.Fatalf("expected B after head eviction, got %s", id)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for head eviction to release the queue")
	}
}

func TestPushResolvedKeepsArrivalOrder(t *testing.T) {
	var emitted []string
	q := newPendingTurnQueue(func(turn events.Turn, speech *synthesis.Result) {
		emitted = append(emitted, turn.CorrelationID)
	}, time.Minute)

	q.Push(agentTurn("A", 1))
	// A payload-only turn with no text to synthesize.
	q.PushResolved(agentTurn("B", 2), nil)

	if len(emitted) != 0 {
		t.Fatalf("expected resolved turn to wait behind unresolved head, got %v", emitted)
	}

	q.Resolve("A", speechFor("A"))
	if fmt.Sprint(emitted) != "[A B]" {
		t.Fatalf("expected emission order A,B, got %v", emitted)
	}
}
