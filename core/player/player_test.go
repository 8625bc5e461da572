package player

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VirbeHQ/being-core/core/events"
)

func agentTurn(text, correlationID string) events.AgentTurn {
	return events.AgentTurn{
		Base: events.NewBase(events.KindAgentTurn),
		Turn: events.Turn{
			Role:          events.RoleAgent,
			Text:          text,
			CorrelationID: correlationID,
		},
	}
}

func TestTurnsPlaySequentiallyInOrder(t *testing.T) {
	var mu sync.Mutex
	var played []string
	release := make(chan struct{})

	player := New(func(ctx context.Context, turn events.AgentTurn) error {
		mu.Lock()
		played = append(played, turn.Turn.Text)
		mu.Unlock()
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	player.Start(ctx)

	player.Enqueue(agentTurn("first", "c-1"))
	player.Enqueue(agentTurn("second", "c-2"))
	player.Enqueue(agentTurn("third", "c-3"))

	// Only the head of the queue plays while the previous turn is blocked.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(played) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"first"}, played)
	mu.Unlock()

	release <- struct{}{}
	release <- struct{}{}
	release <- struct{}{}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(played) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"first", "second", "third"}, played)
	mu.Unlock()
}

func TestBeginAndEndCallbacksBracketEachTurn(t *testing.T) {
	var mu sync.Mutex
	var trace []string

	player := New(
		func(ctx context.Context, turn events.AgentTurn) error {
			mu.Lock()
			trace = append(trace, "play:"+turn.Turn.CorrelationID)
			mu.Unlock()
			return nil
		},
		WithTurnCallbacks(
			func(turn events.Turn) {
				mu.Lock()
				trace = append(trace, "begin:"+turn.CorrelationID)
				mu.Unlock()
			},
			func(turn events.Turn) {
				mu.Lock()
				trace = append(trace, "end:"+turn.CorrelationID)
				mu.Unlock()
			},
		),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	player.Start(ctx)

	player.Enqueue(agentTurn("hello", "c-1"))
	player.Enqueue(agentTurn("again", "c-2"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(trace) == 6
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{
		"begin:c-1", "play:c-1", "end:c-1",
		"begin:c-2", "play:c-2", "end:c-2",
	}, trace)
	mu.Unlock()
}

func TestPlaybackErrorDoesNotStallQueue(t *testing.T) {
	var mu sync.Mutex
	var played []string

	player := New(func(ctx context.Context, turn events.AgentTurn) error {
		mu.Lock()
		played = append(played, turn.Turn.Text)
		mu.Unlock()
		if turn.Turn.Text == "broken" {
			return errors.New("render failed")
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	player.Start(ctx)

	player.Enqueue(agentTurn("broken", "c-1"))
	player.Enqueue(agentTurn("fine", "c-2"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(played) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"broken", "fine"}, played)
	mu.Unlock()
}

func TestStopDropsQueuedTurns(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var played []string

	player := New(func(ctx context.Context, turn events.AgentTurn) error {
		mu.Lock()
		played = append(played, turn.Turn.Text)
		mu.Unlock()
		close(started)
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	player.Start(ctx)

	player.Enqueue(agentTurn("playing", "c-1"))
	player.Enqueue(agentTurn("never", "c-2"))

	<-started
	player.Stop()
	close(release)

	select {
	case <-player.Done():
	case <-time.After(time.Second):
		t.Fatal("player did not stop")
	}

	mu.Lock()
	assert.Equal(t, []string{"playing"}, played)
	mu.Unlock()

	// Enqueue after stop is a no-op.
	player.Enqueue(agentTurn("late", "c-3"))
	mu.Lock()
	assert.Len(t, played, 1)
	mu.Unlock()
}
