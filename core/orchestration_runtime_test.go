package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VirbeHQ/being-core/core/behavior"
	"github.com/VirbeHQ/being-core/core/capability"
	"github.com/VirbeHQ/being-core/core/events"
)

func TestAgentTurnPayloadFansOutGranularEvents(t *testing.T) {
	handler := &fakeHandler{capabilities: capability.NewSet(capability.Text)}

	orchestrator, err := New(capability.Profile{}, WithHandlers(handler))
	require.NoError(t, err)

	agentTurns := make(chan events.AgentTurn, 1)
	namedActions := make(chan events.NamedAction, 1)
	signals := make(chan events.Signal, 1)

	require.NoError(t, orchestrator.Initialize(context.Background(), "end-user-1", nil,
		OnAgentTurn(func(turn events.AgentTurn) { agentTurns <- turn }),
		OnNamedAction(func(action events.NamedAction) { namedActions <- action }),
		OnSignal(func(signal events.Signal) { signals <- signal }),
	))
	defer orchestrator.Dispose()

	turn := events.Turn{
		Role: events.RoleAgent,
		Text: "here you go",
		Payload: events.ActionPayload{
			NamedAction: &events.NamedAction{Name: "open-map", Value: "floor-2"},
			Signal:      &events.Signal{Name: "wave"},
		},
		CorrelationID: "c-1",
	}
	orchestrator.enqueueEvent(events.NewAgentTurn(turn, nil))

	select {
	case materialized := <-agentTurns:
		assert.Equal(t, "here you go", materialized.Turn.Text)
	case <-time.After(time.Second):
		t.Fatal("agent turn callback was not invoked")
	}

	select {
	case action := <-namedActions:
		assert.Equal(t, "open-map", action.Name)
		assert.Equal(t, "floor-2", action.Value)
	case <-time.After(time.Second):
		t.Fatal("named action callback was not invoked")
	}

	select {
	case signal := <-signals:
		assert.Equal(t, "wave", signal.Name)
	case <-time.After(time.Second):
		t.Fatal("signal callback was not invoked")
	}
}

func TestPlayerWiringDrivesBehaviorThroughPlayback(t *testing.T) {
	handler := &fakeHandler{capabilities: capability.NewSet(capability.Text)}

	orchestrator, err := New(capability.Profile{}, WithHandlers(handler))
	require.NoError(t, err)

	require.NoError(t, orchestrator.Initialize(context.Background(), "end-user-1", nil))
	defer orchestrator.Dispose()

	machine := orchestrator.Behavior()
	require.True(t, machine.Request(behavior.StateFocused))
	require.True(t, machine.Request(behavior.StateInConversation))

	turn := events.Turn{Role: events.RoleAgent, Text: "welcome", CorrelationID: "c-1"}
	orchestrator.enqueueEvent(events.NewAgentTurn(turn, nil))

	require.Eventually(t, func() bool {
		return machine.State() == behavior.StateRequestReceived
	}, time.Second, 5*time.Millisecond)

	release := make(chan struct{})
	actionPlayer := orchestrator.NewPlayer(func(ctx context.Context, agentTurn events.AgentTurn) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	actionPlayer.Start(ctx)

	actionPlayer.Enqueue(events.AgentTurn{Base: events.NewBase(events.KindAgentTurn), Turn: turn})

	require.Eventually(t, func() bool {
		return machine.State() == behavior.StatePlayingBeingAction
	}, time.Second, 5*time.Millisecond)

	close(release)

	require.Eventually(t, func() bool {
		return machine.State() == behavior.StateInConversation
	}, time.Second, 5*time.Millisecond)

	actionPlayer.Stop()
}
