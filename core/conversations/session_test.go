package conversations

import (
	"testing"

	"github.com/VirbeHQ/being-core/core/capability"
)

func TestSessionConversationLifecycle(t *testing.T) {
	session := NewSession("user-1", nil)

	if got := session.ConversationID(); got != nil {
		t.Fatalf("expected nil conversation id before assignment, got %q", *got)
	}

	session.AssignConversation("conv-1")
	if got := session.ConversationID(); got == nil || *got != "conv-1" {
		t.Fatalf("expected conversation id conv-1, got %v", got)
	}

	session.End()
	if got := session.ConversationID(); got != nil {
		t.Fatalf("expected nil conversation id after end, got %q", *got)
	}
	if got := session.EndUserID(); got != "user-1" {
		t.Fatalf("expected end user id to survive session end, got %q", got)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	session := NewSession("user-1", nil)
	session.AssignConversation("conv-1")

	snapshot := session.Snapshot()
	session.AssignConversation("conv-2")

	if snapshot.ConversationID == nil || *snapshot.ConversationID != "conv-1" {
		t.Fatalf("expected snapshot to keep conv-1, got %v", snapshot.ConversationID)
	}
}

func TestCorrelatorSequencesAreMonotonic(t *testing.T) {
	correlator := NewCorrelator()
	last := uint64(0)
	for range 100 {
		seq := correlator.NextSeq()
		if seq <= last {
			t.Fatalf("expected monotonically increasing sequence, got %d after %d", seq, last)
		}
		last = seq
	}
}

func TestIntentCapabilities(t *testing.T) {
	cases := []struct {
		intent Intent
		want   capability.Capability
	}{
		{SendText("hi"), capability.Text},
		{SendNamedAction("wave", ""), capability.NamedAction},
		{SendAudio([]byte{1}), capability.Audio},
		{SendAudioChunk([]byte{1}), capability.AudioStream},
	}
	for _, c := range cases {
		if c.intent.Capability != c.want {
			t.Fatalf("expected capability %v, got %v", c.want, c.intent.Capability)
		}
	}
}
