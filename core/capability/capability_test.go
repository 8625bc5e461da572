package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetMembership(t *testing.T) {
	s := NewSet(Text, Audio)
	require.True(t, s.Has(Text))
	require.True(t, s.Has(Audio))
	require.False(t, s.Has(NamedAction))
	require.False(t, s.Has(Synthesis))
}

func TestProfileSupports(t *testing.T) {
	p := Profile{Descriptors: []Descriptor{
		{Protocol: ProtocolPollingHTTP, Capabilities: NewSet(Text, NamedAction)},
		{Protocol: ProtocolStreamSocket, Capabilities: NewSet(Text, AudioStream)},
	}}
	require.True(t, p.Supports(Text))
	require.True(t, p.Supports(AudioStream))
	require.False(t, p.Supports(Audio))
}

func TestRoomDescriptorPicksPollingBackend(t *testing.T) {
	p := Profile{Descriptors: []Descriptor{
		{Protocol: ProtocolStreamSocket},
		{Protocol: ProtocolPollingHTTP, Path: "https://room.example"},
	}}
	d := p.RoomDescriptor()
	require.NotNil(t, d)
	require.Equal(t, "https://room.example", d.Path)

	require.Nil(t, Profile{}.RoomDescriptor())
}

func TestCloneDoesNotShareDescriptors(t *testing.T) {
	p := Profile{Descriptors: []Descriptor{{Protocol: ProtocolPollingHTTP, Path: "a"}}}
	clone := p.Clone()
	clone.Descriptors[0].Path = "b"
	require.Equal(t, "a", p.Descriptors[0].Path)
}

func TestProfileSchemaExposesDescriptorList(t *testing.T) {
	schema := ProfileSchema()
	require.NotNil(t, schema)
	_, ok := schema.Properties.Get("descriptors")
	require.True(t, ok)
}
