// Package capability models the per-backend capability descriptors consumed
// by the communication orchestrator. Descriptors arrive pre-parsed from
// configuration and are treated as immutable once loaded.
package capability

// Protocol identifies the transport protocol a backend speaks.
type Protocol string

const (
	// ProtocolPollingHTTP is an HTTP request/response loop against a
	// turn-based message store.
	ProtocolPollingHTTP Protocol = "polling-http"
	// ProtocolStreamSocket is a persistent bidirectional socket carrying
	// conversation turns and live speech-recognition events.
	ProtocolStreamSocket Protocol = "stream-socket"
	// ProtocolRecognitionSocket is a persistent socket dedicated to streaming
	// recorded audio and receiving recognized text.
	ProtocolRecognitionSocket Protocol = "recognition-socket"
	// ProtocolSynthesisREST is a stateless request/response call converting
	// text into speech audio plus timing marks.
	ProtocolSynthesisREST Protocol = "synthesis-rest"
)

// Capability is one payload kind a backend declares support for.
type Capability uint8

const (
	Text Capability = 1 << iota
	NamedAction
	Audio
	AudioStream
	Synthesis
)

// Set is a capability bitmask. A handler accepts an intent iff its declared
// mask includes the intent's capability flag.
type Set uint8

func NewSet(capabilities ...Capability) Set {
	var s Set
	for _, c := range capabilities {
		s |= Set(c)
	}
	return s
}

func (s Set) Has(c Capability) bool { return s&Set(c) != 0 }

func (s Set) HasAny(other Set) bool { return s&other != 0 }

// Descriptor declares one backend: its protocol, the payload kinds it
// supports, its connection path and access credential. A descriptor may
// additionally carry room semantics: a turn store identified by an opaque id,
// created lazily on first use.
type Descriptor struct {
	Protocol     Protocol `json:"protocol" jsonschema:"title=Protocol,enum=polling-http,enum=stream-socket,enum=recognition-socket,enum=synthesis-rest"`
	Capabilities Set      `json:"capabilities" jsonschema:"title=Capabilities,description=Bitmask of supported payload kinds"`
	Path         string   `json:"path" jsonschema:"title=Path,description=Connection path or URL"`
	Credential   string   `json:"credential,omitempty" jsonschema:"title=Credential"`

	// LocationID identifies the location a lazily created turn store belongs
	// to. Only meaningful for polling-http descriptors.
	LocationID string `json:"locationId,omitempty"`
}

// Profile is the complete capability declaration handed to the orchestrator:
// the configured backends, the designated fallbacks, and whether the
// configured conversation engine requires persistent turn-store semantics.
type Profile struct {
	Descriptors []Descriptor `json:"descriptors"`

	// RecognitionFallback is constructed when no configured descriptor
	// declares audio capability.
	RecognitionFallback *Descriptor `json:"recognitionFallback,omitempty"`
	// SynthesisFallback is constructed when no configured descriptor declares
	// synthesis capability.
	SynthesisFallback *Descriptor `json:"synthesisFallback,omitempty"`

	// RequiresRoom declares that the conversation engine requires persistent
	// turn-store semantics.
	RequiresRoom bool `json:"requiresRoom,omitempty"`
}

// Supports reports whether any configured descriptor declares the capability.
func (p Profile) Supports(c Capability) bool {
	for _, d := range p.Descriptors {
		if d.Capabilities.Has(c) {
			return true
		}
	}
	return false
}

// RoomDescriptor returns the first descriptor carrying turn-store semantics,
// or nil when none is configured.
func (p Profile) RoomDescriptor() *Descriptor {
	for i := range p.Descriptors {
		if p.Descriptors[i].Protocol == ProtocolPollingHTTP {
			return &p.Descriptors[i]
		}
	}
	return nil
}
