package events

// Role identifies the participant a turn is attributed to.
type Role string

const (
	RoleEndUser Role = "EndUser"
	RoleAgent   Role = "Agent"
)

// Turn is one normalized inbound conversation record. The sequence number is
// assigned at normalization time and is the ordering key for reassembly of
// asynchronous synthesis completions.
type Turn struct {
	Role          Role
	Text          string
	Payload       ActionPayload
	CorrelationID string
	Seq           uint64
}

// ActionPayload carries the structured parts of a turn beyond plain text.
// Extraction is lenient: a malformed section yields a nil field, never an
// error, so one bad turn cannot halt the pipeline.
type ActionPayload struct {
	Buttons        []Button
	Cards          []Card
	NamedAction    *NamedAction
	BehaviorAction *BehaviorAction
	CustomAction   *CustomAction
	UIAction       *UIAction
	Signal         *Signal
	EngineEvent    *EngineEvent
}

type Button struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

type Card struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	ImageURL string `json:"imageUrl"`
	Payload  string `json:"payload"`
}

type NamedAction struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type BehaviorAction struct {
	Name  string `json:"name"`
	Value string `json:"value,omitempty"`
}

type CustomAction struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"`
}

type UIAction struct {
	Value string `json:"value"`
}

type Signal struct {
	Name string `json:"name"`
}

type EngineEvent struct {
	Name    string `json:"name"`
	Payload string `json:"payload,omitempty"`
}
