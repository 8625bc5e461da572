package synthesis

// Mark is one timing mark produced alongside synthesized speech. Marks drive
// downstream lip-sync and gesture scheduling; this package only transports
// them.
type Mark struct {
	Time  float64 `json:"time"`
	Type  string  `json:"type"`
	Value string  `json:"value"`
}

// AudioParameters describes the raw audio returned by the synthesis backend.
type AudioParameters struct {
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	Format     string `json:"format"`
}

// Result is a resolved synthesis response. CorrelationID links the result
// back to the turn whose text was synthesized.
type Result struct {
	CorrelationID   string
	Marks           []Mark
	Audio           []byte
	AudioParameters AudioParameters
}
