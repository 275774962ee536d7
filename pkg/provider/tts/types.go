package tts

// Voice describes a TTS voice configuration.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Speed adjusts speaking rate (0.5–2.0, 1.0 = default, 0 treated as 1.0).
	Speed float64

	// Metadata holds provider-specific voice attributes (gender, accent, etc.).
	Metadata map[string]string
}
