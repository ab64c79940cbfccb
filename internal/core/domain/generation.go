package domain

// GenerationState is the state of one generation run for an identity and fingerprint.
type GenerationState string

const (
	// StatePending means the run has not started.
	StatePending GenerationState = "pending"
	// StateGenerating means candidates are being requested and tested.
	StateGenerating GenerationState = "generating"
	// StateAccepted means a candidate passed and was committed.
	StateAccepted GenerationState = "accepted"
	// StateExhausted means the attempt budget was spent without a pass.
	StateExhausted GenerationState = "exhausted"
	// StateSuperseded means a candidate passed but the declaration changed before commit.
	StateSuperseded GenerationState = "superseded"
	// StateSkipped means a servable entry already existed and regeneration was not forced.
	StateSkipped GenerationState = "skipped"
)

// Prompt is the structured context sent to the text-generation service.
type Prompt struct {
	Identity Identity
	System   string
	User     string
}
