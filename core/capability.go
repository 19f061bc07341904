package core

// Capability is a tag from a closed vocabulary describing a kind of work an
// agent can perform. Capabilities drive task routing: a task declares the
// capabilities it requires and the controller matches it against agents whose
// descriptor carries a superset of them.
type Capability string

const (
	// CapabilityTextProcessing covers text transformation, QA and summarization work.
	CapabilityTextProcessing Capability = "text_processing"
	// CapabilityImageProcessing covers image analysis and transformation work.
	CapabilityImageProcessing Capability = "image_processing"
	// CapabilityAudioProcessing covers audio analysis and transcription work.
	CapabilityAudioProcessing Capability = "audio_processing"
	// CapabilityCodeGeneration covers source code synthesis work.
	CapabilityCodeGeneration Capability = "code_generation"
	// CapabilityDataAnalysis covers structured data analysis work.
	CapabilityDataAnalysis Capability = "data_analysis"
	// CapabilityReasoning covers multi-step reasoning work.
	CapabilityReasoning Capability = "reasoning"
)

// AllCapabilities returns the full capability vocabulary in declaration order.
func AllCapabilities() []Capability {
	return []Capability{
		CapabilityTextProcessing,
		CapabilityImageProcessing,
		CapabilityAudioProcessing,
		CapabilityCodeGeneration,
		CapabilityDataAnalysis,
		CapabilityReasoning,
	}
}

// Valid reports whether c belongs to the capability vocabulary.
func (c Capability) Valid() bool {
	switch c {
	case CapabilityTextProcessing, CapabilityImageProcessing, CapabilityAudioProcessing,
		CapabilityCodeGeneration, CapabilityDataAnalysis, CapabilityReasoning:
		return true
	}
	return false
}

// String returns the wire value of the capability tag.
func (c Capability) String() string { return string(c) }

// CapabilityStrings converts a capability slice to its wire values. Used when
// recording required capabilities into task metadata for downstream
// inspection.
func CapabilityStrings(caps []Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

// ContainsAll reports whether set contains every capability in required.
// An empty required slice is trivially satisfied.
func ContainsAll(set, required []Capability) bool {
	for _, r := range required {
		found := false
		for _, c := range set {
			if c == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
