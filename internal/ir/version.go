package ir

const (
	// TraceVersion is the version of the golden trace format.
	TraceVersion = "1"

	// EngineVersion is the sequencer engine version.
	EngineVersion = "0.1.0"
)
