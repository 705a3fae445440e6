package ir

// Version constants for generated code and the engine.
const (
	// CodegenVersion is mixed into every codegen hash. Bump it whenever the
	// generated Go changes shape so cached artifacts are rebuilt.
	CodegenVersion = "3"

	// EngineVersion is the grug engine version recorded in the build cache.
	EngineVersion = "0.4.0"
)
