package executor

// Language defines a WASM-hosted interpreter that speaks the session protocol.
type Language interface {
	// Name returns a unique identifier for this language (e.g., "python").
	// Used as the cache key for compiled modules.
	Name() string

	// Module returns the WASM binary for the language interpreter.
	Module() ([]byte, error)

	// Args returns the command-line arguments that start the interpreter in
	// session mode. The bootstrap program is part of these arguments.
	Args() []string
}
