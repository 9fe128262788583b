// Package python provides the Python language adapter for gradebox.
//
// The interpreter is a RustPython build for WASI, loaded from disk. Fetch it
// once with the download tool, for example:
//
//	go run ./internal/tools/download -sha256 <digest> <release-url> python.wasm
package python

import (
	_ "embed"
	"fmt"
	"os"
	"sync"
)

//go:embed bootstrap.py
var bootstrap string

const (
	// DefaultModulePath is where the interpreter binary is looked up when
	// no path is configured.
	DefaultModulePath = "python.wasm"

	// ModulePathEnv overrides the interpreter location.
	ModulePathEnv = "GRADEBOX_PYTHON_WASM"
)

// Python implements the executor.Language interface for Python execution.
type Python struct {
	modulePath string

	once   sync.Once
	module []byte
	err    error
}

// New returns a Python language adapter reading the interpreter from
// modulePath. An empty path resolves through ModulePath.
func New(modulePath string) *Python {
	if modulePath == "" {
		modulePath = ModulePath()
	}
	return &Python{modulePath: modulePath}
}

// ModulePath returns the interpreter path from the environment, or
// DefaultModulePath.
func ModulePath() string {
	if p := os.Getenv(ModulePathEnv); p != "" {
		return p
	}
	return DefaultModulePath
}

// Name returns "python".
func (p *Python) Name() string {
	return "python"
}

// Path returns the interpreter binary location.
func (p *Python) Path() string {
	return p.modulePath
}

// Module returns the RustPython WASM binary. The file is read once.
func (p *Python) Module() ([]byte, error) {
	p.once.Do(func() {
		p.module, p.err = os.ReadFile(p.modulePath)
		if p.err != nil {
			p.err = fmt.Errorf("read interpreter: %w", p.err)
		}
	})
	return p.module, p.err
}

// Args starts the interpreter with the session bootstrap program.
func (p *Python) Args() []string {
	return []string{"python", "-c", bootstrap}
}

// Bootstrap returns the session program run at interpreter start.
func Bootstrap() string {
	return bootstrap
}
