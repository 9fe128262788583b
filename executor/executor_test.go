package executor_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/caffeineduck/gradebox/executor"
	"github.com/caffeineduck/gradebox/language/python"
)

// Python tests are integration tests; they run only when the interpreter
// binary is available, either through GRADEBOX_PYTHON_WASM or at the
// repository root.
var (
	sharedExec *executor.Executor
	sharedLang *python.Python
)

func TestMain(m *testing.M) {
	var err error
	sharedExec, err = executor.New()
	if err != nil {
		panic("failed to create shared executor: " + err.Error())
	}

	sharedLang = python.New(interpreterPath())

	code := m.Run()

	sharedExec.Close()
	os.Exit(code)
}

func interpreterPath() string {
	if p := os.Getenv(python.ModulePathEnv); p != "" {
		return p
	}
	return filepath.Join("..", python.DefaultModulePath)
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := sharedLang.Module(); err != nil {
		t.Skipf("python interpreter unavailable: %v", err)
	}
}

// collector is a goroutine-safe Sink that records lines.
type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) Write(chunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, chunk)
}

func (c *collector) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func (c *collector) String() string {
	return strings.Join(c.Lines(), "\n")
}

func TestExecutorClose(t *testing.T) {
	exec, err := executor.New(executor.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	require.NoError(t, exec.Close())
	require.NoError(t, exec.Close())

	_, err = exec.NewSession(context.Background(), python.New("unused.wasm"))
	assert.ErrorIs(t, err, executor.ErrExecutorClosed)
}

func TestExecutorMissingModule(t *testing.T) {
	exec, err := executor.New()
	require.NoError(t, err)
	defer exec.Close()

	_, err = exec.NewSession(context.Background(), python.New(filepath.Join(t.TempDir(), "absent.wasm")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load python module")
}

func TestExecutorPrecompileFailure(t *testing.T) {
	_, err := executor.New(executor.WithPrecompile(python.New(filepath.Join(t.TempDir(), "absent.wasm"))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precompile python")
}

func TestExecutorDiskCache(t *testing.T) {
	exec, err := executor.New(executor.WithDiskCache(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, exec.Close())
}

func TestMemoryLimitFromMB(t *testing.T) {
	assert.Equal(t, uint32(0), executor.MemoryLimitFromMB(0))
	assert.Equal(t, uint32(0), executor.MemoryLimitFromMB(-5))
	assert.Equal(t, executor.MemoryLimit16MB, executor.MemoryLimitFromMB(16))
	assert.Equal(t, executor.MemoryLimit256MB, executor.MemoryLimitFromMB(256))
}

func TestExecError(t *testing.T) {
	err := &executor.ExecError{Message: "NameError: name 'x' is not defined (line 1)"}
	assert.Equal(t, "NameError: name 'x' is not defined (line 1)", err.Error())
}
