package analyzer

import (
	"context"
	"testing"
)

// Go 1.21 stand-in for testing.T.Context (added in Go 1.24).
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
