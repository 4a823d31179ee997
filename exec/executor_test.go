package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionExecutor_DryRunNeverErrors(t *testing.T) {
	e := NewActionExecutor(true)
	err := e.Execute(context.Background(), "BUY_YES", map[string]any{"confidence": 0.7})
	assert.NoError(t, err)
}

func TestActionExecutor_LiveModeNeverErrors(t *testing.T) {
	e := NewActionExecutor(false)
	err := e.Execute(context.Background(), "BUY_NO", nil)
	assert.NoError(t, err)
}
