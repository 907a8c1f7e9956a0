package mcp_test

import (
	"context"
	"testing"

	"github.com/mcpkit/mcp-server/mcp"
	"github.com/stretchr/testify/assert"
)

type sampleCalculatorTool struct{}

func (sampleCalculatorTool) Handle(_ context.Context, _ map[string]any) (mcp.ToolResult, error) {
	return mcp.ToolResult{}, nil
}

var _ mcp.Tool = sampleCalculatorTool{}

func TestDefaultNameKebabCase(t *testing.T) {
	assert.Equal(t, "sample-calculator-tool", mcp.DefaultName(&sampleCalculatorTool{}))
	assert.Equal(t, "sample-calculator-tool", mcp.DefaultName(sampleCalculatorTool{}))
}

func TestDefaultDescription(t *testing.T) {
	assert.Equal(t, "Tool implemented by sampleCalculatorTool", mcp.DefaultDescription("Tool", &sampleCalculatorTool{}))
}

func TestFailureCode(t *testing.T) {
	assert.Equal(t, mcp.ErrorCodeInvalidParams, mcp.NewNotFound("x").Code())
	assert.Equal(t, mcp.ErrorCodeInvalidParams, mcp.NewInvalidParams("x").Code())
	assert.Equal(t, mcp.ErrorCodeInternalError, mcp.NewInternal("x").Code())
}

func TestAsFailure(t *testing.T) {
	f, ok := mcp.AsFailure(mcp.NewNotFound("missing"))
	assert.True(t, ok)
	assert.Equal(t, "missing", f.Message)

	_, ok = mcp.AsFailure(assertErr{})
	assert.False(t, ok)
}

type assertErr struct{}

func (assertErr) Error() string { return "plain error" }

func TestRequestIsNotification(t *testing.T) {
	assert.True(t, mcp.Request{Method: "progress"}.IsNotification())
	assert.False(t, mcp.Request{Method: "tools/list", ID: "1"}.IsNotification())
}
