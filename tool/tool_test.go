package tool

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addArgs struct {
	A float64 `json:"a" description:"First addend"`
	B float64 `json:"b" description:"Second addend"`
}

func newAddTool() *FunctionTool {
	return NewFunctionToolFromStruct("add", "Add two numbers", addArgs{},
		func(ctx context.Context, args map[string]any) (any, error) {
			return args["a"].(float64) + args["b"].(float64), nil
		})
}

func TestFunctionTool_Success(t *testing.T) {
	add := newAddTool()

	assert.Equal(t, "add", add.Name())
	assert.Equal(t, "Add two numbers", add.Description())
	assert.Equal(t, "object", add.Parameters()["type"])

	out, err := add.Call(context.Background(), map[string]any{"a": 2.0, "b": 3.0})
	require.NoError(t, err)
	assert.Equal(t, 5.0, out)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	out, err := newAddTool().Call(context.Background(), map[string]any{"a": 2.0})
	assert.Nil(t, out)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Equal(t, "add", toolErr.Tool)

	var ve *ValidationError
	require.True(t, errors.As(toolErr.Details.(error), &ve))
	assert.Equal(t, "b", ve.Field)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	failing := NewFunctionTool("fail", "always fails", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, errors.New("boom")
		})

	_, err := failing.Call(context.Background(), map[string]any{})

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "tool error [EXECUTION_ERROR] in fail: boom", toolErr.Error())
}

func TestFunctionTool_ForwardsToolError(t *testing.T) {
	custom := NewToolError("quota", "quota exhausted", "QUOTA")
	tl := NewFunctionTool("quota", "", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return nil, custom
		})

	_, err := tl.Call(context.Background(), nil)
	assert.Same(t, custom, err)
}

func TestToolErrorWithoutCode(t *testing.T) {
	err := &ToolError{Tool: "x", Message: "bad"}
	assert.Equal(t, "tool error in x: bad", err.Error())
}

func TestFunctionTool_ReceivesContext(t *testing.T) {
	type key struct{}
	tl := NewFunctionTool("ctx", "", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return ctx.Value(key{}), nil
		})

	out, err := tl.Call(context.WithValue(context.Background(), key{}, "run-7"), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "run-7", out)
}

func TestFunctionTool_Concurrent(t *testing.T) {
	add := newAddTool()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := add.Call(context.Background(), map[string]any{"a": float64(i), "b": 1.0})
			assert.NoError(t, err)
			assert.Equal(t, float64(i)+1, out)
		}(i)
	}
	wg.Wait()
}

func TestSet(t *testing.T) {
	add := newAddTool()
	echo := NewFunctionTool("echo", "Echo input", nil,
		func(ctx context.Context, args map[string]any) (any, error) { return args, nil })

	set := NewSet(add, nil, echo)
	assert.Equal(t, 2, set.Len())

	defs := set.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "add", defs[0].Function.Name)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "echo", defs[1].Function.Name)

	out, err := set.Call(context.Background(), "add", map[string]any{"a": 1.0, "b": 1.0})
	require.NoError(t, err)
	assert.Equal(t, 2.0, out)

	_, err = set.Call(context.Background(), "missing", nil)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeNotFound, toolErr.Code)
}

func TestEmptySet(t *testing.T) {
	var set *Set
	assert.Equal(t, 0, set.Len())
	assert.Nil(t, set.Definitions())
	_, ok := set.Get("add")
	assert.False(t, ok)
}
