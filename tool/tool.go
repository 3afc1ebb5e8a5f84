// Package tool exposes Go functions as schema-validated capabilities an
// agent can call during a conversation turn.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentsim/internal/util"
	"github.com/hupe1980/agentsim/model"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// Tool is a named capability with a JSON schema for its arguments.
//
// Implementations must be safe for concurrent use: a single tool value is
// shared by the agents of every simulation run.
type Tool interface {
	// Name returns the unique identifier the model uses to call the tool.
	Name() string

	// Description is shown to the model to decide when to call the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool. The context carries the run identity and the
	// tool event recorder of the calling run.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Set is an ordered collection of tools addressable by name.
type Set struct {
	order  []string
	byName map[string]Tool
}

// NewSet builds a Set. Later tools replace earlier ones with the same name.
func NewSet(tools ...Tool) *Set {
	s := &Set{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		if _, exists := s.byName[t.Name()]; !exists {
			s.order = append(s.order, t.Name())
		}
		s.byName[t.Name()] = t
	}
	return s
}

// Get returns the tool registered under name.
func (s *Set) Get(name string) (Tool, bool) {
	if s == nil {
		return nil, false
	}
	t, ok := s.byName[name]
	return t, ok
}

// Len returns the number of tools.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Definitions returns the model-facing declarations in registration order.
func (s *Set) Definitions() []model.ToolDefinition {
	if s.Len() == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(s.order))
	for _, name := range s.order {
		t := s.byName[name]
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// Call dispatches to the named tool. Unknown names yield a NOT_FOUND ToolError.
func (s *Set) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := s.Get(name)
	if !ok {
		return nil, NewToolError(name, "tool not registered", CodeNotFound)
	}
	return t.Call(ctx, args)
}
