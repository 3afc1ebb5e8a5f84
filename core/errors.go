package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownHandle is wrapped by ToolEventProtocolError when Finish is
	// called with a handle that was never issued.
	ErrUnknownHandle = errors.New("unknown tool event handle")

	// ErrHandleClosed is wrapped by ToolEventProtocolError when Finish is
	// called a second time for the same handle.
	ErrHandleClosed = errors.New("tool event handle already closed")

	// ErrNotCompleted is wrapped by NotCompletedError.
	ErrNotCompleted = errors.New("run not completed")

	// ErrCancelled marks a run stopped by the caller's cancellation signal.
	ErrCancelled = errors.New("simulation cancelled")
)

// Error kinds used in ErrorDescriptor.Kind for the taxonomy types.
const (
	KindConfig            = "ConfigError"
	KindAgent             = "AgentError"
	KindPersona           = "PersonaError"
	KindToolEventProtocol = "ToolEventProtocolError"
	KindNotCompleted      = "NotCompletedError"
	KindCancelled         = "cancelled"
	KindPanic             = "panic"
)

// ConfigError reports an invalid SimulationConfig. It is the only error kind
// that propagates out of the scheduler entry point.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid simulation config: %s %s", e.Field, e.Message)
}

// SetupTurn is the TurnIndex of failures raised while constructing the
// per-run agent or persona, before the first turn.
const SetupTurn = -1

// AgentError reports a failure of the agent capability (construction or chat).
type AgentError struct {
	RunIndex  int
	TurnIndex int
	Err       error
}

func (e *AgentError) Error() string {
	if e.TurnIndex == SetupTurn {
		return fmt.Sprintf("agent setup failed in run %d: %v", e.RunIndex, e.Err)
	}
	return fmt.Sprintf("agent failed in run %d turn %d: %v", e.RunIndex, e.TurnIndex, e.Err)
}

func (e *AgentError) Unwrap() error { return e.Err }

// PersonaError reports a failure of the persona capability.
type PersonaError struct {
	RunIndex  int
	TurnIndex int
	Err       error
}

func (e *PersonaError) Error() string {
	if e.TurnIndex == SetupTurn {
		return fmt.Sprintf("persona setup failed in run %d: %v", e.RunIndex, e.Err)
	}
	return fmt.Sprintf("persona failed in run %d turn %d: %v", e.RunIndex, e.TurnIndex, e.Err)
}

func (e *PersonaError) Unwrap() error { return e.Err }

// ToolEventProtocolError is returned by Finish for an unknown or already
// closed handle. It never aborts the run that triggered it.
type ToolEventProtocolError struct {
	Handle string
	Err    error
}

func (e *ToolEventProtocolError) Error() string {
	return fmt.Sprintf("tool event protocol violation for handle %q: %v", e.Handle, e.Err)
}

func (e *ToolEventProtocolError) Unwrap() error { return e.Err }

// NotCompletedError marks a requested run that produced no result, for
// example because cancellation stopped admission before it was dispatched.
type NotCompletedError struct {
	RunIndex int
}

func (e *NotCompletedError) Error() string {
	return fmt.Sprintf("run %d not completed", e.RunIndex)
}

func (e *NotCompletedError) Unwrap() error { return ErrNotCompleted }

// PanicError wraps a value recovered from a panic inside collaborator code.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }

// ErrorDescriptor is the serializable form of an error: a kind plus a message.
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (d ErrorDescriptor) String() string { return d.Kind + ": " + d.Message }

// Describe converts err into an ErrorDescriptor. Taxonomy errors map to their
// taxonomy name and keep their cause in the message. Bare cancellation maps
// to KindCancelled and a bare recovered panic to KindPanic; anything else
// uses the dynamic Go type of the outermost error.
func Describe(err error) *ErrorDescriptor {
	if err == nil {
		return nil
	}
	return &ErrorDescriptor{Kind: errorKind(err), Message: err.Error()}
}

func errorKind(err error) string {
	var (
		cfgErr      *ConfigError
		agentErr    *AgentError
		personaErr  *PersonaError
		protocolErr *ToolEventProtocolError
		notDoneErr  *NotCompletedError
		panicErr    *PanicError
	)
	switch {
	case errors.As(err, &cfgErr):
		return KindConfig
	case errors.As(err, &agentErr):
		return KindAgent
	case errors.As(err, &personaErr):
		return KindPersona
	case errors.As(err, &protocolErr):
		return KindToolEventProtocol
	case errors.As(err, &notDoneErr):
		return KindNotCompleted
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.As(err, &panicErr):
		return KindPanic
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}
