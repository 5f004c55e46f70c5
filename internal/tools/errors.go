package tools

import (
	"errors"
	"fmt"
)

// Sentinel errors for the tools package.
var (
	ErrToolNotFound      = errors.New("tool not found")
	ErrToolAlreadyExists = errors.New("tool already exists")
	ErrInvalidArgs       = errors.New("invalid tool arguments")

	// ErrToolExecution marks a recoverable tool failure. The run continues
	// and the failure is fed back to the model.
	ErrToolExecution = errors.New("tool execution failed")

	// ErrFatal marks a violated hard precondition that must end the run.
	ErrFatal = errors.New("fatal tool error")
)

// ToolNotFoundError provides detailed information about a missing tool.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}

// Is allows errors.Is to match against ErrToolNotFound.
func (e *ToolNotFoundError) Is(target error) bool {
	return target == ErrToolNotFound
}

// ToolAlreadyExistsError reports a duplicate registration.
type ToolAlreadyExistsError struct {
	Name string
}

func (e *ToolAlreadyExistsError) Error() string {
	return fmt.Sprintf("tool already exists: %s", e.Name)
}

// Is allows errors.Is to match against ErrToolAlreadyExists.
func (e *ToolAlreadyExistsError) Is(target error) bool {
	return target == ErrToolAlreadyExists
}

// InvalidArgsError reports arguments that failed decoding or validation.
type InvalidArgsError struct {
	Tool    string
	Message string
	Cause   error
}

func (e *InvalidArgsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid arguments for tool %s: %s: %v", e.Tool, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, e.Message)
}

// Is allows errors.Is to match against ErrInvalidArgs.
func (e *InvalidArgsError) Is(target error) bool {
	return target == ErrInvalidArgs
}

// Unwrap returns the underlying cause.
func (e *InvalidArgsError) Unwrap() error {
	return e.Cause
}

// ToolExecutionError wraps any recoverable failure raised by a tool.
type ToolExecutionError struct {
	Tool  string
	Cause error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Cause)
}

// Is allows errors.Is to match against ErrToolExecution.
func (e *ToolExecutionError) Is(target error) bool {
	return target == ErrToolExecution
}

// Unwrap returns the underlying cause.
func (e *ToolExecutionError) Unwrap() error {
	return e.Cause
}

// FatalError wraps a failure that must terminate the run.
type FatalError struct {
	Tool  string
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Cause)
}

// Is allows errors.Is to match against ErrFatal.
func (e *FatalError) Is(target error) bool {
	return target == ErrFatal
}

// Unwrap returns the underlying cause.
func (e *FatalError) Unwrap() error {
	return e.Cause
}

// NewToolNotFoundError creates a ToolNotFoundError for the given tool name.
func NewToolNotFoundError(name string) error {
	return &ToolNotFoundError{Name: name}
}

// NewToolAlreadyExistsError creates a ToolAlreadyExistsError for the given tool name.
func NewToolAlreadyExistsError(name string) error {
	return &ToolAlreadyExistsError{Name: name}
}

// NewInvalidArgsError creates an InvalidArgsError with the given details.
func NewInvalidArgsError(tool, message string, cause error) error {
	return &InvalidArgsError{Tool: tool, Message: message, Cause: cause}
}

// Fatal wraps cause as a FatalError for tool.
func Fatal(tool string, cause error) error {
	return &FatalError{Tool: tool, Cause: cause}
}

// IsFatal reports whether err must end the run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// AsExecutionError normalizes err into a ToolExecutionError unless it is
// fatal or already classified. A nil err stays nil.
func AsExecutionError(tool string, err error) error {
	if err == nil || IsFatal(err) {
		return err
	}
	var execErr *ToolExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return &ToolExecutionError{Tool: tool, Cause: err}
}
