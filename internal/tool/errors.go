package tool

import "errors"

var (
	// ErrToolNotFound is reported when a tool is not found in the registry.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExecutionFailed is reported when a handler fails or panics.
	ErrToolExecutionFailed = errors.New("tool execution failed")

	// ErrEmptyToolName is returned when a tool name is empty.
	ErrEmptyToolName = errors.New("tool name must not be empty")

	// ErrDuplicateTool is returned when registering a tool with a name that
	// already exists in the registry.
	ErrDuplicateTool = errors.New("tool already registered")

	// ErrInvalidCategory is returned when a tool declares an unknown category.
	ErrInvalidCategory = errors.New("tool category is invalid")

	// ErrInvalidSchema is returned when a tool's parameter schema does not compile.
	ErrInvalidSchema = errors.New("tool schema is invalid")

	// ErrInvalidArguments is reported when arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)
