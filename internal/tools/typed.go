package tools

import (
	"context"
	"encoding/json"
)

// Validator is implemented by parameter structs with invariants beyond
// what the JSON schema expresses.
type Validator interface {
	Validate() error
}

// RunFunc executes a tool with decoded parameters.
type RunFunc[P any] func(ctx context.Context, params P) (ToolResult, error)

// TypedTool binds a parameter struct P to a tool name. Arguments are decoded
// and validated once, before run is called.
type TypedTool[P any] struct {
	BaseTool
	run RunFunc[P]
}

// NewTypedTool creates a tool whose schema is derived from P.
func NewTypedTool[P any](name, description string, gated bool, run RunFunc[P]) *TypedTool[P] {
	var zero P
	return &TypedTool[P]{
		BaseTool: BaseTool{
			ToolName:        name,
			ToolDescription: description,
			ToolParameters:  BuildSchema(zero),
			Gated:           gated,
		},
		run: run,
	}
}

// Execute decodes args into P and runs the tool.
func (t *TypedTool[P]) Execute(ctx context.Context, args map[string]any) (ToolResult, error) {
	params, err := Decode[P](t.ToolName, args)
	if err != nil {
		return ToolResult{}, err
	}
	return t.run(ctx, params)
}

// Decode converts a loosely typed argument map into P. Unknown keys are
// ignored so approval-time extra arguments never break decoding.
func Decode[P any](tool string, args map[string]any) (P, error) {
	var params P
	if args == nil {
		args = map[string]any{}
	}

	data, err := json.Marshal(args)
	if err != nil {
		return params, NewInvalidArgsError(tool, "arguments are not serializable", err)
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, NewInvalidArgsError(tool, "arguments do not match schema", err)
	}

	if v, ok := any(&params).(Validator); ok {
		if err := v.Validate(); err != nil {
			return params, NewInvalidArgsError(tool, err.Error(), nil)
		}
	}
	return params, nil
}

// ParseArguments decodes the raw JSON arguments emitted by the model.
// An empty string yields an empty map.
func ParseArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}
