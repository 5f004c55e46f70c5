package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"reelgate/internal/provider"
)

// Registry manages a collection of tools.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return NewInvalidArgsError("registry", "tool cannot be nil", nil)
	}

	name := tool.Name()
	if name == "" {
		return NewInvalidArgsError("registry", "tool name cannot be empty", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return NewToolAlreadyExistsError(name)
	}

	r.tools[name] = tool
	return nil
}

// MustRegister adds a tool and panics on error. Used for built-in tools.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Names returns the sorted names of all registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.tools))
	for name := range r.tools {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Subset returns a registry holding only the named tools. Every name must be
// registered.
func (r *Registry) Subset(names []string) (*Registry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub := NewRegistry()
	for _, name := range names {
		tool, ok := r.tools[name]
		if !ok {
			return nil, NewToolNotFoundError(name)
		}
		sub.tools[name] = tool
	}
	return sub, nil
}

// Execute runs a tool by name. Failures other than fatal ones come back as
// ToolExecutionError.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (ToolResult, error) {
	tool, ok := r.Get(name)
	if !ok {
		return ToolResult{}, AsExecutionError(name, NewToolNotFoundError(name))
	}

	result, err := tool.Execute(ctx, args)
	return result, AsExecutionError(name, err)
}

// ToProviderTools converts the registered tools to provider definitions,
// sorted by name so requests are stable across calls.
func (r *Registry) ToProviderTools() ([]provider.Tool, error) {
	list := r.List()
	result := make([]provider.Tool, 0, len(list))

	for _, tool := range list {
		paramsJSON, err := json.Marshal(tool.Parameters())
		if err != nil {
			return nil, NewInvalidArgsError(tool.Name(), "failed to marshal parameters", err)
		}

		result = append(result, provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  paramsJSON,
			},
		})
	}

	return result, nil
}
