package tools

import (
	"fmt"

	"github.com/striderhq/strider/pkg/registry"
)

// Registry holds the tools available to a run.
type Registry struct {
	registry.Registry[Tool]
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{Registry: registry.NewBase[Tool]()}
}

// RegisterTool registers a tool under its spec name.
func (r *Registry) RegisterTool(t Tool) error {
	if t == nil {
		return fmt.Errorf("tools: cannot register nil tool")
	}
	return r.Register(t.Spec().Name, t)
}

// GetTool resolves a tool by name, returning UnknownToolError when absent.
func (r *Registry) GetTool(name string) (Tool, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, &UnknownToolError{Name: name, Known: r.Names()}
	}
	return t, nil
}

// Specs returns the specs of all registered tools in name order.
func (r *Registry) Specs() []ToolSpec {
	names := r.Names()
	specs := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		if t, ok := r.Get(name); ok {
			specs = append(specs, t.Spec())
		}
	}
	return specs
}
