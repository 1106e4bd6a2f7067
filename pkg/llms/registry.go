package llms

import (
	"fmt"

	"github.com/striderhq/strider/pkg/registry"
)

// ProviderRegistry holds named LLM provider instances.
type ProviderRegistry struct {
	registry.Registry[Provider]
}

// NewProviderRegistry creates an empty provider registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{Registry: registry.NewBase[Provider]()}
}

// RegisterProvider registers a provider under its own name.
func (r *ProviderRegistry) RegisterProvider(p Provider) error {
	if p == nil {
		return fmt.Errorf("llms: cannot register nil provider")
	}
	return r.Register(p.Name(), p)
}

// GetProvider returns the named provider or an error listing what exists.
func (r *ProviderRegistry) GetProvider(name string) (Provider, error) {
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("llms: provider %q not found (registered: %v)", name, r.Names())
	}
	return p, nil
}
