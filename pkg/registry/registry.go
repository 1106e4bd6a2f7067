// Package registry provides a small generic name-to-item registry used by the
// tool and LLM provider registries. Registration happens once at process
// bootstrap; lookups are concurrent and read-mostly.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is the common behavior shared by all named registries.
type Registry[T any] interface {
	Register(name string, item T) error
	Get(name string) (T, bool)
	Names() []string
	Len() int
}

// Base is a mutex-guarded map implementing Registry.
type Base[T any] struct {
	mu    sync.RWMutex
	items map[string]T
}

// NewBase creates an empty registry.
func NewBase[T any]() *Base[T] {
	return &Base[T]{items: make(map[string]T)}
}

// Register adds an item under a unique name. Registering a duplicate name is
// an error: registries are populated once at bootstrap, so a collision is a
// configuration bug, not something to silently overwrite.
func (b *Base[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("registry: name cannot be empty")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.items[name]; exists {
		return fmt.Errorf("registry: %q already registered", name)
	}
	b.items[name] = item
	return nil
}

// Get returns the item registered under name.
func (b *Base[T]) Get(name string) (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	item, ok := b.items[name]
	return item, ok
}

// Names returns all registered names in sorted order.
func (b *Base[T]) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.items))
	for name := range b.items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered items.
func (b *Base[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.items)
}
