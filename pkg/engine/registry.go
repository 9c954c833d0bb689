package engine

import (
	"fmt"
	"sort"
	"sync"
)

// Loader produces a module. Loading may fail, in which case the next source
// is tried.
type Loader func() (*Module, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Loader)
)

// Register adds a module loader to the registry.
// Called by module implementations in their init() functions.
func Register(name string, loader Loader) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = loader
}

// Get retrieves a module loader by name.
func Get(name string) (Loader, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	l, ok := registry[name]
	return l, ok
}

// ListModules returns all registered module names (sorted).
func ListModules() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a module is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[name]
	return ok
}

// UnknownModuleError is returned when a module source is not registered.
type UnknownModuleError struct {
	Name      string
	Available []string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown engine module %q (available: %v)", e.Name, e.Available)
}
