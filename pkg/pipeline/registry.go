package pipeline

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Opener)
)

// Register makes a backend available by name.
// It panics if called twice with the same name or a nil opener.
func Register(name string, open Opener) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if open == nil {
		panic("pipeline: Register opener is nil")
	}
	if _, dup := registry[name]; dup {
		panic("pipeline: Register called twice for backend " + name)
	}
	registry[name] = open
}

// Open creates a pipeline using the named backend.
func Open(name string, opts Options) (Pipeline, error) {
	registryMu.RLock()
	open, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	p, err := open(opts)
	if err != nil {
		return nil, WrapError(name, "open", err)
	}
	return p, nil
}

// Backends returns the sorted list of registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
