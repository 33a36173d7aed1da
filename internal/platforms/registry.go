package platforms

import "fmt"

// Registry maps provider names to their adapters. Built once at bootstrap and
// injected wherever platform calls are made.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter under its platform name
func (r *Registry) Register(adapter Adapter) {
	r.adapters[adapter.Platform()] = adapter
}

// Get returns the adapter for a platform
func (r *Registry) Get(platform string) (Adapter, error) {
	adapter, ok := r.adapters[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlatform, platform)
	}
	return adapter, nil
}

// Platforms returns the registered platform names
func (r *Registry) Platforms() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
