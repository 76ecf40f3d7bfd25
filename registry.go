package bscore

import (
	"io"
	"sync"
)

// RequestFunc synchronously executes one command against a backing store
// and sets cmd.Result. It is the only point at which the core calls into
// backend-specific code, and it is the only blocking step in a worker's
// loop.
type RequestFunc func(cmd *Command)

// Template is a backend kind registered under a name: file, block device,
// RBD, memory, etc. New instantiates one LU's worth of backend state from
// admin-supplied configuration, returning the RequestFunc the LU's Pool
// will call and something to Close when the LU is torn down.
type Template struct {
	Name string
	New  func(cfg map[string]string) (RequestFunc, io.Closer, error)
}

// Registry is a process-wide (or test-local) table of backend templates.
// Registration has no uniqueness check — callers are expected to arrange
// unique names by construction, the same way each backend's init()
// self-registers exactly once in the source this core is modeled on.
// Lookup is a linear scan returning the first name match; with at most a
// few dozen registered backend kinds this is never a bottleneck.
type Registry struct {
	mu        sync.RWMutex
	templates []Template
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds t to the registry. It is idempotent only by caller
// discipline: registering the same name twice yields two entries, and
// Lookup returns whichever was registered first.
func (r *Registry) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, t)
}

// Lookup returns the first registered template with the given name, or
// false if none matches.
func (r *Registry) Lookup(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// Names returns the registered template names in registration order.
// Intended for diagnostics; callers must not assume uniqueness.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.templates))
	for i, t := range r.templates {
		names[i] = t.Name
	}
	return names
}

// DefaultRegistry is the process-wide registry backends self-register
// into from an init() function, mirroring the source's single global
// backing-store template list.
var DefaultRegistry = NewRegistry()

// RegisterBackend registers t into DefaultRegistry.
func RegisterBackend(t Template) {
	DefaultRegistry.Register(t)
}

// LookupBackend looks up name in DefaultRegistry.
func LookupBackend(name string) (Template, bool) {
	return DefaultRegistry.Lookup(name)
}
