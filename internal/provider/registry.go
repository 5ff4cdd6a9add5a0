package provider

import "fmt"

// Registry holds the configured verifiers and allows lookup by provider
// name. It performs no auth logic itself.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry registers the given verifiers by name. Nil entries are skipped
// so unconfigured providers can be passed through unchanged.
func NewRegistry(list ...Verifier) *Registry {
	m := make(map[string]Verifier)
	for _, v := range list {
		if v == nil {
			continue
		}
		m[v.Name()] = v
	}
	return &Registry{verifiers: m}
}

// Get returns the verifier registered under name
func (r *Registry) Get(name string) (Verifier, error) {
	v, ok := r.verifiers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return v, nil
}

// Names lists the registered provider names
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.verifiers))
	for name := range r.verifiers {
		names = append(names, name)
	}
	return names
}
