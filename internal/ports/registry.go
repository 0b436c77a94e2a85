package ports

import "fmt"

var factories = make(map[string]Factory)

// Register adds a named port factory. It panics on duplicate
// registration, mirroring the teacher's global-registry-with-panic
// pattern (pkg/plugin/registry.go) used for its capture-source
// plugins.
func Register(name string, f Factory) {
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("ports: factory %q already registered", name))
	}
	factories[name] = f
}

// New constructs a Port by its registered name.
func New(name string) (Port, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("ports: no factory registered for %q", name)
	}
	return f(), nil
}
