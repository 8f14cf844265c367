package templates

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds named snippets
type Registry struct {
	engine   *Engine
	snippets map[string]*Snippet
	mutex    sync.RWMutex
}

// NewRegistry creates a new snippet registry
func NewRegistry(engine *Engine) *Registry {
	if engine == nil {
		engine = NewEngine()
	}
	return &Registry{
		engine:   engine,
		snippets: make(map[string]*Snippet),
	}
}

// Register parses source and stores it under name
func (r *Registry) Register(name, source string) (*Snippet, error) {
	snippet, err := r.engine.Parse(name, source)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.snippets[name]; exists {
		return nil, fmt.Errorf("snippet %s already registered", name)
	}
	r.snippets[name] = snippet
	return snippet, nil
}

// MustRegister is Register for package-level snippets.
func (r *Registry) MustRegister(name, source string) *Snippet {
	return Must(r.Register(name, source))
}

// Get retrieves a snippet by name
func (r *Registry) Get(name string) (*Snippet, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	snippet, exists := r.snippets[name]
	if !exists {
		return nil, fmt.Errorf("snippet %s not found", name)
	}
	return snippet, nil
}

// Names returns the registered snippet names in order
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.snippets))
	for name := range r.snippets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exists checks if a snippet exists
func (r *Registry) Exists(name string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	_, exists := r.snippets[name]
	return exists
}

// Unregister removes a snippet from the registry
func (r *Registry) Unregister(name string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.snippets[name]; !exists {
		return fmt.Errorf("snippet %s not found", name)
	}
	delete(r.snippets, name)
	return nil
}

// Render renders the named snippet as XML.
func (r *Registry) Render(name string, data any) (string, error) {
	snippet, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return snippet.RenderXML(data)
}
