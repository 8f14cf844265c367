package generate

import (
	"maps"
	"sort"
	"sync"

	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// FallbackExtension is the extension type used for steps without a type.
const FallbackExtension = ""

// Profile is the plugin set used for one kind of generation.
type Profile struct {
	Name       string
	Plugins    []Plugin
	Extensions map[string]Plugin
	Finalizers []Plugin
}

func (p *Profile) clone() *Profile {
	c := *p
	c.Plugins = append([]Plugin(nil), p.Plugins...)
	c.Finalizers = append([]Plugin(nil), p.Finalizers...)
	c.Extensions = maps.Clone(p.Extensions)
	if c.Extensions == nil {
		c.Extensions = map[string]Plugin{}
	}
	return &c
}

// Registry manages generation profiles
type Registry struct {
	profiles map[string]*Profile
	mutex    sync.RWMutex
}

// NewRegistry creates an empty profile registry
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]*Profile),
	}
}

// SetProfile adds or replaces a profile
func (r *Registry) SetProfile(p *Profile) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.profiles[p.Name] = p.clone()
}

// Profile returns a snapshot of the named profile
func (r *Registry) Profile(name string) (*Profile, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	p, exists := r.profiles[name]
	if !exists {
		return nil, terrors.NewUnknownProfile(name)
	}
	return p.clone(), nil
}

// Names returns the registered profile names in order
func (r *Registry) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetPlugin replaces the plugin with the same ID in the profile's base
// plugins, finalizers or extensions, searched in that order. It reports
// whether a plugin was replaced.
func (r *Registry) SetPlugin(profile string, plugin Plugin) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, exists := r.profiles[profile]
	if !exists {
		return false, terrors.NewUnknownProfile(profile)
	}
	for _, list := range [][]Plugin{p.Plugins, p.Finalizers} {
		for i := range list {
			if list[i].ID() == plugin.ID() {
				list[i] = plugin
				return true, nil
			}
		}
	}
	keys := make([]string, 0, len(p.Extensions))
	for k := range p.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if p.Extensions[k].ID() == plugin.ID() {
			p.Extensions[k] = plugin
			return true, nil
		}
	}
	return false, nil
}

// SetExtension registers plugin for steps of the given type.
func (r *Registry) SetExtension(profile, stepType string, plugin Plugin) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	p, exists := r.profiles[profile]
	if !exists {
		return terrors.NewUnknownProfile(profile)
	}
	p.Extensions[stepType] = plugin
	return nil
}
