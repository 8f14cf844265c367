package document

import "strings"

const featurePrefix = "feature-"

// NewTemplate returns an empty proxy template. Spaces in name become dashes.
// When basePath is set a default endpoint is created; when targetURL is set a
// default target is created and the default route points at it.
func NewTemplate(name, basePath, targetURL string) *Template {
	t := &Template{
		Name:        strings.ReplaceAll(name, " ", "-"),
		Type:        TypeProxy,
		Description: "API template for " + name,
		Features:    []string{},
		Parameters:  []Parameter{},
		Endpoints:   []ProxyEndpoint{},
		Targets:     []ProxyTarget{},
		Policies:    []Policy{},
		Resources:   []Resource{},
	}
	if basePath != "" {
		t.Endpoints = append(t.Endpoints, ProxyEndpoint{
			Endpoint: Endpoint{
				Name:     DefaultName,
				BasePath: basePath,
				Routes:   []Route{{Name: DefaultName}},
			},
			Flows: []Flow{},
		})
	}
	if targetURL != "" {
		t.Targets = append(t.Targets, ProxyTarget{
			Target: Target{Name: DefaultName, URL: targetURL},
			Flows:  []Flow{},
		})
		if len(t.Endpoints) > 0 && len(t.Endpoints[0].Routes) > 0 {
			t.Endpoints[0].Routes[0].Target = DefaultName
		}
	}
	return t
}

// TemplateToFeature turns a decoded proxy into a feature. The default
// endpoint and target become the feature's flow carriers; every other
// endpoint and target is contributed whole.
func TemplateToFeature(t *Template) *Feature {
	src := t.Clone()
	f := &Feature{
		Name:        strings.TrimPrefix(src.Name, featurePrefix),
		UID:         src.UID,
		DisplayName: src.DisplayName,
		Description: src.Description,
		Priority:    src.Priority,
		Categories:  src.Categories,
		Parameters:  src.Parameters,
		Endpoints:   []ProxyEndpoint{},
		Targets:     []ProxyTarget{},
		Policies:    src.Policies,
		Resources:   src.Resources,
		Tests:       src.Tests,
	}
	for i := range src.Endpoints {
		if src.Endpoints[i].Name == DefaultName {
			f.DefaultEndpoint = &src.Endpoints[i]
			continue
		}
		f.Endpoints = append(f.Endpoints, src.Endpoints[i])
	}
	for i := range src.Targets {
		if src.Targets[i].Name == DefaultName {
			f.DefaultTarget = &src.Targets[i]
			continue
		}
		f.Targets = append(f.Targets, src.Targets[i])
	}
	return f
}

// FeatureToTemplate materializes a feature as a standalone proxy named
// feature-<name>. A feature without endpoints gets a default endpoint on
// /<name> so the result is deployable.
func FeatureToTemplate(f *Feature) *Template {
	src := f.Clone()
	name := src.Name
	if !strings.HasPrefix(strings.ToLower(name), featurePrefix) {
		name = featurePrefix + name
	}
	t := &Template{
		Name:        name,
		Type:        TypeProxy,
		UID:         src.UID,
		DisplayName: src.DisplayName,
		Description: src.Description,
		Priority:    src.Priority,
		Categories:  src.Categories,
		Features:    []string{},
		Parameters:  src.Parameters,
		Endpoints:   []ProxyEndpoint{},
		Targets:     []ProxyTarget{},
		Policies:    src.Policies,
		Resources:   src.Resources,
		Tests:       src.Tests,
	}
	switch {
	case src.DefaultEndpoint != nil:
		t.Endpoints = append(t.Endpoints, *src.DefaultEndpoint)
	case len(src.Endpoints) == 0:
		t.Endpoints = append(t.Endpoints, ProxyEndpoint{
			Endpoint: Endpoint{
				Name:     DefaultName,
				BasePath: "/" + strings.ReplaceAll(strings.ToLower(name), " ", "-"),
				Routes:   []Route{{Name: DefaultName}},
			},
			Flows: []Flow{},
		})
	}
	if src.DefaultTarget != nil {
		t.Targets = append(t.Targets, *src.DefaultTarget)
	}
	t.Endpoints = append(t.Endpoints, src.Endpoints...)
	t.Targets = append(t.Targets, src.Targets...)
	if t.Policies == nil {
		t.Policies = []Policy{}
	}
	if t.Resources == nil {
		t.Resources = []Resource{}
	}
	return t
}
