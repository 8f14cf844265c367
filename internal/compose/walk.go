package compose

import "github.com/apigee/apigee-templater/internal/document"

// stringMapper rewrites the string content of a feature. When names is set
// entity names (policies, resources, endpoints, targets, steps) are
// rewritten too.
type stringMapper struct {
	fn    func(string) string
	names bool
}

func (m stringMapper) feature(f *document.Feature) {
	if f.DefaultEndpoint != nil {
		m.endpoint(f.DefaultEndpoint)
	}
	if f.DefaultTarget != nil {
		m.target(f.DefaultTarget)
	}
	for i := range f.Endpoints {
		m.endpoint(&f.Endpoints[i])
	}
	for i := range f.Targets {
		m.target(&f.Targets[i])
	}
	for i := range f.Policies {
		p := &f.Policies[i]
		if m.names {
			p.Name = m.fn(p.Name)
		}
		p.Content.MapStrings(m.fn)
	}
	for i := range f.Resources {
		r := &f.Resources[i]
		if m.names {
			r.Name = m.fn(r.Name)
		}
		r.Content = m.fn(r.Content)
	}
}

func (m stringMapper) endpoint(e *document.ProxyEndpoint) {
	if m.names {
		e.Name = m.fn(e.Name)
	}
	e.BasePath = m.fn(e.BasePath)
	for i := range e.Routes {
		e.Routes[i].Condition = m.fn(e.Routes[i].Condition)
		if m.names {
			e.Routes[i].Target = m.fn(e.Routes[i].Target)
		}
	}
	m.flows(e.Flows)
	m.flows(e.FaultRules)
	if e.DefaultFaultRule != nil {
		m.flow(&e.DefaultFaultRule.Flow)
	}
}

func (m stringMapper) target(t *document.ProxyTarget) {
	if m.names {
		t.Name = m.fn(t.Name)
	}
	t.URL = m.fn(t.URL)
	t.Audience = m.fn(t.Audience)
	for i := range t.Scopes {
		t.Scopes[i] = m.fn(t.Scopes[i])
	}
	m.flows(t.Flows)
	m.flows(t.FaultRules)
	if t.DefaultFaultRule != nil {
		m.flow(&t.DefaultFaultRule.Flow)
	}
	t.HTTPTargetConnection.MapStrings(m.fn)
	t.LocalTargetConnection.MapStrings(m.fn)
}

func (m stringMapper) flows(flows []document.Flow) {
	for i := range flows {
		m.flow(&flows[i])
	}
}

func (m stringMapper) flow(f *document.Flow) {
	f.Condition = m.fn(f.Condition)
	for i := range f.Steps {
		if m.names {
			f.Steps[i].Name = m.fn(f.Steps[i].Name)
		}
		f.Steps[i].Condition = m.fn(f.Steps[i].Condition)
	}
}

// renameSteps renames step references found in names.
func renameSteps(f *document.Feature, names map[string]string) {
	rename := func(fl *document.Flow) {
		for i := range fl.Steps {
			if n, ok := names[fl.Steps[i].Name]; ok {
				fl.Steps[i].Name = n
			}
		}
	}
	forEachFlow(f, rename)
}

// forEachFlow visits every flow, fault rule and default fault rule of the
// feature's endpoints and targets.
func forEachFlow(f *document.Feature, visit func(*document.Flow)) {
	endpoint := func(e *document.ProxyEndpoint) {
		for i := range e.Flows {
			visit(&e.Flows[i])
		}
		for i := range e.FaultRules {
			visit(&e.FaultRules[i])
		}
		if e.DefaultFaultRule != nil {
			visit(&e.DefaultFaultRule.Flow)
		}
	}
	target := func(t *document.ProxyTarget) {
		for i := range t.Flows {
			visit(&t.Flows[i])
		}
		for i := range t.FaultRules {
			visit(&t.FaultRules[i])
		}
		if t.DefaultFaultRule != nil {
			visit(&t.DefaultFaultRule.Flow)
		}
	}
	if f.DefaultEndpoint != nil {
		endpoint(f.DefaultEndpoint)
	}
	if f.DefaultTarget != nil {
		target(f.DefaultTarget)
	}
	for i := range f.Endpoints {
		endpoint(&f.Endpoints[i])
	}
	for i := range f.Targets {
		target(&f.Targets[i])
	}
}
