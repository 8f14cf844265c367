package document

// Clone returns a deep copy of the template.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	c := *t
	c.Categories = cloneStrings(t.Categories)
	c.Features = cloneStrings(t.Features)
	c.Parameters = cloneParameters(t.Parameters)
	c.Endpoints = cloneEndpoints(t.Endpoints)
	c.Targets = cloneTargets(t.Targets)
	c.Policies = clonePolicies(t.Policies)
	c.Resources = cloneResources(t.Resources)
	c.Tests = t.Tests.Clone()
	if t.Shadowed != nil {
		c.Shadowed = make([]Shadowed, len(t.Shadowed))
		for i, sh := range t.Shadowed {
			c.Shadowed[i] = sh.Clone()
		}
	}
	return &c
}

// Clone returns a deep copy of the shadowed entity.
func (s Shadowed) Clone() Shadowed {
	s.Endpoint = s.Endpoint.Clone()
	s.Target = s.Target.Clone()
	if s.Policy != nil {
		p := *s.Policy
		p.Content = s.Policy.Content.Clone()
		s.Policy = &p
	}
	if s.Resource != nil {
		r := *s.Resource
		s.Resource = &r
	}
	return s
}

// Clone returns a deep copy of the feature.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	c := *f
	c.Categories = cloneStrings(f.Categories)
	c.Parameters = cloneParameters(f.Parameters)
	c.DefaultEndpoint = f.DefaultEndpoint.Clone()
	c.DefaultTarget = f.DefaultTarget.Clone()
	c.Endpoints = cloneEndpoints(f.Endpoints)
	c.Targets = cloneTargets(f.Targets)
	c.Policies = clonePolicies(f.Policies)
	c.Resources = cloneResources(f.Resources)
	c.Tests = f.Tests.Clone()
	return &c
}

// Clone returns a deep copy of the endpoint.
func (e *ProxyEndpoint) Clone() *ProxyEndpoint {
	if e == nil {
		return nil
	}
	c := *e
	if e.Routes != nil {
		c.Routes = append([]Route(nil), e.Routes...)
	}
	c.Flows = cloneFlows(e.Flows)
	c.FaultRules = cloneFlows(e.FaultRules)
	c.DefaultFaultRule = e.DefaultFaultRule.Clone()
	return &c
}

// Clone returns a deep copy of the target.
func (t *ProxyTarget) Clone() *ProxyTarget {
	if t == nil {
		return nil
	}
	c := *t
	c.Flows = cloneFlows(t.Flows)
	c.FaultRules = cloneFlows(t.FaultRules)
	c.DefaultFaultRule = t.DefaultFaultRule.Clone()
	c.HTTPTargetConnection = t.HTTPTargetConnection.Clone()
	c.LocalTargetConnection = t.LocalTargetConnection.Clone()
	c.Scopes = cloneStrings(t.Scopes)
	return &c
}

// Clone returns a deep copy of the fault rule.
func (r *FaultRule) Clone() *FaultRule {
	if r == nil {
		return nil
	}
	c := *r
	c.Flow = r.Flow.Clone()
	return &c
}

// Clone returns a deep copy of the flow.
func (f Flow) Clone() Flow {
	if f.Steps != nil {
		f.Steps = append([]Step(nil), f.Steps...)
	}
	return f
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneParameters(ps []Parameter) []Parameter {
	if ps == nil {
		return nil
	}
	out := make([]Parameter, len(ps))
	for i, p := range ps {
		p.Examples = cloneStrings(p.Examples)
		p.Paths = cloneStrings(p.Paths)
		out[i] = p
	}
	return out
}

func cloneFlows(fs []Flow) []Flow {
	if fs == nil {
		return nil
	}
	out := make([]Flow, len(fs))
	for i, f := range fs {
		out[i] = f.Clone()
	}
	return out
}

func cloneEndpoints(es []ProxyEndpoint) []ProxyEndpoint {
	if es == nil {
		return nil
	}
	out := make([]ProxyEndpoint, len(es))
	for i := range es {
		out[i] = *es[i].Clone()
	}
	return out
}

func cloneTargets(ts []ProxyTarget) []ProxyTarget {
	if ts == nil {
		return nil
	}
	out := make([]ProxyTarget, len(ts))
	for i := range ts {
		out[i] = *ts[i].Clone()
	}
	return out
}

func clonePolicies(ps []Policy) []Policy {
	if ps == nil {
		return nil
	}
	out := make([]Policy, len(ps))
	for i, p := range ps {
		p.Content = p.Content.Clone()
		out[i] = p
	}
	return out
}

func cloneResources(rs []Resource) []Resource {
	if rs == nil {
		return nil
	}
	return append([]Resource(nil), rs...)
}
