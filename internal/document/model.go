// Package document defines the normalized proxy document model shared by
// the bundle codec, the composition engine and the generation pipeline.
package document

// Template kinds.
const (
	TypeProxy      = "proxy"
	TypeSharedFlow = "sharedflow"
)

// DefaultName is reserved for a template's own endpoint and target.
const DefaultName = "default"

// DefaultPriority is used when a feature does not set one.
const DefaultPriority = 100

// Flow modes.
const (
	ModeRequest  = "Request"
	ModeResponse = "Response"
)

// Well-known flow names.
const (
	FlowPreFlow        = "PreFlow"
	FlowPostFlow       = "PostFlow"
	FlowPostClientFlow = "PostClientFlow"
	FlowEventFlow      = "EventFlow"
)

// Template is the root document: a proxy (or shared flow) together with
// the names of the features applied to it.
type Template struct {
	Name        string          `json:"name" yaml:"name"`
	Type        string          `json:"type,omitempty" yaml:"type,omitempty"`
	UID         string          `json:"uid,omitempty" yaml:"uid,omitempty"`
	DisplayName string          `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description string          `json:"description,omitempty" yaml:"description,omitempty"`
	Priority    int             `json:"priority,omitempty" yaml:"priority,omitempty"`
	Categories  []string        `json:"categories,omitempty" yaml:"categories,omitempty"`
	Features    []string        `json:"features" yaml:"features"`
	Parameters  []Parameter     `json:"parameters" yaml:"parameters"`
	Endpoints   []ProxyEndpoint `json:"endpoints" yaml:"endpoints"`
	Targets     []ProxyTarget   `json:"targets" yaml:"targets"`
	Policies    []Policy        `json:"policies" yaml:"policies"`
	Resources   []Resource      `json:"resources" yaml:"resources"`
	Tests       *Tree           `json:"tests,omitempty" yaml:"tests,omitempty"`
	Shadowed    []Shadowed      `json:"shadowed,omitempty" yaml:"shadowed,omitempty"`
}

// Shadowed holds an entity a feature replaced when it was applied. Exactly
// one of the entity fields is set. Removing the feature restores it.
type Shadowed struct {
	Feature  string         `json:"feature" yaml:"feature"`
	Endpoint *ProxyEndpoint `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Target   *ProxyTarget   `json:"target,omitempty" yaml:"target,omitempty"`
	Policy   *Policy        `json:"policy,omitempty" yaml:"policy,omitempty"`
	Resource *Resource      `json:"resource,omitempty" yaml:"resource,omitempty"`
}

// Endpoint is the client-facing entry point of a proxy.
type Endpoint struct {
	Name     string  `json:"name" yaml:"name"`
	BasePath string  `json:"basePath" yaml:"basePath"`
	Routes   []Route `json:"routes" yaml:"routes"`
}

// ProxyEndpoint is an Endpoint with its processing flows.
type ProxyEndpoint struct {
	Endpoint         `yaml:",inline"`
	Flows            []Flow     `json:"flows" yaml:"flows"`
	FaultRules       []Flow     `json:"faultRules,omitempty" yaml:"faultRules,omitempty"`
	DefaultFaultRule *FaultRule `json:"defaultFaultRule,omitempty" yaml:"defaultFaultRule,omitempty"`
}

// Route selects a target. Routes are evaluated in order; the first whose
// condition matches wins.
type Route struct {
	Name      string `json:"name" yaml:"name"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Target    string `json:"target,omitempty" yaml:"target,omitempty"`
}

// Flow is an ordered list of steps. Two flows with the same name, mode and
// condition are the same flow.
type Flow struct {
	Name      string `json:"name" yaml:"name"`
	Mode      string `json:"mode,omitempty" yaml:"mode,omitempty"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Steps     []Step `json:"steps" yaml:"steps"`
}

// SameAs reports whether f and o share an identity.
func (f Flow) SameAs(o Flow) bool {
	return f.Name == o.Name && f.Mode == o.Mode && f.Condition == o.Condition
}

// FaultRule is a flow that runs on error.
type FaultRule struct {
	Flow          `yaml:",inline"`
	AlwaysEnforce bool `json:"alwaysEnforce,omitempty" yaml:"alwaysEnforce,omitempty"`
}

// Step references a policy by name.
type Step struct {
	Name      string `json:"name" yaml:"name"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Target is a backend.
type Target struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// ProxyTarget is a Target with its flows and connection details.
type ProxyTarget struct {
	Target                `yaml:",inline"`
	Flows                 []Flow     `json:"flows" yaml:"flows"`
	FaultRules            []Flow     `json:"faultRules,omitempty" yaml:"faultRules,omitempty"`
	DefaultFaultRule      *FaultRule `json:"defaultFaultRule,omitempty" yaml:"defaultFaultRule,omitempty"`
	HTTPTargetConnection  *Tree      `json:"httpTargetConnection,omitempty" yaml:"httpTargetConnection,omitempty"`
	LocalTargetConnection *Tree      `json:"localTargetConnection,omitempty" yaml:"localTargetConnection,omitempty"`
	Auth                  string     `json:"auth,omitempty" yaml:"auth,omitempty"`
	Scopes                []string   `json:"scopes,omitempty" yaml:"scopes,omitempty"`
	Audience              string     `json:"audience,omitempty" yaml:"audience,omitempty"`
}

// Policy is a named processing unit whose body is kept as an opaque tree
// keyed by the policy type.
type Policy struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Content *Tree  `json:"content" yaml:"content"`
}

// Resource is a named file of a given type (jsc, properties, xsl, ...).
type Resource struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Content string `json:"content" yaml:"content"`
}

// Parameter is a named substitution value. Paths, when set, are JSONPath
// expressions into the feature where the value is written instead of
// replacing {name} tokens.
type Parameter struct {
	Name        string   `json:"name" yaml:"name"`
	DisplayName string   `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Examples    []string `json:"examples,omitempty" yaml:"examples,omitempty"`
	Default     string   `json:"default" yaml:"default"`
	Paths       []string `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// Feature is a reusable overlay applied to templates.
type Feature struct {
	Name            string          `json:"name" yaml:"name"`
	UID             string          `json:"uid,omitempty" yaml:"uid,omitempty"`
	DisplayName     string          `json:"displayName,omitempty" yaml:"displayName,omitempty"`
	Description     string          `json:"description,omitempty" yaml:"description,omitempty"`
	Priority        int             `json:"priority,omitempty" yaml:"priority,omitempty"`
	Categories      []string        `json:"categories,omitempty" yaml:"categories,omitempty"`
	Parameters      []Parameter     `json:"parameters" yaml:"parameters"`
	DefaultEndpoint *ProxyEndpoint  `json:"defaultEndpoint,omitempty" yaml:"defaultEndpoint,omitempty"`
	DefaultTarget   *ProxyTarget    `json:"defaultTarget,omitempty" yaml:"defaultTarget,omitempty"`
	Endpoints       []ProxyEndpoint `json:"endpoints" yaml:"endpoints"`
	Targets         []ProxyTarget   `json:"targets" yaml:"targets"`
	Policies        []Policy        `json:"policies" yaml:"policies"`
	Resources       []Resource      `json:"resources" yaml:"resources"`
	Tests           *Tree           `json:"tests,omitempty" yaml:"tests,omitempty"`
}

// EffectivePriority returns the feature priority, defaulting to 100.
func (f *Feature) EffectivePriority() int {
	if f.Priority == 0 {
		return DefaultPriority
	}
	return f.Priority
}

// Structural reports whether the feature contributes whole endpoints or targets.
func (f *Feature) Structural() bool {
	return len(f.Endpoints) > 0 || len(f.Targets) > 0
}

// HasFeature reports whether name is in t.Features.
func (t *Template) HasFeature(name string) bool {
	for _, f := range t.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Endpoint returns the endpoint with the given name, or nil.
func (t *Template) Endpoint(name string) *ProxyEndpoint {
	for i := range t.Endpoints {
		if t.Endpoints[i].Name == name {
			return &t.Endpoints[i]
		}
	}
	return nil
}

// Target returns the target with the given name, or nil.
func (t *Template) Target(name string) *ProxyTarget {
	for i := range t.Targets {
		if t.Targets[i].Name == name {
			return &t.Targets[i]
		}
	}
	return nil
}

// Policy returns the policy with the given name, or nil.
func (t *Template) Policy(name string) *Policy {
	for i := range t.Policies {
		if t.Policies[i].Name == name {
			return &t.Policies[i]
		}
	}
	return nil
}

// Parameter returns the parameter with the given name, or nil.
func (t *Template) Parameter(name string) *Parameter {
	for i := range t.Parameters {
		if t.Parameters[i].Name == name {
			return &t.Parameters[i]
		}
	}
	return nil
}
