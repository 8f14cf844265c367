package generate

import (
	"encoding/json"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/apigee/apigee-templater/internal/document"
)

// DefaultProfile is used when an input names no profile.
const DefaultProfile = "default"

// TemplateInput describes a proxy or shared flow to generate.
type TemplateInput struct {
	Name       string            `json:"name" yaml:"name"`
	Profile    string            `json:"profile,omitempty" yaml:"profile,omitempty"`
	SharedFlow *EndpointConfig   `json:"sharedFlow,omitempty" yaml:"sharedFlow,omitempty"`
	Endpoints  []*EndpointConfig `json:"endpoints" yaml:"endpoints"`
}

// IsSharedFlow reports whether the input produces a shared flow bundle.
func (in *TemplateInput) IsSharedFlow() bool {
	return in.SharedFlow != nil
}

// ProfileName returns the profile, falling back to DefaultProfile.
func (in *TemplateInput) ProfileName() string {
	if in.Profile == "" {
		return DefaultProfile
	}
	return in.Profile
}

// AuthType names an authorization scheme.
type AuthType string

const (
	AuthNone          AuthType = "none"
	AuthBasic         AuthType = "basic"
	AuthBearer        AuthType = "bearer"
	AuthAPIKey        AuthType = "apiKey"
	AuthOAuth2        AuthType = "oauth2"
	AuthOpenIDConnect AuthType = "openIdConnect"
	AuthSharedFlow    AuthType = "sharedflow"
)

// AuthConfig configures endpoint authorization.
type AuthConfig struct {
	Type       AuthType          `json:"type" yaml:"type"`
	Parameters map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// QuotaConfig configures one quota.
type QuotaConfig struct {
	Count     int    `json:"count" yaml:"count"`
	TimeUnit  string `json:"timeUnit" yaml:"timeUnit"`
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// SpikeArrestConfig configures a spike arrest.
type SpikeArrestConfig struct {
	Rate string `json:"rate" yaml:"rate"`
}

// TargetAuth holds Google token settings for a target.
type TargetAuth struct {
	Audience   string   `json:"audience,omitempty" yaml:"audience,omitempty"`
	HeaderName string   `json:"headerName,omitempty" yaml:"headerName,omitempty"`
	Scopes     []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// TargetConfig describes the backend of an endpoint.
type TargetConfig struct {
	Name              string            `json:"name" yaml:"name"`
	URL               string            `json:"url,omitempty" yaml:"url,omitempty"`
	Query             string            `json:"query,omitempty" yaml:"query,omitempty"`
	Table             string            `json:"table,omitempty" yaml:"table,omitempty"`
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Servers           []string          `json:"servers,omitempty" yaml:"servers,omitempty"`
	Properties        map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
	GoogleIDToken     *TargetAuth       `json:"googleIdToken,omitempty" yaml:"googleIdToken,omitempty"`
	GoogleAccessToken *TargetAuth       `json:"googleAccessToken,omitempty" yaml:"googleAccessToken,omitempty"`
}

// EndpointConfig describes one proxy endpoint, or the shared flow.
type EndpointConfig struct {
	Name           string             `json:"name" yaml:"name"`
	BasePath       string             `json:"basePath" yaml:"basePath"`
	Target         TargetConfig       `json:"target" yaml:"target"`
	Auth           []AuthConfig       `json:"auth,omitempty" yaml:"auth,omitempty"`
	Quotas         []QuotaConfig      `json:"quotas,omitempty" yaml:"quotas,omitempty"`
	SpikeArrest    *SpikeArrestConfig `json:"spikeArrest,omitempty" yaml:"spikeArrest,omitempty"`
	Parameters     map[string]string  `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	ExtensionSteps []*ExtensionStep   `json:"extensionSteps,omitempty" yaml:"extensionSteps,omitempty"`

	// FileResults accumulates the results of earlier phases.
	FileResults []*Result `json:"fileResults,omitempty" yaml:"fileResults,omitempty"`
}

// AuthOf returns the first auth config of type t.
func (e *EndpointConfig) AuthOf(t AuthType) *AuthConfig {
	for i := range e.Auth {
		if e.Auth[i].Type == t {
			return &e.Auth[i]
		}
	}
	return nil
}

// clone copies the endpoint for one generation run: parameters are copied
// and accumulated results dropped.
func (e *EndpointConfig) clone() *EndpointConfig {
	c := *e
	c.Parameters = maps.Clone(e.Parameters)
	c.FileResults = nil
	return &c
}

// ExtensionStep is a plugin invocation. Type selects the plugin; the full
// step object is kept in Raw for the plugin to decode.
type ExtensionStep struct {
	Type          string
	Name          string
	FlowRunPoints []FlowRunPoint
	Raw           *document.Tree
}

type stepHeader struct {
	Type          string         `json:"type" yaml:"type"`
	Name          string         `json:"name" yaml:"name"`
	FlowRunPoints []FlowRunPoint `json:"flowRunPoints" yaml:"flowRunPoints"`
}

// UnmarshalJSON reads the step header and keeps the whole object.
func (s *ExtensionStep) UnmarshalJSON(data []byte) error {
	var h stepHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	raw := document.NewTree()
	if err := json.Unmarshal(data, raw); err != nil {
		return err
	}
	*s = ExtensionStep{Type: h.Type, Name: h.Name, FlowRunPoints: h.FlowRunPoints, Raw: raw}
	return nil
}

// UnmarshalYAML reads the step header and keeps the whole mapping.
func (s *ExtensionStep) UnmarshalYAML(node *yaml.Node) error {
	var h stepHeader
	if err := node.Decode(&h); err != nil {
		return err
	}
	raw := document.NewTree()
	if err := node.Decode(raw); err != nil {
		return err
	}
	*s = ExtensionStep{Type: h.Type, Name: h.Name, FlowRunPoints: h.FlowRunPoints, Raw: raw}
	return nil
}

// MarshalJSON writes the raw object, or the header when there is none.
func (s ExtensionStep) MarshalJSON() ([]byte, error) {
	if s.Raw != nil {
		return json.Marshal(s.Raw)
	}
	return json.Marshal(stepHeader{Type: s.Type, Name: s.Name, FlowRunPoints: s.FlowRunPoints})
}

// MarshalYAML mirrors MarshalJSON.
func (s ExtensionStep) MarshalYAML() (interface{}, error) {
	if s.Raw != nil {
		return s.Raw, nil
	}
	return stepHeader{Type: s.Type, Name: s.Name, FlowRunPoints: s.FlowRunPoints}, nil
}

// Decode unmarshals the raw step into v through its JSON form.
func (s *ExtensionStep) Decode(v any) error {
	data, err := s.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
