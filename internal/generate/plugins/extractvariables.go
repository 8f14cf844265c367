package plugins

import (
	"context"
	"fmt"

	"github.com/apigee/apigee-templater/internal/generate"
)

// PatternConfig extracts a variable by pattern.
type PatternConfig struct {
	Name       string `json:"name"`
	IgnoreCase *bool  `json:"ignoreCase,omitempty"`
	Pattern    string `json:"pattern"`
}

// CaseInsensitive defaults to true.
func (p PatternConfig) CaseInsensitive() bool {
	return p.IgnoreCase == nil || *p.IgnoreCase
}

// PathConfig extracts a variable by JSONPath or XPath.
type PathConfig struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// ExtractVariablesConfig is the step payload of an ExtractVariables step.
type ExtractVariablesConfig struct {
	Name                      string          `json:"name"`
	IgnoreUnresolvedVariables *bool           `json:"ignoreUnresolvedVariables,omitempty"`
	VariablePrefix            string          `json:"variablePrefix"`
	Source                    string          `json:"source"`
	URIPaths                  []PatternConfig `json:"URIPaths"`
	QueryParams               []PatternConfig `json:"queryParams"`
	Headers                   []PatternConfig `json:"headers"`
	FormParams                []PatternConfig `json:"formParams"`
	Variables                 []PatternConfig `json:"variables"`
	JSONPaths                 []PathConfig    `json:"JSONPaths"`
	XMLPaths                  []PathConfig    `json:"XMLPaths"`
}

var extractVariablesSnippet = snippets.MustRegister("extract-variables", `
<ExtractVariables continueOnError="false" enabled="true" name="{{.Policy}}">
  <DisplayName>{{.Policy}}</DisplayName>
  {{- with .URIPaths}}
  <URIPath>
    {{- range .}}
    <Pattern ignoreCase="{{.CaseInsensitive}}">{{xml .Pattern}}</Pattern>
    {{- end}}
  </URIPath>
  {{- end}}
  {{- range .QueryParams}}
  <QueryParam name="{{xml .Name}}">
    <Pattern ignoreCase="{{.CaseInsensitive}}">{{xml .Pattern}}</Pattern>
  </QueryParam>
  {{- end}}
  {{- range .Headers}}
  <Header name="{{xml .Name}}">
    <Pattern ignoreCase="{{.CaseInsensitive}}">{{xml .Pattern}}</Pattern>
  </Header>
  {{- end}}
  {{- range .FormParams}}
  <FormParam name="{{xml .Name}}">
    <Pattern>{{xml .Pattern}}</Pattern>
  </FormParam>
  {{- end}}
  {{- range .Variables}}
  <Variable name="{{xml .Name}}">
    <Pattern>{{xml .Pattern}}</Pattern>
  </Variable>
  {{- end}}
  {{- with .JSONPaths}}
  <JSONPayload>
    {{- range .}}
    <Variable name="{{xml .Name}}"{{with .Type}} type="{{xml .}}"{{end}}>
      <JSONPath>{{xml .Path}}</JSONPath>
    </Variable>
    {{- end}}
  </JSONPayload>
  {{- end}}
  {{- with .XMLPaths}}
  <XMLPayload stopPayloadProcessing="false">
    <Namespaces/>
    {{- range .}}
    <Variable name="{{xml .Name}}"{{with .Type}} type="{{xml .}}"{{end}}>
      <XPath>{{xml .Path}}</XPath>
    </Variable>
    {{- end}}
  </XMLPayload>
  {{- end}}
  <Source clearPayload="false">{{.Source | default "message"}}</Source>
  {{- with .VariablePrefix}}
  <VariablePrefix>{{xml .}}</VariablePrefix>
  {{- end}}
  <IgnoreUnresolvedVariables>{{.IgnoreUnresolved}}</IgnoreUnresolvedVariables>
</ExtractVariables>`)

// ExtractVariables renders EV-<name> from an ExtractVariables step.
type ExtractVariables struct{}

func (ExtractVariables) ID() string { return "extract-variables" }

func (p ExtractVariables) Apply(_ context.Context, _ *generate.EndpointConfig, step *generate.ExtensionStep) (*generate.Result, error) {
	var config ExtractVariablesConfig
	if err := step.Decode(&config); err != nil {
		return nil, fmt.Errorf("invalid ExtractVariables step %s: %w", step.Name, err)
	}
	policy := "EV-" + step.Name
	contents, err := extractVariablesSnippet.RenderXML(struct {
		ExtractVariablesConfig
		Policy           string
		IgnoreUnresolved bool
	}{config, policy, config.IgnoreUnresolvedVariables == nil || *config.IgnoreUnresolvedVariables})
	if err != nil {
		return nil, err
	}
	res := generate.NewResult(p.ID())
	res.Add(policyPath(policy), contents, policy, step.FlowRunPoints...)
	return res, nil
}
