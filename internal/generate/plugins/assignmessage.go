package plugins

import (
	"context"
	"fmt"

	"github.com/apigee/apigee-templater/internal/generate"
)

// AssignVariableConfig assigns one flow variable.
type AssignVariableConfig struct {
	Name             string `json:"name"`
	PropertySetRef   string `json:"propertySetRef"`
	Ref              string `json:"ref"`
	ResourceURL      string `json:"resourceURL"`
	TemplateVariable string `json:"templateVariable"`
	TemplateMessage  string `json:"templateMessage"`
	Value            string `json:"value"`
}

// AssignElementConfig is a named message element.
type AssignElementConfig struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AssignContentConfig lists the message parts to add, copy or remove.
type AssignContentConfig struct {
	FormParams  []AssignElementConfig `json:"formParams"`
	Headers     []AssignElementConfig `json:"headers"`
	QueryParams []AssignElementConfig `json:"queryParams"`
	Path        bool                  `json:"path"`
	Payload     bool                  `json:"payload"`
	StatusCode  bool                  `json:"statusCode"`
	Verb        bool                  `json:"verb"`
	Version     bool                  `json:"version"`
}

// AssignPayloadConfig is a payload to set.
type AssignPayloadConfig struct {
	ContentType    string `json:"contentType"`
	VariablePrefix string `json:"variablePrefix"`
	VariableSuffix string `json:"variableSuffix"`
	NewPayload     string `json:"newPayload"`
}

// AssignSetConfig lists the message parts to set.
type AssignSetConfig struct {
	FormParams  []AssignElementConfig `json:"formParams"`
	Headers     []AssignElementConfig `json:"headers"`
	QueryParams []AssignElementConfig `json:"queryParams"`
	Path        string                `json:"path"`
	Payload     *AssignPayloadConfig  `json:"payload"`
	StatusCode  string                `json:"statusCode"`
	Verb        string                `json:"verb"`
	Version     string                `json:"version"`
}

// AssignMessageConfig is the step payload of an AssignMessage step.
type AssignMessageConfig struct {
	ContinueOnError           bool                   `json:"continueOnError"`
	IgnoreUnresolvedVariables bool                   `json:"ignoreUnresolvedVariables"`
	AssignTo                  string                 `json:"assignTo"`
	AssignVariables           []AssignVariableConfig `json:"assignVariables"`
	Add                       *AssignContentConfig   `json:"add"`
	Copy                      *AssignContentConfig   `json:"copy"`
	Remove                    *AssignContentConfig   `json:"remove"`
	Set                       *AssignSetConfig       `json:"set"`
}

var assignMessageSnippet = snippets.MustRegister("assign-message", `
{{- define "elements"}}
  {{- with .FormParams}}
  <FormParams>
    {{- range .}}
    <FormParam name="{{xml .Name}}">{{xml .Value}}</FormParam>
    {{- end}}
  </FormParams>
  {{- end}}
  {{- with .Headers}}
  <Headers>
    {{- range .}}
    <Header name="{{xml .Name}}">{{xml .Value}}</Header>
    {{- end}}
  </Headers>
  {{- end}}
  {{- with .QueryParams}}
  <QueryParams>
    {{- range .}}
    <QueryParam name="{{xml .Name}}">{{xml .Value}}</QueryParam>
    {{- end}}
  </QueryParams>
  {{- end}}
{{- end}}
{{- define "flags"}}
  {{- if .Path}}<Path>true</Path>{{end}}
  {{- if .Payload}}<Payload>true</Payload>{{end}}
  {{- if .StatusCode}}<StatusCode>true</StatusCode>{{end}}
  {{- if .Verb}}<Verb>true</Verb>{{end}}
  {{- if .Version}}<Version>true</Version>{{end}}
{{- end}}
<AssignMessage continueOnError="{{.ContinueOnError}}" enabled="true" name="{{xml .Policy}}">
  <DisplayName>{{xml .Policy}}</DisplayName>
  {{- range .AssignVariables}}
  <AssignVariable>
    <Name>{{xml .Name}}</Name>
    {{- with .PropertySetRef}}<PropertySetRef>{{xml .}}</PropertySetRef>{{end}}
    {{- with .Ref}}<Ref>{{xml .}}</Ref>{{end}}
    {{- with .ResourceURL}}<ResourceURL>{{xml .}}</ResourceURL>{{end}}
    {{- with .TemplateMessage}}<Template>{{xml .}}</Template>{{end}}
    {{- with .TemplateVariable}}<Template ref="{{xml .}}"/>{{end}}
    {{- with .Value}}<Value>{{xml .}}</Value>{{end}}
  </AssignVariable>
  {{- end}}
  {{- with .Add}}
  <Add>{{template "elements" .}}</Add>
  {{- end}}
  {{- with .Copy}}
  <Copy>{{template "elements" .}}{{template "flags" .}}</Copy>
  {{- end}}
  {{- with .Remove}}
  <Remove>{{template "elements" .}}{{template "flags" .}}</Remove>
  {{- end}}
  {{- with .Set}}
  <Set>
    {{- template "elements" .}}
    {{- with .Path}}<Path>{{xml .}}</Path>{{end}}
    {{- with .Payload}}
    <Payload contentType="{{xml .ContentType}}"{{with .VariablePrefix}} variablePrefix="{{xml .}}"{{end}}{{with .VariableSuffix}} variableSuffix="{{xml .}}"{{end}}>{{xml .NewPayload}}</Payload>
    {{- end}}
    {{- with .StatusCode}}<StatusCode>{{xml .}}</StatusCode>{{end}}
    {{- with .Verb}}<Verb>{{xml .}}</Verb>{{end}}
    {{- with .Version}}<Version>{{xml .}}</Version>{{end}}
  </Set>
  {{- end}}
  {{- if .IgnoreUnresolvedVariables}}
  <IgnoreUnresolvedVariables>true</IgnoreUnresolvedVariables>
  {{- end}}
  {{- with .AssignTo}}
  <AssignTo createNew="false" transport="http" type="{{xml .}}"/>
  {{- end}}
</AssignMessage>`)

// AssignMessage renders a policy named after the step.
type AssignMessage struct{}

func (AssignMessage) ID() string { return "assign-message" }

func (p AssignMessage) Apply(_ context.Context, _ *generate.EndpointConfig, step *generate.ExtensionStep) (*generate.Result, error) {
	var config AssignMessageConfig
	if err := step.Decode(&config); err != nil {
		return nil, fmt.Errorf("invalid AssignMessage step %s: %w", step.Name, err)
	}
	contents, err := assignMessageSnippet.RenderXML(struct {
		AssignMessageConfig
		Policy string
	}{config, step.Name})
	if err != nil {
		return nil, err
	}
	res := generate.NewResult(p.ID())
	res.Add(policyPath(step.Name), contents, step.Name, step.FlowRunPoints...)
	return res, nil
}
