package plugins

import (
	"context"
	"fmt"

	"github.com/apigee/apigee-templater/internal/generate"
)

// FlowCalloutConfig is the step payload of a FlowCallout step. The shared
// flow defaults to the step name.
type FlowCalloutConfig struct {
	SharedFlow string            `json:"sharedFlow"`
	Parameters map[string]string `json:"parameters"`
}

var flowCalloutSnippet = snippets.MustRegister("flow-callout", `
<FlowCallout continueOnError="false" enabled="true" name="{{.Policy}}">
  <DisplayName>{{.Policy}}</DisplayName>
  <Parameters>
    {{- $params := .Parameters}}
    {{- range keys .Parameters}}
    <Parameter name="{{xml .}}">{{xml (index $params .)}}</Parameter>
    {{- end}}
  </Parameters>
  <SharedFlowBundle>{{xml .SharedFlow}}</SharedFlowBundle>
</FlowCallout>`)

// FlowCallout renders FC-<name> calling a shared flow.
type FlowCallout struct{}

func (FlowCallout) ID() string { return "flow-callout" }

func (p FlowCallout) Apply(_ context.Context, _ *generate.EndpointConfig, step *generate.ExtensionStep) (*generate.Result, error) {
	var config FlowCalloutConfig
	if err := step.Decode(&config); err != nil {
		return nil, fmt.Errorf("invalid FlowCallout step %s: %w", step.Name, err)
	}
	if config.SharedFlow == "" {
		config.SharedFlow = step.Name
	}
	if config.Parameters == nil {
		config.Parameters = map[string]string{}
	}
	policy := "FC-" + step.Name
	contents, err := flowCalloutSnippet.RenderXML(map[string]any{
		"Policy":     policy,
		"SharedFlow": config.SharedFlow,
		"Parameters": config.Parameters,
	})
	if err != nil {
		return nil, err
	}
	res := generate.NewResult(p.ID())
	res.Add(policyPath(policy), contents, policy, step.FlowRunPoints...)
	return res, nil
}
