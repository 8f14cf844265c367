package plugins

import (
	"context"

	"github.com/apigee/apigee-templater/internal/generate"
)

const verifyJWTPolicy = "VerifyJWT"

// AuthSharedFlowBundle is the shared flow the VerifyJWT callout invokes.
const AuthSharedFlowBundle = "Shared-Flow_GCP_API"

var verifyJWTSnippet = snippets.MustRegister("verify-jwt", `
<FlowCallout continueOnError="false" enabled="true" name="VerifyJWT">
  <DisplayName>VerifyJWT</DisplayName>
  <FaultRules/>
  <Properties/>
  <Parameters>
    {{- range .Parameters}}
    <Parameter name="{{.Name}}">{{xml .Value}}</Parameter>
    {{- end}}
  </Parameters>
  <SharedFlowBundle>{{.Bundle}}</SharedFlowBundle>
</FlowCallout>`)

// sharedFlowAuthParameters are passed through to the callout when set.
var sharedFlowAuthParameters = []string{"audience", "roles", "issuerVer1", "issuerVer2"}

// AuthSharedFlow calls the JWT verification shared flow before the request.
type AuthSharedFlow struct{}

func (AuthSharedFlow) ID() string { return "auth-sharedflow" }

func (p AuthSharedFlow) Apply(_ context.Context, ep *generate.EndpointConfig, _ *generate.ExtensionStep) (*generate.Result, error) {
	res := generate.NewResult(p.ID())
	auth := ep.AuthOf(generate.AuthSharedFlow)
	if auth == nil {
		return res, nil
	}

	type parameter struct{ Name, Value string }
	var params []parameter
	for _, name := range sharedFlowAuthParameters {
		if v := auth.Parameters[name]; v != "" {
			params = append(params, parameter{name, v})
		}
	}
	contents, err := verifyJWTSnippet.RenderXML(map[string]any{
		"Parameters": params,
		"Bundle":     AuthSharedFlowBundle,
	})
	if err != nil {
		return nil, err
	}
	res.Add(policyPath(verifyJWTPolicy), contents, verifyJWTPolicy, generate.At(generate.RunPointPreRequest))
	return res, nil
}
