package plugins

import (
	"context"

	"github.com/apigee/apigee-templater/internal/generate"
)

const (
	verifyKeyPolicy = "VA-VerifyKey"
	removeKeyPolicy = "AM-RemoveApiKey"
)

var verifyKeySnippet = snippets.MustRegister("verify-api-key", `
<VerifyAPIKey async="false" continueOnError="false" enabled="true" name="VA-VerifyKey">
  <DisplayName>VA-VerifyKey</DisplayName>
  <APIKey ref="{{xml .Ref}}"/>
</VerifyAPIKey>`)

var removeKeySnippet = snippets.MustRegister("remove-api-key", `
<AssignMessage async="false" continueOnError="false" enabled="true" name="AM-RemoveApiKey">
  <DisplayName>AM-RemoveApiKey</DisplayName>
  <Remove>
    {{- if .Header}}
    <Headers>
      <Header name="{{xml .Name}}"/>
    </Headers>
    {{- else}}
    <QueryParams>
      <QueryParam name="{{xml .Name}}"/>
    </QueryParams>
    {{- end}}
  </Remove>
  <IgnoreUnresolvedVariables>true</IgnoreUnresolvedVariables>
  <AssignTo createNew="false" transport="http" type="request"/>
</AssignMessage>`)

// APIKey verifies an API key and strips it from the request. The key is
// read from the apikey query parameter, or from the header named by the
// auth parameter "header".
type APIKey struct{}

func (APIKey) ID() string { return "auth-apikey" }

func (p APIKey) Apply(_ context.Context, ep *generate.EndpointConfig, _ *generate.ExtensionStep) (*generate.Result, error) {
	res := generate.NewResult(p.ID())
	auth := ep.AuthOf(generate.AuthAPIKey)
	if auth == nil {
		return res, nil
	}

	data := struct {
		Ref, Name string
		Header    bool
	}{Ref: "request.queryparam.apikey", Name: "apikey"}
	if header := auth.Parameters["header"]; header != "" {
		data.Ref, data.Name, data.Header = "request.header."+header, header, true
	}

	verify, err := verifyKeySnippet.RenderXML(data)
	if err != nil {
		return nil, err
	}
	remove, err := removeKeySnippet.RenderXML(data)
	if err != nil {
		return nil, err
	}
	res.Add(policyPath(verifyKeyPolicy), verify, verifyKeyPolicy, generate.At(generate.RunPointPreRequest))
	res.Add(policyPath(removeKeyPolicy), remove, removeKeyPolicy, generate.At(generate.RunPointPreRequest))
	return res, nil
}
