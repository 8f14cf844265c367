package plugins

import (
	"context"
	"sort"
	"strings"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/document"
	"github.com/apigee/apigee-templater/internal/generate"
)

const targetHeadersPolicy = "AM-SetAutoTargetHeaders"

var targetHeadersSnippet = snippets.MustRegister("target-headers", `
<AssignMessage continueOnError="false" enabled="true" name="AM-SetAutoTargetHeaders">
  <DisplayName>AM-SetAutoTargetHeaders</DisplayName>
  <Properties/>
  <Set>
    <Headers>
      {{- $headers := .}}
      {{- range keys .}}
      <Header name="{{xml .}}">{{xml (index $headers .)}}</Header>
      {{- end}}
    </Headers>
  </Set>
  <IgnoreUnresolvedVariables>true</IgnoreUnresolvedVariables>
  <AssignTo createNew="false" transport="http" type="request"/>
</AssignMessage>`)

// Targets writes /targets/<target>.xml from the policies placed at the
// preTarget, postTarget and targetFault run points.
type Targets struct{}

func (Targets) ID() string { return "targets" }

func (p Targets) Apply(_ context.Context, ep *generate.EndpointConfig, _ *generate.ExtensionStep) (*generate.Result, error) {
	res := generate.NewResult(p.ID())
	target := ep.Target
	if target.URL == "" && len(target.Servers) == 0 {
		return res, nil
	}

	pt := targetEndpoint(ep)
	if len(target.Headers) > 0 {
		contents, err := targetHeadersSnippet.RenderXML(target.Headers)
		if err != nil {
			return nil, err
		}
		res.Add(policyPath(targetHeadersPolicy), contents, "")
		pt.Flows[0].Steps = append([]document.Step{{Name: targetHeadersPolicy}}, pt.Flows[0].Steps...)
	}

	pt.HTTPTargetConnection = targetConnection(target)
	contents, err := encode(bundle.EncodeTarget(pt))
	if err != nil {
		return nil, err
	}
	res.Add("/targets/"+pt.Name+".xml", contents, "")
	return res, nil
}

// targetEndpoint collects the target-side placements. Flows[0] is always
// the PreFlow request flow.
func targetEndpoint(ep *generate.EndpointConfig) *document.ProxyTarget {
	name := ep.Target.Name
	if name == "" {
		name = document.DefaultName
	}
	pre := document.Flow{Name: document.FlowPreFlow, Mode: document.ModeRequest, Steps: []document.Step{}}
	post := document.Flow{Name: document.FlowPostFlow, Mode: document.ModeResponse, Steps: []document.Step{}}
	var faults []document.Flow
	for _, s := range generate.Placements(ep) {
		step := document.Step{Name: s.Policy, Condition: s.StepCondition}
		switch s.RunPoint {
		case generate.RunPointPreTarget:
			pre.Steps = append(pre.Steps, step)
		case generate.RunPointPostTarget:
			post.Steps = append(post.Steps, step)
		case generate.RunPointTargetFault:
			faults = append(faults, document.Flow{
				Name:      s.Policy,
				Condition: s.StepCondition,
				Steps:     []document.Step{{Name: s.Policy}},
			})
		}
	}
	return &document.ProxyTarget{
		Target:     document.Target{Name: name},
		Flows:      []document.Flow{pre, post},
		FaultRules: faults,
	}
}

func targetConnection(target generate.TargetConfig) *document.Tree {
	conn := document.NewTree()

	props := document.NewTree()
	keys := make([]string, 0, len(target.Properties))
	for k := range target.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]any, 0, len(keys))
	for _, k := range keys {
		items = append(items, document.NewTree().SetAttr("name", k).Set(document.TextKey, target.Properties[k]))
	}
	if len(items) > 0 {
		props.Set("Property", document.Cardinality(items))
	}
	conn.Set("Properties", props)

	if target.URL != "" {
		conn.Set("URL", withScheme(target.URL))
	}
	if len(target.Servers) > 0 {
		servers := make([]any, 0, len(target.Servers))
		for _, s := range target.Servers {
			servers = append(servers, document.NewTree().SetAttr("name", s))
		}
		conn.Set("LoadBalancer", document.NewTree().Set("Server", document.Cardinality(servers)))
	}

	switch {
	case target.GoogleIDToken != nil:
		auth := document.NewTree()
		if target.GoogleIDToken.HeaderName != "" {
			auth.Set("HeaderName", target.GoogleIDToken.HeaderName)
		}
		auth.Set("GoogleIDToken", document.NewTree().Set("Audience", target.GoogleIDToken.Audience))
		conn.Set("Authentication", auth)
	case target.GoogleAccessToken != nil:
		scopes := make([]any, 0, len(target.GoogleAccessToken.Scopes))
		for _, s := range target.GoogleAccessToken.Scopes {
			scopes = append(scopes, s)
		}
		token := document.NewTree()
		if len(scopes) > 0 {
			token.Set("Scopes", document.NewTree().Set("Scope", document.Cardinality(scopes)))
		}
		conn.Set("Authentication", document.NewTree().Set("GoogleAccessToken", token))
	}
	return conn
}

// withScheme prefixes https:// unless url already names an http(s) scheme.
func withScheme(url string) string {
	if strings.HasPrefix(url, "http") {
		return url
	}
	return "https://" + url
}
