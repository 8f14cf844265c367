package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
)

func steps(names ...string) []document.Step {
	out := make([]document.Step, 0, len(names))
	for _, n := range names {
		out = append(out, document.Step{Name: n})
	}
	return out
}

func policy(name, kind string) document.Policy {
	return document.Policy{
		Name:    name,
		Type:    kind,
		Content: document.NewTree().Set(kind, document.NewTree().SetAttr("name", name)),
	}
}

func baseTemplate() *document.Template {
	t := document.NewTemplate("petstore", "/petstore", "https://petstore.swagger.io")
	t.Endpoints[0].Flows = []document.Flow{{Name: "PreFlow", Mode: "Request", Steps: steps("A", "B")}}
	t.Policies = []document.Policy{policy("A", "AssignMessage"), policy("B", "AssignMessage")}
	return t
}

func apiKeyFeature() *document.Feature {
	verify := policy("VA-VerifyKey", "VerifyAPIKey")
	verify.Content.Child("VerifyAPIKey").Set("APIKey", document.NewTree().SetAttr("ref", "request.header.{headerName}"))
	remove := policy("AM-RemoveKey", "AssignMessage")
	remove.Content.Child("AssignMessage").Set("Remove", document.NewTree().Set("Headers",
		document.NewTree().Set("Header", document.NewTree().SetAttr("name", "{headerName}"))))

	return &document.Feature{
		Name:       "auth-apikey-header",
		Parameters: []document.Parameter{{Name: "headerName", Default: "x-api-key"}},
		DefaultEndpoint: &document.ProxyEndpoint{
			Endpoint: document.Endpoint{Name: "default"},
			Flows: []document.Flow{
				{Name: "PreFlow", Mode: "Request", Steps: steps("VA-VerifyKey", "AM-RemoveKey")},
			},
			DefaultFaultRule: &document.FaultRule{Flow: document.Flow{Name: "all", Steps: steps("AM-Fault")}},
		},
		Policies: []document.Policy{verify, remove},
	}
}

func TestApply_PrependsFlowSteps(t *testing.T) {
	engine := NewEngine(nil)
	feature := &document.Feature{
		Name: "c",
		DefaultEndpoint: &document.ProxyEndpoint{
			Flows: []document.Flow{
				{Name: "PreFlow", Mode: "Request", Steps: steps("C")},
				{Name: "PostFlow", Mode: "Response", Steps: steps("D")},
			},
		},
	}

	out, err := engine.Apply(baseTemplate(), feature, nil)
	require.NoError(t, err)

	flows := out.Endpoints[0].Flows
	require.Len(t, flows, 2)
	assert.Equal(t, steps("C", "A", "B"), flows[0].Steps)
	assert.Equal(t, document.Flow{Name: "PostFlow", Mode: "Response", Steps: steps("D")}, flows[1])
}

func TestApply_AuthAPIKeyHeader(t *testing.T) {
	engine := NewEngine(nil)
	tmpl := document.NewTemplate("petstore", "/petstore", "https://petstore.swagger.io")
	tmpl.Policies = []document.Policy{policy("AM-SetTarget", "AssignMessage")}

	out, err := engine.Apply(tmpl, apiKeyFeature(), nil)
	require.NoError(t, err)

	assert.Len(t, out.Policies, 3)
	assert.Equal(t, []string{"auth-apikey-header"}, out.Features)
	assert.Equal(t, "request.header.x-api-key", out.Policy("VA-VerifyKey").Content.Child("VerifyAPIKey").Child("APIKey").Attr("ref"))

	recorded := out.Parameter("auth-apikey-header.headerName")
	require.NotNil(t, recorded)
	assert.Equal(t, "x-api-key", recorded.Default)

	require.NotNil(t, out.Endpoints[0].DefaultFaultRule)
	assert.Equal(t, "all", out.Endpoints[0].DefaultFaultRule.Name)

	assert.Len(t, tmpl.Policies, 1, "input template is not mutated")
}

func TestApply_CallerParameters(t *testing.T) {
	engine := NewEngine(nil)

	tests := []struct {
		name   string
		params map[string]string
		want   string
	}{
		{"default", nil, "x-api-key"},
		{"bare name", map[string]string{"headerName": "apikey"}, "apikey"},
		{"qualified wins", map[string]string{"headerName": "apikey", "auth-apikey-header.headerName": "key"}, "key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := engine.Apply(baseTemplate(), apiKeyFeature(), tt.params)
			require.NoError(t, err)
			remove := out.Policy("AM-RemoveKey").Content.Child("AssignMessage").Child("Remove").Child("Headers").Child("Header")
			assert.Equal(t, tt.want, remove.Attr("name"))
			assert.Equal(t, tt.want, out.Parameter("auth-apikey-header.headerName").Default)
		})
	}
}

func TestApply_Twice(t *testing.T) {
	engine := NewEngine(nil)
	once, err := engine.Apply(baseTemplate(), apiKeyFeature(), nil)
	require.NoError(t, err)
	before := once.Clone()

	_, err = engine.Apply(once, apiKeyFeature(), nil)
	require.Error(t, err)
	assert.True(t, terrors.HasCode(err, terrors.FeatureAlreadyApplied))
	assert.Equal(t, before, once)
}

func TestApplyRemove_Inverse(t *testing.T) {
	engine := NewEngine(nil)
	tmpl := baseTemplate()
	feature := apiKeyFeature()
	feature.Endpoints = []document.ProxyEndpoint{{
		Endpoint: document.Endpoint{Name: "health", BasePath: "/health", Routes: []document.Route{{Name: "default"}}},
		Flows:    []document.Flow{},
	}}
	feature.Resources = []document.Resource{{Name: "check.js", Type: "jsc", Content: "print(1);"}}
	feature.DefaultEndpoint.Flows = append(feature.DefaultEndpoint.Flows,
		document.Flow{Name: "PostFlow", Mode: "Response", Steps: steps("AM-RemoveKey")})

	applied, err := engine.Apply(tmpl, feature, map[string]string{"headerName": "apikey"})
	require.NoError(t, err)
	require.Len(t, applied.Endpoints, 2)

	removed, err := engine.Remove(applied, feature)
	require.NoError(t, err)
	assert.Equal(t, tmpl, removed)

	_, err = engine.Remove(removed, feature)
	assert.True(t, terrors.HasCode(err, terrors.FeatureNotApplied))
}

func TestRemove_KeepsForeignSteps(t *testing.T) {
	engine := NewEngine(nil)
	applied, err := engine.Apply(baseTemplate(), apiKeyFeature(), nil)
	require.NoError(t, err)

	// a later edit adds another VA-VerifyKey step with a condition
	applied.Endpoints[0].Flows[0].Steps = append(applied.Endpoints[0].Flows[0].Steps,
		document.Step{Name: "VA-VerifyKey", Condition: "request.verb = \"POST\""})

	removed, err := engine.Remove(applied, apiKeyFeature())
	require.NoError(t, err)
	assert.Equal(t, []document.Step{
		{Name: "A"}, {Name: "B"}, {Name: "VA-VerifyKey", Condition: "request.verb = \"POST\""},
	}, removed.Endpoints[0].Flows[0].Steps)
}

func TestApply_Collision(t *testing.T) {
	engine := NewEngine(nil)
	tmpl := baseTemplate()
	feature := &document.Feature{
		Name:     "override",
		Policies: []document.Policy{policy("A", "JavaScript")},
	}

	out, err := engine.Apply(tmpl, feature, nil)
	require.NoError(t, err)
	assert.Len(t, out.Policies, 2)
	assert.Equal(t, "JavaScript", out.Policy("A").Type)
	assert.Equal(t, "AssignMessage", tmpl.Policy("A").Type, "input is not modified")
}

func TestRemove_RestoresShadowed(t *testing.T) {
	engine := NewEngine(nil)
	tmpl := baseTemplate()
	tmpl.Resources = []document.Resource{{Name: "check.js", Type: "jsc", Content: "print(0);"}}
	feature := &document.Feature{
		Name:     "override",
		Policies: []document.Policy{policy("A", "JavaScript")},
		Targets: []document.ProxyTarget{{
			Target: document.Target{Name: "default", URL: "https://override.example.com"},
			Flows:  []document.Flow{},
		}},
		Resources: []document.Resource{{Name: "check.js", Type: "jsc", Content: "print(1);"}},
	}

	applied, err := engine.Apply(tmpl, feature, nil)
	require.NoError(t, err)
	assert.Len(t, applied.Shadowed, 3)
	assert.Equal(t, "https://override.example.com", applied.Target("default").URL)

	removed, err := engine.Remove(applied, feature)
	require.NoError(t, err)
	assert.Empty(t, removed.Shadowed)
	assert.Empty(t, removed.Features)
	require.NotNil(t, removed.Policy("A"))
	assert.Equal(t, "AssignMessage", removed.Policy("A").Type)
	assert.Equal(t, tmpl.Policy("A").Content, removed.Policy("A").Content)
	require.NotNil(t, removed.Target("default"))
	assert.Equal(t, "https://petstore.swagger.io", removed.Target("default").URL)
	assert.Equal(t, tmpl.Resources, removed.Resources)
	assert.ElementsMatch(t, tmpl.Policies, removed.Policies)
}

func TestApply_UIDScoping(t *testing.T) {
	engine := NewEngine(nil)
	js := policy("JS-Check", "Javascript")
	js.Content.Child("Javascript").Set("ResourceURL", "jsc://check.js")
	kvm := policy("AM-Config", "AssignMessage")
	kvm.Content.Child("AssignMessage").Set("AssignVariable", document.NewTree().
		Set("Name", "target").
		Set("Ref", "propertyset.config.target"))

	feature := &document.Feature{
		Name: "checker",
		UID:  "u1",
		DefaultEndpoint: &document.ProxyEndpoint{
			Flows: []document.Flow{{
				Name: "PreFlow", Mode: "Request",
				Steps: []document.Step{
					{Name: "JS-Check"},
					{Name: "AM-Config", Condition: "JS-Check.failed = false"},
				},
			}},
		},
		Targets: []document.ProxyTarget{{Target: document.Target{Name: "backend", URL: "https://example.com"}}},
		Endpoints: []document.ProxyEndpoint{{
			Endpoint: document.Endpoint{Name: "side", BasePath: "/side", Routes: []document.Route{{Name: "default", Target: "backend"}}},
		}},
		Policies: []document.Policy{js, kvm},
		Resources: []document.Resource{
			{Name: "check.js", Type: "jsc"},
			{Name: "config.properties", Type: "properties", Content: "target={target}\n"},
		},
	}

	out, err := engine.Apply(baseTemplate(), feature, nil)
	require.NoError(t, err)

	require.NotNil(t, out.Policy("u1-JS-Check"))
	assert.Equal(t, "u1-JS-Check", out.Policy("u1-JS-Check").Content.Child("Javascript").Attr("name"))
	assert.Equal(t, "jsc://u1-check.js", out.Policy("u1-JS-Check").Content.Child("Javascript").Scalar("ResourceURL"))
	assert.Equal(t, "propertyset.u1-config.target",
		out.Policy("u1-AM-Config").Content.Child("AssignMessage").Child("AssignVariable").Scalar("Ref"))

	pre := out.Endpoints[0].Flows[0]
	assert.Equal(t, []document.Step{
		{Name: "u1-JS-Check"},
		{Name: "u1-AM-Config", Condition: "u1-JS-Check.failed = false"},
		{Name: "A"},
		{Name: "B"},
	}, pre.Steps)

	require.NotNil(t, out.Endpoint("u1-side"))
	assert.Equal(t, "u1-backend", out.Endpoint("u1-side").Routes[0].Target)
	assert.NotNil(t, out.Target("u1-backend"))
	assert.Equal(t, "u1-check.js", out.Resources[0].Name)

	removed, err := engine.Remove(out, feature)
	require.NoError(t, err)
	assert.Equal(t, baseTemplate(), removed)
}

func TestApply_ParameterPaths(t *testing.T) {
	engine := NewEngine(nil)
	am := policy("AM-Target", "AssignMessage")
	am.Content.Child("AssignMessage").
		Set("IgnoreUnresolvedVariables", "true").
		Set("AssignTo", document.NewTree().SetAttr("createNew", "false").Set("_text", "request"))

	feature := &document.Feature{
		Name: "backend",
		Parameters: []document.Parameter{{
			Name:    "url",
			Default: "https://default.example.com",
			Paths:   []string{"$.targets[0].url"},
		}},
		Targets:  []document.ProxyTarget{{Target: document.Target{Name: "backend", URL: "placeholder"}}},
		Policies: []document.Policy{am},
	}

	out, err := engine.Apply(baseTemplate(), feature, map[string]string{"url": "https://api.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", out.Target("backend").URL)
	assert.True(t, am.Content.Equal(out.Policy("AM-Target").Content), "policy trees keep their key order")
	assert.Equal(t, "https://api.example.com", out.Parameter("backend.url").Default)
	assert.Empty(t, out.Parameter("backend.url").Paths)
}

func TestApplyAll_Order(t *testing.T) {
	engine := NewEngine(nil)
	policyOnly := &document.Feature{
		Name:     "logging",
		Priority: 1,
		DefaultEndpoint: &document.ProxyEndpoint{
			Flows: []document.Flow{{Name: "PostFlow", Mode: "Response", Steps: steps("ML-Log")}},
		},
		Policies: []document.Policy{policy("ML-Log", "MessageLogging")},
	}
	structural := &document.Feature{
		Name: "health",
		Endpoints: []document.ProxyEndpoint{{
			Endpoint: document.Endpoint{Name: "health", BasePath: "/health", Routes: []document.Route{{Name: "default"}}},
			Flows:    []document.Flow{},
		}},
	}
	late := &document.Feature{Name: "late", Priority: 200, Policies: []document.Policy{policy("Z", "AssignMessage")}}
	early := &document.Feature{Name: "early", Priority: 5, Policies: []document.Policy{policy("Y", "AssignMessage")}}

	out, err := engine.ApplyAll(baseTemplate(), []*document.Feature{late, policyOnly, structural, early}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"health", "logging", "early", "late"}, out.Features)
	health := out.Endpoint("health")
	require.NotNil(t, health)
	require.Len(t, health.Flows, 1, "policy-only features reach endpoints contributed by structural ones")
	assert.Equal(t, steps("ML-Log"), health.Flows[0].Steps)

	again, err := engine.ApplyAll(out, []*document.Feature{early}, nil)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}
