package plugins

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/document"
	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/structext"
)

func stepFrom(t *testing.T, raw string) *generate.ExtensionStep {
	t.Helper()
	var step generate.ExtensionStep
	require.NoError(t, json.Unmarshal([]byte(raw), &step))
	return &step
}

func decodeFile(t *testing.T, f generate.File) *document.Tree {
	t.Helper()
	tree, err := structext.Decode([]byte(f.Contents))
	require.NoError(t, err)
	return tree
}

func endpoint() *generate.EndpointConfig {
	return &generate.EndpointConfig{
		Name:     "default",
		BasePath: "/pets",
		Target:   generate.TargetConfig{Name: "default", URL: "https://example.com"},
	}
}

func steps(flows []document.Flow, name, mode string) []string {
	var out []string
	for _, f := range flows {
		if f.Name == name && f.Mode == mode {
			for _, s := range f.Steps {
				out = append(out, s.Name)
			}
		}
	}
	return out
}

func TestGenerate_SpikeArrest(t *testing.T) {
	fs := afero.NewMemMapFs()
	pipeline := generate.NewPipeline(NewRegistry(), fs, nil)
	ep := endpoint()
	ep.SpikeArrest = &generate.SpikeArrestConfig{Rate: "30s"}

	result, err := pipeline.Generate(context.Background(), &generate.TemplateInput{
		Name:      "spike",
		Endpoints: []*generate.EndpointConfig{ep},
	}, "/out", generate.Options{})
	require.NoError(t, err)

	archive, err := afero.ReadFile(fs, result.LocalPath)
	require.NoError(t, err)
	codec := bundle.NewCodec(bundle.Config{Fs: afero.NewMemMapFs(), ScratchDir: "/scratch"}, nil)
	tmpl, err := codec.Unpack(context.Background(), "spike", archive)
	require.NoError(t, err)

	policy := tmpl.Policy(spikeArrestPolicy)
	require.NotNil(t, policy)
	assert.Equal(t, "SpikeArrest", policy.Type)
	assert.Equal(t, "30s", policy.Content.Child("SpikeArrest").Scalar("Rate"))

	proxy := tmpl.Endpoint("default")
	require.NotNil(t, proxy)
	assert.Equal(t, "/pets", proxy.BasePath)
	assert.Equal(t, []string{spikeArrestPolicy}, steps(proxy.Flows, document.FlowPreFlow, document.ModeRequest))
	require.Len(t, proxy.Routes, 1)
	assert.Equal(t, "default", proxy.Routes[0].Target)

	target := tmpl.Target("default")
	require.NotNil(t, target)
	assert.Equal(t, "https://example.com", target.URL)
}

func TestGenerate_APIKeyAndQuota(t *testing.T) {
	fs := afero.NewMemMapFs()
	pipeline := generate.NewPipeline(NewRegistry(), fs, nil)
	ep := endpoint()
	ep.Auth = []generate.AuthConfig{{Type: generate.AuthAPIKey}}
	ep.Quotas = []generate.QuotaConfig{{Count: 100, TimeUnit: "hour"}}

	result, err := pipeline.Generate(context.Background(), &generate.TemplateInput{
		Name:      "keyed",
		Endpoints: []*generate.EndpointConfig{ep},
	}, "/out", generate.Options{})
	require.NoError(t, err)

	archive, err := afero.ReadFile(fs, result.LocalPath)
	require.NoError(t, err)
	codec := bundle.NewCodec(bundle.Config{Fs: afero.NewMemMapFs(), ScratchDir: "/scratch"}, nil)
	tmpl, err := codec.Unpack(context.Background(), "keyed", archive)
	require.NoError(t, err)

	// base plugins run in profile order: spike arrest, api key, shared flow auth, quota
	assert.Equal(t,
		[]string{verifyKeyPolicy, removeKeyPolicy, "Quota-1"},
		steps(tmpl.Endpoint("default").Flows, document.FlowPreFlow, document.ModeRequest))

	quota := tmpl.Policy("Quota-1").Content.Child("Quota")
	assert.Equal(t, "hour", quota.Scalar("TimeUnit"))
	allow := quota.Child("Allow")
	assert.Equal(t, "100", allow.Attr("count"))
	assert.NotEmpty(t, allow.Attr("countRef"))
}

func TestGenerate_SharedFlowProfile(t *testing.T) {
	fs := afero.NewMemMapFs()
	pipeline := generate.NewPipeline(NewRegistry(), fs, nil)
	sf := &generate.EndpointConfig{
		Name:        "default",
		SpikeArrest: &generate.SpikeArrestConfig{Rate: "10ps"},
		ExtensionSteps: []*generate.ExtensionStep{
			stepFrom(t, `{"type": "AssignMessage", "name": "AM-Tag", "flowRunPoints": [{"runPoints": ["postRequest"]}],
				"set": {"headers": [{"name": "x-tag", "value": "1"}]}}`),
		},
	}

	result, err := pipeline.Generate(context.Background(), &generate.TemplateInput{
		Name:       "tagging",
		Profile:    ProfileSharedFlow,
		SharedFlow: sf,
	}, "/out", generate.Options{})
	require.NoError(t, err)

	archive, err := afero.ReadFile(fs, result.LocalPath)
	require.NoError(t, err)
	codec := bundle.NewCodec(bundle.Config{Fs: afero.NewMemMapFs(), ScratchDir: "/scratch"}, nil)
	tmpl, err := codec.Unpack(context.Background(), "tagging", archive)
	require.NoError(t, err)

	assert.Equal(t, document.TypeSharedFlow, tmpl.Type)
	require.Len(t, tmpl.Endpoints, 1)
	var names []string
	for _, f := range tmpl.Endpoints[0].Flows {
		for _, s := range f.Steps {
			names = append(names, s.Name)
		}
	}
	assert.Equal(t, []string{spikeArrestPolicy, "AM-Tag"}, names)
}

func TestDefaultProfiles(t *testing.T) {
	registry := NewRegistry()
	assert.Equal(t, []string{ProfileBigQuery, ProfileDefault, ProfileSharedFlow}, registry.Names())

	def, err := registry.Profile(ProfileDefault)
	require.NoError(t, err)
	assert.Len(t, def.Plugins, 4)
	assert.Contains(t, def.Extensions, generate.FallbackExtension)
	assert.Contains(t, def.Extensions, StepFlowCallout)

	sf, err := registry.Profile(ProfileSharedFlow)
	require.NoError(t, err)
	assert.NotContains(t, sf.Extensions, StepFlowCallout)
	assert.Equal(t, "sharedflow", sf.Finalizers[1].ID())

	bq, err := registry.Profile(ProfileBigQuery)
	require.NoError(t, err)
	assert.Empty(t, bq.Extensions)
	assert.Equal(t, "targets-bigquery", bq.Finalizers[0].ID())
}

func TestAPIKey_Header(t *testing.T) {
	ep := endpoint()
	ep.Auth = []generate.AuthConfig{{Type: generate.AuthAPIKey, Parameters: map[string]string{"header": "x-api-key"}}}

	res, err := APIKey{}.Apply(context.Background(), ep, nil)
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	verify := decodeFile(t, res.Files[0]).Child("VerifyAPIKey")
	assert.Equal(t, "request.header.x-api-key", verify.Child("APIKey").Attr("ref"))
	remove := decodeFile(t, res.Files[1]).Child("AssignMessage").Child("Remove")
	assert.Equal(t, "x-api-key", remove.Child("Headers").Child("Header").Attr("name"))
}

func TestAPIKey_NoAuth(t *testing.T) {
	res, err := APIKey{}.Apply(context.Background(), endpoint(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.Files)
}

func TestAuthSharedFlow(t *testing.T) {
	ep := endpoint()
	ep.Auth = []generate.AuthConfig{{Type: generate.AuthSharedFlow, Parameters: map[string]string{
		"audience": "my-audience",
		"roles":    "admin",
	}}}

	res, err := AuthSharedFlow{}.Apply(context.Background(), ep, nil)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, verifyJWTPolicy, res.Files[0].PolicyConfig.Name)

	callout := decodeFile(t, res.Files[0]).Child("FlowCallout")
	assert.Equal(t, AuthSharedFlowBundle, callout.Scalar("SharedFlowBundle"))
	params := callout.Child("Parameters").Items("Parameter")
	require.Len(t, params, 2)
	assert.Equal(t, "audience", params[0].(*document.Tree).Attr("name"))
}

func TestQuota_Defaults(t *testing.T) {
	ep := endpoint()
	ep.Quotas = []generate.QuotaConfig{{}, {Count: 10, Condition: `request.verb = "POST"`}}

	res, err := Quota{}.Apply(context.Background(), ep, nil)
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	first := decodeFile(t, res.Files[0]).Child("Quota")
	assert.Equal(t, "Quota-1", first.Attr("name"))
	assert.Equal(t, "5", first.Child("Allow").Attr("count"))
	assert.Equal(t, "minute", first.Scalar("TimeUnit"))
	assert.Empty(t, first.Child("Allow").Attr("countRef"))

	assert.Equal(t, `request.verb = "POST"`, res.Files[1].PolicyConfig.FlowRunPoints[0].StepCondition)
}

func TestExtractVariables(t *testing.T) {
	step := stepFrom(t, `{
		"type": "ExtractVariables",
		"name": "Path",
		"flowRunPoints": [{"runPoints": ["preRequest"]}],
		"variablePrefix": "path",
		"URIPaths": [{"pattern": "/pets/{id}"}],
		"headers": [{"name": "x-id", "ignoreCase": false, "pattern": "{id}"}]
	}`)

	res, err := ExtractVariables{}.Apply(context.Background(), endpoint(), step)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "/policies/EV-Path.xml", res.Files[0].Path)

	ev := decodeFile(t, res.Files[0]).Child("ExtractVariables")
	assert.Equal(t, "EV-Path", ev.Attr("name"))
	assert.Equal(t, "path", ev.Scalar("VariablePrefix"))
	assert.Equal(t, "true", ev.Child("URIPath").Child("Pattern").Attr("ignoreCase"))
	assert.Equal(t, "false", ev.Child("Header").Child("Pattern").Attr("ignoreCase"))
}

func TestAssignMessage(t *testing.T) {
	step := stepFrom(t, `{
		"type": "AssignMessage",
		"name": "AM-SetHeader",
		"flowRunPoints": [{"runPoints": ["preRequest"]}],
		"set": {"headers": [{"name": "x-test", "value": "a < b"}]}
	}`)

	res, err := AssignMessage{}.Apply(context.Background(), endpoint(), step)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "AM-SetHeader", res.Files[0].PolicyConfig.Name)

	header := decodeFile(t, res.Files[0]).Child("AssignMessage").Child("Set").Child("Headers").Child("Header")
	require.NotNil(t, header)
	assert.Equal(t, "x-test", header.Attr("name"))
	assert.Equal(t, "a < b", header.Scalar(document.TextKey))
}

func TestFlowCallout(t *testing.T) {
	step := stepFrom(t, `{
		"type": "FlowCallout",
		"name": "Auth",
		"flowRunPoints": [{"runPoints": ["preRequest"]}],
		"parameters": {"b": "2", "a": "1"}
	}`)

	res, err := FlowCallout{}.Apply(context.Background(), endpoint(), step)
	require.NoError(t, err)
	callout := decodeFile(t, res.Files[0]).Child("FlowCallout")
	assert.Equal(t, "FC-Auth", callout.Attr("name"))
	assert.Equal(t, "Auth", callout.Scalar("SharedFlowBundle"))

	params := callout.Child("Parameters").Items("Parameter")
	require.Len(t, params, 2)
	assert.Equal(t, "a", params[0].(*document.Tree).Attr("name"))
}

func TestMessageLogging(t *testing.T) {
	step := stepFrom(t, `{
		"type": "MessageLogging",
		"name": "Audit",
		"flowRunPoints": [{"runPoints": ["postClientResponse"]}],
		"cloudLoggingConfig": {"logName": "projects/p/logs/audit", "message": "{request.path}"}
	}`)

	res, err := MessageLogging{}.Apply(context.Background(), endpoint(), step)
	require.NoError(t, err)
	ml := decodeFile(t, res.Files[0]).Child("MessageLogging")
	assert.Equal(t, "ML-Audit", ml.Attr("name"))
	assert.Equal(t, "ALERT", ml.Scalar("logLevel"))
	assert.Equal(t, "application/json", ml.Child("CloudLogging").Child("Message").Attr("contentType"))
}

func TestResourceFiles(t *testing.T) {
	step := stepFrom(t, `{
		"type": "resourceFiles",
		"name": "Scripts",
		"files": {"jsc/b.js": "var b;", "jsc/a.js": "var a;"}
	}`)

	res, err := ResourceFiles{}.Apply(context.Background(), endpoint(), step)
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "/resources/jsc/a.js", res.Files[0].Path)
	assert.Equal(t, "var a;", res.Files[0].Contents)
	assert.Empty(t, generate.Placements(&generate.EndpointConfig{FileResults: []*generate.Result{res}})[0].FlowName)
}

func TestAny(t *testing.T) {
	t.Run("single root", func(t *testing.T) {
		step := stepFrom(t, `{
			"name": "JS-Hello",
			"flowRunPoints": [{"runPoints": ["preRequest"]}],
			"properties": {"Javascript": {"ResourceURL": "jsc://hello.js"}}
		}`)
		res, err := Any{}.Apply(context.Background(), endpoint(), step)
		require.NoError(t, err)
		require.Len(t, res.Files, 1)
		assert.Equal(t, "/policies/JS-Hello.xml", res.Files[0].Path)
		assert.True(t, strings.HasPrefix(res.Files[0].Contents, `<Javascript name="JS-Hello">`))
		assert.NotContains(t, res.Files[0].Contents, structext.Declaration)

		js := decodeFile(t, res.Files[0]).Child("Javascript")
		assert.Equal(t, "JS-Hello", js.Attr("name"))
		assert.Equal(t, "jsc://hello.js", js.Scalar("ResourceURL"))
	})

	t.Run("several roots", func(t *testing.T) {
		step := stepFrom(t, `{"name": "Bad", "properties": {"A": {}, "B": {}}}`)
		_, err := Any{}.Apply(context.Background(), endpoint(), step)
		assert.Error(t, err)
	})

	t.Run("no properties", func(t *testing.T) {
		_, err := Any{}.Apply(context.Background(), endpoint(), stepFrom(t, `{"name": "Empty"}`))
		assert.Error(t, err)
	})
}

func TestTargets(t *testing.T) {
	ep := endpoint()
	ep.Target = generate.TargetConfig{
		Name:          "backend",
		URL:           "backend.example.com",
		Headers:       map[string]string{"x-b": "2", "x-a": "1"},
		Properties:    map[string]string{"io.timeout.millis": "30000"},
		GoogleIDToken: &generate.TargetAuth{Audience: "https://backend.example.com"},
	}
	ep.FileResults = []*generate.Result{{Files: []generate.File{{
		Path:         "/policies/AM-Trace.xml",
		PolicyConfig: &generate.PolicyConfig{Name: "AM-Trace", FlowRunPoints: []generate.FlowRunPoint{generate.At(generate.RunPointPreTarget)}},
	}}}}

	res, err := Targets{}.Apply(context.Background(), ep, nil)
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	assert.Equal(t, "/policies/AM-SetAutoTargetHeaders.xml", res.Files[0].Path)
	assert.Equal(t, "/targets/backend.xml", res.Files[1].Path)

	headers := decodeFile(t, res.Files[0]).Child("AssignMessage").Child("Set").Child("Headers").Items("Header")
	require.Len(t, headers, 2)
	assert.Equal(t, "x-a", headers[0].(*document.Tree).Attr("name"))

	target := decodeFile(t, res.Files[1]).Child("TargetEndpoint")
	conn := target.Child("HTTPTargetConnection")
	assert.Equal(t, "https://backend.example.com", conn.Scalar("URL"))
	assert.Equal(t, "https://backend.example.com", conn.Child("Authentication").Child("GoogleIDToken").Scalar("Audience"))
	assert.Equal(t, "30000", conn.Child("Properties").Child("Property").Scalar(document.TextKey))

	var names []string
	for _, item := range target.Child(document.FlowPreFlow).Child(document.ModeRequest).Items("Step") {
		names = append(names, item.(*document.Tree).Scalar("Name"))
	}
	assert.Equal(t, []string{targetHeadersPolicy, "AM-Trace"}, names)
}

func TestTargets_NoBackend(t *testing.T) {
	ep := endpoint()
	ep.Target = generate.TargetConfig{Name: "default"}

	res, err := Targets{}.Apply(context.Background(), ep, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Files)
}

func TestTargetsBigQuery(t *testing.T) {
	ep := endpoint()
	ep.Target = generate.TargetConfig{Name: "default", Table: "my-project.sales.orders"}

	_, err := TargetsBigQuery{}.Apply(context.Background(), ep, nil)
	require.Error(t, err, "project is required")

	ep.Parameters = map[string]string{generate.ProjectParameter: "my-project"}
	res, err := TargetsBigQuery{}.Apply(context.Background(), ep, nil)
	require.NoError(t, err)
	require.Len(t, res.Files, 2)

	payload := decodeFile(t, res.Files[0]).Child("AssignMessage").Child("Set").Child("Payload")
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload.Scalar(document.TextKey)), &body))
	assert.Equal(t, "SELECT * FROM `my-project.sales.orders`", body["query"])
	assert.Equal(t, false, body["useLegacySql"])

	conn := decodeFile(t, res.Files[1]).Child("TargetEndpoint").Child("HTTPTargetConnection")
	assert.Equal(t, "https://bigquery.googleapis.com/bigquery/v2/projects/my-project/queries", conn.Scalar("URL"))
	assert.Equal(t, bigQueryScope, conn.Child("Authentication").Child("GoogleAccessToken").Child("Scopes").Scalar("Scope"))
}

func TestProxyEndpoint_Placements(t *testing.T) {
	place := func(policy string, frp generate.FlowRunPoint) generate.File {
		return generate.File{
			Path:         policyPath(policy),
			PolicyConfig: &generate.PolicyConfig{Name: policy, FlowRunPoints: []generate.FlowRunPoint{frp}},
		}
	}
	conditional := generate.At(generate.RunPointPreRequest, generate.RunPointPostResponse)
	conditional.FlowCondition = `proxy.pathsuffix MatchesPath "/items"`

	ep := endpoint()
	ep.FileResults = []*generate.Result{{Files: []generate.File{
		place("A", generate.At(generate.RunPointPreRequest)),
		place("B", generate.At(generate.RunPointPostRequest)),
		place("C", generate.At(generate.RunPointPreResponse)),
		place("D", generate.At(generate.RunPointPostResponse)),
		place("E", generate.At(generate.RunPointPostClientResponse)),
		place("F", generate.At(generate.RunPointEndpointFault)),
		place("G", generate.At(generate.RunPointPreTarget)),
		place("H", conditional),
	}}}

	pe := proxyEndpoint(ep)
	assert.Equal(t, []string{"A"}, steps(pe.Flows, document.FlowPreFlow, document.ModeRequest))
	assert.Equal(t, []string{"B"}, steps(pe.Flows, document.FlowPreFlow, document.ModeResponse))
	assert.Equal(t, []string{"C"}, steps(pe.Flows, document.FlowPostFlow, document.ModeRequest))
	assert.Equal(t, []string{"D"}, steps(pe.Flows, document.FlowPostFlow, document.ModeResponse))
	assert.Equal(t, []string{"E"}, steps(pe.Flows, document.FlowPostClientFlow, document.ModeResponse))
	assert.Equal(t, []string{"H"}, steps(pe.Flows, "CFlow_1", document.ModeRequest))
	assert.Equal(t, []string{"H"}, steps(pe.Flows, "CFlow_1", document.ModeResponse))

	require.Len(t, pe.FaultRules, 1)
	assert.Equal(t, "F", pe.FaultRules[0].Steps[0].Name)
	assert.Equal(t, []document.Route{{Name: "default", Target: "default"}}, pe.Routes)
}

func TestSharedFlow_Order(t *testing.T) {
	ep := &generate.EndpointConfig{Name: "default"}
	ep.FileResults = []*generate.Result{{Files: []generate.File{
		{PolicyConfig: &generate.PolicyConfig{Name: "Late", FlowRunPoints: []generate.FlowRunPoint{generate.At(generate.RunPointPostResponse)}}},
		{PolicyConfig: &generate.PolicyConfig{Name: "Early", FlowRunPoints: []generate.FlowRunPoint{generate.At(generate.RunPointPreRequest)}}},
	}}}

	res, err := SharedFlow{}.Apply(context.Background(), ep, nil)
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "/sharedflows/default.xml", res.Files[0].Path)

	var names []string
	for _, item := range decodeFile(t, res.Files[0]).Child("SharedFlow").Items("Step") {
		names = append(names, item.(*document.Tree).Scalar("Name"))
	}
	assert.Equal(t, []string{"Early", "Late"}, names)
}
