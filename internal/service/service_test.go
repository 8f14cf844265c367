package service

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/generate/plugins"
	"github.com/apigee/apigee-templater/internal/store"
)

func newTestService(t *testing.T) (*Service, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	st := store.New(store.NewFileBackend(fs, "/data"), nil)
	codec := bundle.NewCodec(bundle.Config{Fs: fs, ScratchDir: "/scratch"}, nil)
	pipeline := generate.NewPipeline(plugins.NewRegistry(), fs, nil)
	return New(st, codec, pipeline, nil), fs
}

func verifyKeyFeature() *document.Feature {
	return &document.Feature{
		Name:       "auth-apikey-header",
		Parameters: []document.Parameter{{Name: "headerName", Default: "x-api-key"}},
		DefaultEndpoint: &document.ProxyEndpoint{
			Endpoint: document.Endpoint{Name: document.DefaultName},
			Flows: []document.Flow{{
				Name:  document.FlowPreFlow,
				Mode:  document.ModeRequest,
				Steps: []document.Step{{Name: "VA-VerifyKey"}},
			}},
		},
		Endpoints: []document.ProxyEndpoint{},
		Targets:   []document.ProxyTarget{},
		Policies: []document.Policy{{
			Name: "VA-VerifyKey",
			Type: "VerifyAPIKey",
			Content: document.NewTree().Set("VerifyAPIKey", document.NewTree().
				SetAttr("name", "VA-VerifyKey").
				Set("APIKey", document.NewTree().SetAttr("ref", "request.header.{headerName}"))),
		}},
		Resources: []document.Resource{},
	}
}

func TestCreate(t *testing.T) {
	svc, fs := newTestService(t)
	ctx := context.Background()

	tmpl, err := svc.Create(ctx, "pet store", "/pets", "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "pet-store", tmpl.Name)
	assert.Equal(t, "API template for pet store", tmpl.Description)
	require.Len(t, tmpl.Endpoints, 1)
	assert.Equal(t, []document.Route{{Name: "default", Target: "default"}}, tmpl.Endpoints[0].Routes)

	exists, _ := afero.Exists(fs, "/data/templates/pet-store.json")
	assert.True(t, exists)

	_, err = svc.Create(ctx, "pet store", "/pets", "")
	assert.True(t, terrors.HasCode(err, terrors.AlreadyExists))

	loaded, err := svc.Get(ctx, "pet store")
	require.NoError(t, err)
	assert.Equal(t, tmpl, loaded)

	names, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pet-store"}, names)

	require.NoError(t, svc.Delete(ctx, "pet-store"))
	_, err = svc.Get(ctx, "pet-store")
	assert.True(t, terrors.HasCode(err, terrors.NotFound))
}

func TestAddEndpointAndTarget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "petstore", "/pets", "")
	require.NoError(t, err)

	tmpl, err := svc.AddTarget(ctx, "petstore", TargetSpec{Name: "default", URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "default", tmpl.Endpoints[0].Routes[0].Target, "untargeted route is pointed at the new target")

	tmpl, err = svc.AddTarget(ctx, "petstore", TargetSpec{
		Name:           "httpbin",
		URL:            "https://httpbin.org",
		RouteCondition: `request.header.backend = "httpbin"`,
	})
	require.NoError(t, err)
	require.Len(t, tmpl.Endpoints[0].Routes, 2)
	assert.Equal(t, "httpbin", tmpl.Endpoints[0].Routes[0].Target)
	assert.Equal(t, "default", tmpl.Endpoints[0].Routes[1].Target)

	_, err = svc.AddTarget(ctx, "petstore", TargetSpec{Name: "httpbin", URL: "https://httpbin.org"})
	assert.True(t, terrors.HasCode(err, terrors.AlreadyExists))

	tmpl, err = svc.AddEndpoint(ctx, "petstore", EndpointSpec{
		Name:       "admin",
		BasePath:   "/admin",
		TargetName: "admin-backend",
		TargetURL:  "https://admin.example.com",
	})
	require.NoError(t, err)
	admin := tmpl.Endpoint("admin")
	require.NotNil(t, admin)
	assert.Equal(t, "admin-backend", admin.Routes[0].Target)
	assert.NotNil(t, tmpl.Target("admin-backend"))

	_, err = svc.AddEndpoint(ctx, "petstore", EndpointSpec{Name: "admin", BasePath: "/x"})
	assert.True(t, terrors.HasCode(err, terrors.AlreadyExists))

	stored, err := svc.Get(ctx, "petstore")
	require.NoError(t, err)
	assert.Len(t, stored.Targets, 3)
}

func TestApplyAndRemoveFeature(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "petstore", "/pets", "https://example.com")
	require.NoError(t, err)
	require.NoError(t, svc.SaveFeature(ctx, verifyKeyFeature()))

	tmpl, err := svc.ApplyFeature(ctx, "petstore", "auth-apikey-header", map[string]string{"headerName": "apikey"})
	require.NoError(t, err)
	assert.Equal(t, []string{"auth-apikey-header"}, tmpl.Features)
	policy := tmpl.Policy("VA-VerifyKey")
	require.NotNil(t, policy)
	assert.Equal(t, "request.header.apikey", policy.Content.Child("VerifyAPIKey").Child("APIKey").Attr("ref"))

	_, err = svc.ApplyFeature(ctx, "petstore", "auth-apikey-header", nil)
	assert.True(t, terrors.HasCode(err, terrors.FeatureAlreadyApplied))

	tmpl, err = svc.RemoveFeature(ctx, "petstore", "auth-apikey-header")
	require.NoError(t, err)
	assert.Empty(t, tmpl.Features)
	assert.Empty(t, tmpl.Policies)

	_, err = svc.ApplyFeature(ctx, "petstore", "missing", nil)
	assert.True(t, terrors.HasCode(err, terrors.NotFound))
}

func TestCreateWithFeatures(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tagging := &document.Feature{
		Name: "target-tagging",
		DefaultTarget: &document.ProxyTarget{
			Target: document.Target{Name: document.DefaultName},
			Flows: []document.Flow{{
				Name:  document.FlowPreFlow,
				Mode:  document.ModeRequest,
				Steps: []document.Step{{Name: "AM-Tag"}},
			}},
		},
		Policies: []document.Policy{{
			Name:    "AM-Tag",
			Type:    "AssignMessage",
			Content: document.NewTree().Set("AssignMessage", document.NewTree().SetAttr("name", "AM-Tag")),
		}},
	}
	backend := &document.Feature{
		Name: "backend-target",
		Targets: []document.ProxyTarget{{
			Target: document.Target{Name: "backend", URL: "https://backend.example.com"},
			Flows:  []document.Flow{},
		}},
	}
	require.NoError(t, svc.SaveFeature(ctx, tagging))
	require.NoError(t, svc.SaveFeature(ctx, backend))
	require.NoError(t, svc.SaveFeature(ctx, verifyKeyFeature()))

	tmpl, err := svc.CreateWithFeatures(ctx, "orders", "/orders", "https://orders.example.com",
		[]string{"target-tagging", "auth-apikey-header", "backend-target"}, map[string]string{"headerName": "apikey"})
	require.NoError(t, err)
	assert.Equal(t, []string{"backend-target", "target-tagging", "auth-apikey-header"}, tmpl.Features)

	added := tmpl.Target("backend")
	require.NotNil(t, added)
	require.NotEmpty(t, added.Flows)
	assert.Equal(t, []document.Step{{Name: "AM-Tag"}}, added.Flows[0].Steps, "structural features are applied first")
	assert.Equal(t, "request.header.apikey",
		tmpl.Policy("VA-VerifyKey").Content.Child("VerifyAPIKey").Child("APIKey").Attr("ref"))

	stored, err := svc.Get(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, tmpl.Features, stored.Features)

	_, err = svc.CreateWithFeatures(ctx, "broken", "/broken", "", []string{"missing"}, nil)
	assert.True(t, terrors.HasCode(err, terrors.NotFound))
	_, err = svc.Get(ctx, "broken")
	assert.True(t, terrors.HasCode(err, terrors.NotFound), "nothing is stored when a feature is missing")
}

func TestArchiveRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.Create(ctx, "petstore", "/pets", "https://example.com")
	require.NoError(t, err)

	archive, err := svc.ExportArchive(ctx, "petstore")
	require.NoError(t, err)

	imported, err := svc.ImportArchive(ctx, "petstore-copy", archive)
	require.NoError(t, err)
	assert.Equal(t, "petstore-copy", imported.Name)
	require.Len(t, imported.Endpoints, 1)
	assert.Equal(t, "/pets", imported.Endpoints[0].BasePath)
	require.NotNil(t, imported.Target("default"))
	assert.Equal(t, "https://example.com", imported.Target("default").URL)

	names, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"petstore", "petstore-copy"}, names)
}

func TestFeatureArchiveRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.SaveFeature(ctx, verifyKeyFeature()))

	archive, err := svc.ExportFeatureArchive(ctx, "auth-apikey-header")
	require.NoError(t, err)

	f, err := svc.ImportFeatureArchive(ctx, "feature-auth-copy", archive)
	require.NoError(t, err)
	assert.Equal(t, "auth-copy", f.Name)
	require.NotNil(t, f.DefaultEndpoint)
	assert.Len(t, f.Policies, 1)

	names, err := svc.ListFeatures(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"auth-apikey-header", "auth-copy"}, names)

	require.NoError(t, svc.DeleteFeature(ctx, "auth-copy"))
	_, err = svc.GetFeature(ctx, "auth-copy")
	assert.True(t, terrors.HasCode(err, terrors.NotFound))
}

func TestGenerate(t *testing.T) {
	svc, fs := newTestService(t)
	input := &generate.TemplateInput{
		Name: "spike",
		Endpoints: []*generate.EndpointConfig{{
			Name:        "default",
			BasePath:    "/spike",
			Target:      generate.TargetConfig{Name: "default", URL: "https://example.com"},
			SpikeArrest: &generate.SpikeArrestConfig{Rate: "30s"},
		}},
	}

	result, err := svc.Generate(context.Background(), input, "/out", generate.Options{})
	require.NoError(t, err)
	exists, _ := afero.Exists(fs, result.LocalPath)
	assert.True(t, exists)
}
