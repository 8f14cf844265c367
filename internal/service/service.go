// Package service implements the collaborator operations on stored
// templates and features: creation, feature composition, archive import
// and export, and bundle generation.
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/compose"
	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/store"
)

// Service ties the store to the codec, the composition engine and the
// generation pipeline.
type Service struct {
	store    *store.Store
	codec    *bundle.Codec
	engine   *compose.Engine
	pipeline *generate.Pipeline
	logger   *zap.Logger
}

// New creates a service. A nil logger disables logging.
func New(st *store.Store, codec *bundle.Codec, pipeline *generate.Pipeline, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		codec:    codec,
		engine:   compose.NewEngine(logger),
		pipeline: pipeline,
		logger:   logger,
	}
}

// Pipeline returns the generation pipeline.
func (s *Service) Pipeline() *generate.Pipeline {
	return s.pipeline
}

// normalize turns a display name into a storage name.
func normalize(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "-")
}

// EndpointSpec describes an endpoint to add.
type EndpointSpec struct {
	Name           string `json:"name"`
	BasePath       string `json:"basePath"`
	TargetName     string `json:"targetName,omitempty"`
	TargetURL      string `json:"targetUrl,omitempty"`
	RouteCondition string `json:"routeCondition,omitempty"`
}

// TargetSpec describes a target to add.
type TargetSpec struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	RouteCondition string `json:"routeCondition,omitempty"`
}

// Create stores a new proxy template.
func (s *Service) Create(ctx context.Context, name, basePath, targetURL string) (*document.Template, error) {
	return s.CreateWithFeatures(ctx, name, basePath, targetURL, nil, nil)
}

// CreateWithFeatures stores a new proxy template with the named stored
// features applied by ascending priority. Nothing is stored when a feature
// is missing or fails to apply.
func (s *Service) CreateWithFeatures(ctx context.Context, name, basePath, targetURL string, features []string, params map[string]string) (*document.Template, error) {
	t := document.NewTemplate(name, basePath, targetURL)
	exists, err := s.store.TemplateExists(ctx, t.Name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, terrors.NewAlreadyExists("template", t.Name)
	}

	if len(features) > 0 {
		loaded := make([]*document.Feature, 0, len(features))
		for _, name := range features {
			f, err := s.GetFeature(ctx, name)
			if err != nil {
				return nil, err
			}
			loaded = append(loaded, f)
		}
		if t, err = s.engine.ApplyAll(t, loaded, params); err != nil {
			return nil, err
		}
	}

	if err := s.store.SaveTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("created template", zap.String("template", t.Name), zap.Strings("features", t.Features))
	return t, nil
}

// Get loads a template.
func (s *Service) Get(ctx context.Context, name string) (*document.Template, error) {
	return s.store.GetTemplate(ctx, normalize(name))
}

// List returns the stored template names.
func (s *Service) List(ctx context.Context) ([]string, error) {
	return s.store.ListTemplates(ctx)
}

// Save stores t, replacing any template with the same name.
func (s *Service) Save(ctx context.Context, t *document.Template) error {
	return s.store.SaveTemplate(ctx, t)
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, name string) error {
	return s.store.DeleteTemplate(ctx, normalize(name))
}

// AddEndpoint adds an endpoint routed to spec.TargetName, creating that
// target when spec.TargetURL is set.
func (s *Service) AddEndpoint(ctx context.Context, template string, spec EndpointSpec) (*document.Template, error) {
	t, err := s.Get(ctx, template)
	if err != nil {
		return nil, err
	}
	if t.Endpoint(spec.Name) != nil {
		return nil, terrors.NewAlreadyExists("endpoint", spec.Name)
	}
	targetName := spec.TargetName
	if targetName == "" {
		targetName = document.DefaultName
	}
	if spec.TargetURL != "" && t.Target(targetName) != nil {
		return nil, terrors.NewAlreadyExists("target", targetName)
	}

	t.Endpoints = append(t.Endpoints, document.ProxyEndpoint{
		Endpoint: document.Endpoint{
			Name:     spec.Name,
			BasePath: spec.BasePath,
			Routes: []document.Route{{
				Name:      targetName,
				Condition: spec.RouteCondition,
				Target:    targetName,
			}},
		},
		Flows: []document.Flow{},
	})
	if spec.TargetURL != "" {
		t.Targets = append(t.Targets, document.ProxyTarget{
			Target: document.Target{Name: targetName, URL: spec.TargetURL},
			Flows:  []document.Flow{},
		})
	}
	if err := s.store.SaveTemplate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// AddTarget adds a target. With a route condition, a conditional route to
// the target is put first on every endpoint; without one, an endpoint whose
// only route has no target is pointed at it.
func (s *Service) AddTarget(ctx context.Context, template string, spec TargetSpec) (*document.Template, error) {
	t, err := s.Get(ctx, template)
	if err != nil {
		return nil, err
	}
	if t.Target(spec.Name) != nil {
		return nil, terrors.NewAlreadyExists("target", spec.Name)
	}

	t.Targets = append(t.Targets, document.ProxyTarget{
		Target: document.Target{Name: spec.Name, URL: spec.URL},
		Flows:  []document.Flow{},
	})
	for i := range t.Endpoints {
		ep := &t.Endpoints[i]
		if spec.RouteCondition != "" {
			route := document.Route{Name: spec.Name, Condition: spec.RouteCondition, Target: spec.Name}
			ep.Routes = append([]document.Route{route}, ep.Routes...)
			continue
		}
		if len(ep.Routes) == 1 && ep.Routes[0].Target == "" {
			ep.Routes[0].Target = spec.Name
		}
	}
	if err := s.store.SaveTemplate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ApplyFeature applies a stored feature to a stored template and saves the
// result.
func (s *Service) ApplyFeature(ctx context.Context, template, feature string, params map[string]string) (*document.Template, error) {
	t, f, err := s.load(ctx, template, feature)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.Apply(t, f, params)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveTemplate(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// RemoveFeature removes a stored feature from a stored template and saves
// the result.
func (s *Service) RemoveFeature(ctx context.Context, template, feature string) (*document.Template, error) {
	t, f, err := s.load(ctx, template, feature)
	if err != nil {
		return nil, err
	}
	out, err := s.engine.Remove(t, f)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveTemplate(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, template, feature string) (*document.Template, *document.Feature, error) {
	t, err := s.Get(ctx, template)
	if err != nil {
		return nil, nil, err
	}
	f, err := s.GetFeature(ctx, feature)
	if err != nil {
		return nil, nil, err
	}
	return t, f, nil
}

// Generate runs the generation pipeline for input.
func (s *Service) Generate(ctx context.Context, input *generate.TemplateInput, outputDir string, opts generate.Options) (*generate.GenerateResult, error) {
	return s.pipeline.Generate(ctx, input, outputDir, opts)
}

// Spec builds an OpenAPI document describing a paged collection API for a
// sample JSON payload.
func (s *Service) Spec(payload []byte, opts generate.SpecOptions) (*document.Tree, error) {
	spec, err := generate.SpecDocument(payload, opts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("generated spec",
		zap.String("title", spec.Child("info").Scalar("title")),
		zap.String("auth", opts.Auth))
	return spec, nil
}

// ImportArchive decodes a bundle archive and stores it as template name.
func (s *Service) ImportArchive(ctx context.Context, name string, archive []byte) (*document.Template, error) {
	t, err := s.codec.Unpack(ctx, normalize(name), archive)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveTemplate(ctx, t); err != nil {
		return nil, err
	}
	s.logger.Info("imported template",
		zap.String("template", t.Name),
		zap.Int("policies", len(t.Policies)))
	return t, nil
}

// ExportArchive encodes a stored template as a bundle archive.
func (s *Service) ExportArchive(ctx context.Context, name string) ([]byte, error) {
	t, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.codec.Pack(ctx, t)
}

// GetFeature loads a feature.
func (s *Service) GetFeature(ctx context.Context, name string) (*document.Feature, error) {
	return s.store.GetFeature(ctx, normalize(name))
}

// ListFeatures returns the stored feature names.
func (s *Service) ListFeatures(ctx context.Context) ([]string, error) {
	return s.store.ListFeatures(ctx)
}

// SaveFeature stores f, replacing any feature with the same name.
func (s *Service) SaveFeature(ctx context.Context, f *document.Feature) error {
	if f.Name == "" {
		return fmt.Errorf("feature has no name")
	}
	return s.store.SaveFeature(ctx, f)
}

// DeleteFeature removes a feature.
func (s *Service) DeleteFeature(ctx context.Context, name string) error {
	return s.store.DeleteFeature(ctx, normalize(name))
}

// ImportFeatureArchive decodes a bundle archive and stores it as a
// feature. A feature-<name> proxy name loses its prefix.
func (s *Service) ImportFeatureArchive(ctx context.Context, name string, archive []byte) (*document.Feature, error) {
	t, err := s.codec.Unpack(ctx, normalize(name), archive)
	if err != nil {
		return nil, err
	}
	f := document.TemplateToFeature(t)
	if err := s.store.SaveFeature(ctx, f); err != nil {
		return nil, err
	}
	s.logger.Info("imported feature", zap.String("feature", f.Name))
	return f, nil
}

// ExportFeatureArchive encodes a stored feature as a standalone proxy
// bundle named feature-<name>.
func (s *Service) ExportFeatureArchive(ctx context.Context, name string) ([]byte, error) {
	f, err := s.GetFeature(ctx, name)
	if err != nil {
		return nil, err
	}
	return s.codec.Pack(ctx, document.FeatureToTemplate(f))
}
