package generate

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apigee/apigee-templater/internal/bundle"
	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// Phases, as named in PluginFailure errors.
const (
	PhaseBase      = "base"
	PhaseExtension = "extension"
	PhaseFinalize  = "finalize"
)

// ProjectParameter is the endpoint parameter carrying Options.Project.
const ProjectParameter = "PROJECT"

// Options tune one generation run.
type Options struct {
	// Project is passed to every endpoint as the PROJECT parameter.
	Project string
}

// GenerateResult reports a finished generation.
type GenerateResult struct {
	Success   bool           `json:"success"`
	Duration  time.Duration  `json:"duration"`
	Message   string         `json:"message"`
	LocalPath string         `json:"localPath"`
	Template  *TemplateInput `json:"template,omitempty"`
}

// Pipeline runs profiles against inputs and archives the output.
type Pipeline struct {
	fs         afero.Fs
	registry   *Registry
	converters []Converter
	logger     *zap.Logger

	// serializes file writes; endpoints may write the same policy file
	writeMu sync.Mutex
}

// NewPipeline creates a pipeline writing to fs. A nil fs writes to disk and
// a nil logger disables logging.
func NewPipeline(registry *Registry, fs afero.Fs, logger *zap.Logger) *Pipeline {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		fs:         fs,
		registry:   registry,
		converters: DefaultConverters(),
		logger:     logger,
	}
}

// Registry returns the profile registry.
func (p *Pipeline) Registry() *Registry {
	return p.registry
}

// Fs returns the filesystem output is written to.
func (p *Pipeline) Fs() afero.Fs {
	return p.fs
}

// SetConverters replaces the input converters.
func (p *Pipeline) SetConverters(converters ...Converter) {
	p.converters = converters
}

// Convert turns raw input text into a TemplateInput.
func (p *Pipeline) Convert(data []byte) (*TemplateInput, error) {
	return Convert(data, p.converters...)
}

// GenerateFromBytes converts data and generates it.
func (p *Pipeline) GenerateFromBytes(ctx context.Context, data []byte, outputDir string, opts Options) (*GenerateResult, error) {
	input, err := p.Convert(data)
	if err != nil {
		return nil, err
	}
	return p.Generate(ctx, input, outputDir, opts)
}

// Generate writes the bundle for input below outputDir/<name>, zips it to
// outputDir/<name>.zip and removes the directory. Endpoints run in
// parallel; inside an endpoint the base, extension and finalize phases run
// one after the other with the plugins of a phase in parallel.
func (p *Pipeline) Generate(ctx context.Context, input *TemplateInput, outputDir string, opts Options) (*GenerateResult, error) {
	start := time.Now()

	profile, err := p.registry.Profile(input.ProfileName())
	if err != nil {
		return nil, err
	}
	if err := validateInput(input); err != nil {
		return nil, fmt.Errorf("invalid input %q: %w", input.Name, err)
	}

	root, err := bundle.SafeJoin(outputDir, input.Name)
	if err != nil {
		return nil, fmt.Errorf("invalid input %q: %w", input.Name, err)
	}
	base := filepath.Join(root, bundle.ProxyDir)
	flowDir := "proxies"
	if input.IsSharedFlow() {
		base = filepath.Join(root, bundle.SharedFlowDir)
		flowDir = "sharedflows"
	}
	for _, dir := range []string{flowDir, "targets", "policies", "resources"} {
		if err := p.fs.MkdirAll(filepath.Join(base, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	run := *input
	run.Endpoints = make([]*EndpointConfig, 0, len(input.Endpoints))
	for _, ep := range input.Endpoints {
		if ep != nil {
			run.Endpoints = append(run.Endpoints, ep.clone())
		}
	}
	units := run.Endpoints
	if input.SharedFlow != nil {
		run.SharedFlow = input.SharedFlow.clone()
		if len(units) == 0 {
			units = []*EndpointConfig{run.SharedFlow}
		}
	}

	p.logger.Info("generating bundle",
		zap.String("name", input.Name),
		zap.String("profile", profile.Name),
		zap.Int("endpoints", len(units)))

	g, gctx := errgroup.WithContext(ctx)
	for _, ep := range units {
		ep := ep
		g.Go(func() error {
			return p.runEndpoint(gctx, profile, ep, base, opts)
		})
	}
	if err := g.Wait(); err != nil {
		if rerr := p.fs.RemoveAll(root); rerr != nil {
			p.logger.Error("failed to clean up output", zap.String("dir", root), zap.Error(rerr))
		}
		return nil, err
	}

	archive := root + ".zip"
	if err := p.archive(root, archive); err != nil {
		return nil, err
	}
	if err := p.fs.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("failed to remove %s: %w", root, err)
	}

	duration := time.Since(start)
	p.logger.Info("bundle generated", zap.String("path", archive), zap.Duration("duration", duration))
	return &GenerateResult{
		Success:   true,
		Duration:  duration,
		Message:   fmt.Sprintf("Proxy generation completed in %d milliseconds.", duration.Milliseconds()),
		LocalPath: archive,
		Template:  &run,
	}, nil
}

type job struct {
	plugin Plugin
	step   *ExtensionStep
}

func (p *Pipeline) runEndpoint(ctx context.Context, profile *Profile, ep *EndpointConfig, base string, opts Options) error {
	if opts.Project != "" {
		if ep.Parameters == nil {
			ep.Parameters = map[string]string{}
		}
		ep.Parameters[ProjectParameter] = opts.Project
	}

	jobs := make([]job, 0, len(profile.Plugins))
	for _, plugin := range profile.Plugins {
		jobs = append(jobs, job{plugin: plugin})
	}
	results, err := p.runPhase(ctx, PhaseBase, ep, jobs, base)
	if err != nil {
		return err
	}
	ep.FileResults = append(ep.FileResults, results...)

	jobs = jobs[:0]
	for _, step := range ep.ExtensionSteps {
		if step == nil {
			continue
		}
		plugin, ok := profile.Extensions[step.Type]
		if !ok {
			p.logger.Error("skipping extension step",
				zap.String("endpoint", ep.Name),
				zap.String("step", step.Name),
				zap.Error(terrors.NewUnknownExtensionType(step.Type, profile.Name)))
			continue
		}
		jobs = append(jobs, job{plugin: plugin, step: step})
	}
	results, err = p.runPhase(ctx, PhaseExtension, ep, jobs, base)
	if err != nil {
		return err
	}
	ep.FileResults = append(ep.FileResults, results...)

	jobs = jobs[:0]
	for _, plugin := range profile.Finalizers {
		jobs = append(jobs, job{plugin: plugin})
	}
	results, err = p.runPhase(ctx, PhaseFinalize, ep, jobs, base)
	if err != nil {
		return err
	}
	ep.FileResults = append(ep.FileResults, results...)
	return nil
}

// runPhase runs jobs concurrently and returns their results in job order.
func (p *Pipeline) runPhase(ctx context.Context, phase string, ep *EndpointConfig, jobs []job, base string) ([]*Result, error) {
	results := make([]*Result, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			res, err := j.plugin.Apply(gctx, ep, j.step)
			if err == nil && res == nil {
				res = NewResult(j.plugin.ID())
			}
			if err == nil {
				err = p.write(base, res)
			}
			if err != nil {
				p.logger.Error("plugin failed",
					zap.String("plugin", j.plugin.ID()),
					zap.String("endpoint", ep.Name),
					zap.String("phase", phase),
					zap.Error(err))
				return terrors.NewPluginFailure(j.plugin.ID(), ep.Name, phase, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) write(base string, res *Result) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	for _, f := range res.Files {
		path, err := bundle.SafeJoin(base, strings.TrimPrefix(f.Path, "/"))
		if err != nil {
			return err
		}
		if err := p.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := afero.WriteFile(p.fs, path, []byte(f.Contents), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Path, err)
		}
	}
	return nil
}

func (p *Pipeline) archive(root, archive string) error {
	out, err := p.fs.Create(archive)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", archive, err)
	}
	if err := bundle.ZipDir(p.fs, root, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
