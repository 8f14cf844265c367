package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/generate"
)

// Regenerator rebuilds the bundles of a fixed set of input files.
type Regenerator struct {
	fs        afero.Fs
	pipeline  *generate.Pipeline
	inputs    []string
	outputDir string
	opts      generate.Options
	notifier  *Notifier
	logger    *zap.Logger
}

// RegenerateResult holds the outcome of one regeneration
type RegenerateResult struct {
	Success      bool
	Duration     time.Duration
	ChangedFiles []string
	Inputs       []string
	Bundles      []string
	Errors       map[string]error
}

// NewRegenerator creates a regenerator reading inputs from fs. A nil fs
// reads from disk and a nil logger disables logging.
func NewRegenerator(fs afero.Fs, pipeline *generate.Pipeline, inputs []string, outputDir string, opts generate.Options, logger *zap.Logger) *Regenerator {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaned := make([]string, len(inputs))
	for i, in := range inputs {
		cleaned[i] = filepath.Clean(in)
	}
	return &Regenerator{
		fs:        fs,
		pipeline:  pipeline,
		inputs:    cleaned,
		outputDir: outputDir,
		opts:      opts,
		logger:    logger,
	}
}

// SetNotifier sends generation events to n.
func (r *Regenerator) SetNotifier(n *Notifier) {
	r.notifier = n
}

// affected returns the inputs to rebuild for changed. A changed input
// rebuilds itself; any other changed file rebuilds every input.
func (r *Regenerator) affected(changed []string) []string {
	inputs := make(map[string]bool, len(r.inputs))
	for _, in := range r.inputs {
		inputs[in] = true
	}

	var hit []string
	for _, file := range changed {
		file = filepath.Clean(file)
		if !inputs[file] {
			return r.inputs
		}
		hit = append(hit, file)
	}
	return hit
}

// Regenerate rebuilds the inputs affected by changed. Failures are
// collected per input; the error return is reserved for a cancelled ctx.
func (r *Regenerator) Regenerate(ctx context.Context, changed []string) (*RegenerateResult, error) {
	start := time.Now()
	result := &RegenerateResult{
		ChangedFiles: changed,
		Errors:       make(map[string]error),
	}

	if len(changed) == 0 {
		result.Success = true
		return result, nil
	}
	result.Inputs = r.affected(changed)
	r.notifier.NotifyBuilding(changed)

	for _, input := range result.Inputs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		bundle, err := r.generate(ctx, input)
		if err != nil {
			result.Errors[input] = err
			r.logger.Error("regeneration failed", zap.String("input", input), zap.Error(err))
			r.notifier.NotifyError(NewErrorInfo(input, err))
			continue
		}
		result.Bundles = append(result.Bundles, bundle)
	}

	result.Duration = time.Since(start)
	result.Success = len(result.Errors) == 0
	if result.Success {
		r.logger.Info("bundles regenerated",
			zap.Strings("bundles", result.Bundles),
			zap.Duration("duration", result.Duration))
		r.notifier.NotifySuccess(result.Bundles, result.Duration)
	}
	return result, nil
}

func (r *Regenerator) generate(ctx context.Context, input string) (string, error) {
	data, err := afero.ReadFile(r.fs, input)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", input, err)
	}
	res, err := r.pipeline.GenerateFromBytes(ctx, data, r.outputDir, r.opts)
	if err != nil {
		return "", err
	}
	return res.LocalPath, nil
}

// OnChange adapts Regenerate to the FileWatcher callback.
func (r *Regenerator) OnChange(ctx context.Context) func([]string) error {
	return func(files []string) error {
		result, err := r.Regenerate(ctx, files)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("%d of %d inputs failed to generate", len(result.Errors), len(result.Inputs))
		}
		return nil
	}
}
