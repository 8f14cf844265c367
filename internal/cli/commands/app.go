package commands

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/bundle"
	"github.com/apigee/apigee-templater/internal/cli/config"
	"github.com/apigee/apigee-templater/internal/cli/ui"
	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/generate/plugins"
	"github.com/apigee/apigee-templater/internal/logging"
	"github.com/apigee/apigee-templater/internal/service"
	"github.com/apigee/apigee-templater/internal/store"
)

// app holds what a command needs once configuration is loaded
type app struct {
	config  *config.Config
	logger  *zap.Logger
	fs      afero.Fs
	service *service.Service
	close   func() error
}

// newApp loads configuration and opens the store
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, &reportedError{message: ui.ConfigError(err.Error(), noColor), err: err}
	}

	logConfig := cfg.LoggingConfig()
	if verbose {
		logConfig.Level = "debug"
	}
	logger := logging.New(logConfig)

	fs := afero.NewOsFs()
	backend, closer, err := store.Open(ctx, cfg.StoreConfig(fs), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	codecConfig := bundle.DefaultConfig()
	codecConfig.Fs = fs
	codec := bundle.NewCodec(codecConfig, logger)
	pipeline := generate.NewPipeline(plugins.NewRegistry(), fs, logger)

	return &app{
		config:  cfg,
		logger:  logger,
		fs:      fs,
		service: service.New(store.New(backend, logger), codec, pipeline, logger),
		close: func() error {
			logger.Sync()
			return closer()
		},
	}, nil
}

// withApp runs fn with a loaded app and closes it afterwards
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

// explainNotFound adds "did you mean" suggestions to NotFound errors
func (a *app) explainNotFound(ctx context.Context, kind, name string, err error) error {
	if !terrors.HasCode(err, terrors.NotFound) {
		return err
	}
	var names []string
	switch kind {
	case "template":
		names, _ = a.service.List(ctx)
	case "feature":
		names, _ = a.service.ListFeatures(ctx)
	}
	return &reportedError{
		message: ui.NotFoundError(kind, name, ui.FindSimilar(name, names), noColor),
		err:     err,
	}
}

// completeNames completes template or feature names for positional args
func completeNames(kind string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		a, err := newApp(cmd.Context())
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		defer a.close()

		var names []string
		if kind == "feature" {
			names, err = a.service.ListFeatures(cmd.Context())
		} else {
			names, err = a.service.List(cmd.Context())
		}
		if err != nil {
			return nil, cobra.ShellCompDirectiveError
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}
}
