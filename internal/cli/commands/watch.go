package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/generate"
	"github.com/apigee/apigee-templater/internal/watch"
)

// NewWatchCommand creates the watch command
func NewWatchCommand() *cobra.Command {
	var (
		outputDir  string
		project    string
		patterns   []string
		ignored    []string
		notifyAddr string
		debounce   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <file>...",
		Short: "Regenerate bundles when their inputs change",
		Long: `Generate a bundle from each input file, then watch the input directories
and regenerate whenever a matching file changes.

A change to an input rebuilds that input's bundle. A change to any other
matching file (a shared snippet, for example) rebuilds every input.

With --notify-addr, build events are pushed to websocket clients
connected to ws://<addr>/events.

Examples:
  templater watch pets.yaml
  templater watch specs/*.yaml -o dist --notify-addr localhost:3001`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if outputDir == "" {
					outputDir = a.config.Generate.OutputDir
				}
				if project == "" {
					project = a.config.Generate.Project
				}

				config := watch.DefaultConfig()
				config.Roots = inputRoots(args)
				if len(patterns) > 0 {
					config.Patterns = patterns
				}
				config.Ignored = append(config.Ignored, ignored...)
				config.Ignored = append(config.Ignored, outputIgnores(config.Roots, outputDir)...)
				if debounce > 0 {
					config.Debounce = debounce
				}

				ctx, cancel := context.WithCancel(cmd.Context())
				defer cancel()

				regen := watch.NewRegenerator(a.fs, a.service.Pipeline(), args, outputDir,
					generate.Options{Project: project}, a.logger)

				var notifier *watch.Notifier
				var notifyServer *http.Server
				if notifyAddr != "" {
					notifier = watch.NewNotifier(a.logger)
					defer notifier.Close()
					regen.SetNotifier(notifier)

					r := chi.NewRouter()
					r.Handle("/events", notifier)
					notifyServer = &http.Server{
						Addr:              notifyAddr,
						Handler:           r,
						ReadHeaderTimeout: 10 * time.Second,
					}
					go func() {
						if err := notifyServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							a.logger.Error("event server failed", zap.Error(err))
						}
					}()
				}

				out := cmd.OutOrStdout()
				result, err := regen.Regenerate(ctx, args)
				if err != nil {
					return err
				}
				reportRegenerate(out, result)

				watcher, err := watch.NewFileWatcher(config, regen.OnChange(ctx), a.logger)
				if err != nil {
					return err
				}
				if err := watcher.Start(); err != nil {
					return fmt.Errorf("failed to start watcher: %w", err)
				}

				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(sigChan)

				banner := color.New(color.FgCyan, color.Bold)
				info := color.New(color.FgWhite)

				fmt.Fprintln(out)
				banner.Fprintln(out, "Watching for changes")
				info.Fprintf(out, "   Inputs:  %s\n", strings.Join(args, ", "))
				info.Fprintf(out, "   Output:  %s\n", outputDir)
				if notifyServer != nil {
					info.Fprintf(out, "   Events:  ws://%s/events\n", notifyAddr)
				}
				fmt.Fprintln(out)
				color.New(color.FgYellow).Fprintln(out, "Press Ctrl+C to stop")
				fmt.Fprintln(out)

				select {
				case <-sigChan:
				case <-ctx.Done():
				}

				fmt.Fprintln(out, "\nShutting down...")
				cancel()

				if notifyServer != nil {
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					defer stop()
					notifyServer.Shutdown(shutdownCtx)
				}
				if err := watcher.Stop(); err != nil {
					return fmt.Errorf("error stopping watcher: %w", err)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: generate.output_dir)")
	cmd.Flags().StringVar(&project, "project", "", "Value of the PROJECT parameter (default: $PROJECT)")
	cmd.Flags().StringSliceVar(&patterns, "pattern", nil, "Glob of files that trigger regeneration (default: json and yaml files)")
	cmd.Flags().StringSliceVar(&ignored, "ignore", nil, "Glob of files to ignore (repeatable)")
	cmd.Flags().StringVar(&notifyAddr, "notify-addr", "", "Serve build events over websocket at this address")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before regenerating (default: 100ms)")

	return cmd
}

// inputRoots returns the distinct directories containing the inputs.
func inputRoots(inputs []string) []string {
	seen := make(map[string]bool)
	var roots []string
	for _, in := range inputs {
		dir := filepath.Dir(filepath.Clean(in))
		if !seen[dir] {
			seen[dir] = true
			roots = append(roots, dir)
		}
	}
	return roots
}

// outputIgnores returns patterns that exclude outputDir below any root.
func outputIgnores(roots []string, outputDir string) []string {
	var patterns []string
	for _, root := range roots {
		rel, err := filepath.Rel(root, outputDir)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		rel = filepath.ToSlash(rel)
		patterns = append(patterns, rel, rel+"/**")
	}
	return patterns
}

func reportRegenerate(out io.Writer, result *watch.RegenerateResult) {
	for _, b := range result.Bundles {
		color.New(color.FgGreen).Fprintf(out, "Generated %s\n", b)
	}
	for input, err := range result.Errors {
		color.New(color.FgRed).Fprintf(out, "Failed %s: %v\n", input, err)
	}
}
