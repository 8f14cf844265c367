package commands

import (
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/cli/ui"
	"github.com/apigee/apigee-templater/internal/generate"
)

// NewGenerateCommand creates the generate command
func NewGenerateCommand() *cobra.Command {
	var (
		outputDir string
		project   string
		profile   string
	)

	cmd := &cobra.Command{
		Use:     "generate <file>...",
		Aliases: []string{"g", "gen"},
		Short:   "Generate proxy bundles from JSON or YAML inputs",
		Long: `Generate a proxy or shared flow bundle archive from each input file.

An input names the bundle and lists its endpoints with a base path,
a target and optional auth, quota, spike arrest and extension steps.
Each bundle is written to <output>/<name>.zip.

Examples:
  templater generate pets.yaml
  templater generate pets.yaml orders.json -o dist
  templater generate events.yaml --profile bigquery --project my-gcp-project`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if outputDir == "" {
					outputDir = a.config.Generate.OutputDir
				}
				if project == "" {
					project = a.config.Generate.Project
				}
				if profile == "" && a.config.Generate.Profile != "default" {
					profile = a.config.Generate.Profile
				}
				opts := generate.Options{Project: project}

				gen := func(file string, status func(string)) (*generate.GenerateResult, error) {
					data, err := afero.ReadFile(a.fs, file)
					if err != nil {
						return nil, fmt.Errorf("failed to read %s: %w", file, err)
					}
					input, err := a.service.Pipeline().Convert(data)
					if err != nil {
						return nil, fmt.Errorf("%s: %w", file, err)
					}
					if profile != "" && input.Profile == "" {
						input.Profile = profile
					}
					status(fmt.Sprintf("Generating %s with profile %s...", input.Name, input.ProfileName()))
					res, err := a.service.Generate(cmd.Context(), input, outputDir, opts)
					if err != nil {
						return nil, fmt.Errorf("%s: %w", file, err)
					}
					a.logger.Debug("bundle generated",
						zap.String("input", file),
						zap.String("bundle", res.LocalPath),
						zap.Duration("duration", res.Duration))
					return res, nil
				}

				out := cmd.OutOrStdout()
				if len(args) == 1 {
					spinner := ui.NewSpinner(out, fmt.Sprintf("Reading %s...", args[0]), 0, noColor)
					spinner.Start()
					res, err := gen(args[0], spinner.UpdateMessage)
					if err != nil {
						spinner.Error(fmt.Sprintf("Failed to generate %s", args[0]))
						return err
					}
					spinner.Success(fmt.Sprintf("Generated %s in %s", res.LocalPath, res.Duration.Round(time.Millisecond)))
					return nil
				}

				bar := ui.NewProgressBar(out, len(args), "Generating bundles", noColor)
				var results []*generate.GenerateResult
				for _, file := range args {
					res, err := gen(file, func(string) {})
					if err != nil {
						return err
					}
					results = append(results, res)
					bar.Add(1)
				}
				bar.Finish(fmt.Sprintf("Generated %d bundles", len(results)))

				table := ui.NewTable(out, noColor, "NAME", "BUNDLE", "DURATION")
				for _, res := range results {
					table.AddRow(res.Template.Name, res.LocalPath, res.Duration.Round(time.Millisecond).String())
				}
				table.Render()
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: generate.output_dir)")
	cmd.Flags().StringVar(&project, "project", "", "Value of the PROJECT parameter (default: $PROJECT)")
	cmd.Flags().StringVar(&profile, "profile", "", "Profile for inputs that do not name one")

	return cmd
}
