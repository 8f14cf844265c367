package commands

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/apigee/apigee-templater/internal/cli/ui"
	"github.com/apigee/apigee-templater/internal/document"
	"github.com/apigee/apigee-templater/internal/generate"
)

// NewSpecCommand creates the spec command
func NewSpecCommand() *cobra.Command {
	var (
		opts   generate.SpecOptions
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "spec <payload.json>",
		Short: "Generate an OpenAPI spec from a sample data payload",
		Long: `Generate an OpenAPI 3 spec for a paged, read-only collection API from a
sample JSON payload. The first key of the payload names the collection and
every top-level key becomes a schema.

Examples:
  templater spec books.json
  templater spec books.json --server https://api.example.com --auth apiKey -o books.yaml
  templater spec books.json --examples --descriptions --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := document.Format(format)
			if f != document.FormatJSON && f != document.FormatYAML {
				return fmt.Errorf("unknown format %q (expected json or yaml)", format)
			}

			return withApp(cmd, func(a *app) error {
				payload, err := afero.ReadFile(a.fs, args[0])
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				spec, err := a.service.Spec(payload, opts)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				data, err := document.Encode(spec, f)
				if err != nil {
					return err
				}

				if output == "" {
					_, err := cmd.OutOrStdout().Write(data)
					return err
				}
				if err := afero.WriteFile(a.fs, output, data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote %s", output), noColor)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&opts.Servers, "server", nil, "Server URL (repeatable)")
	cmd.Flags().StringVar(&opts.Auth, "auth", generate.SpecAuthNone, "Security scheme (none|apiKey|basic|bearer)")
	cmd.Flags().BoolVar(&opts.Examples, "examples", false, "Add payload values as examples")
	cmd.Flags().BoolVar(&opts.Descriptions, "descriptions", false, "Add property descriptions")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (json|yaml)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the spec to this file instead of stdout")
	return cmd
}
