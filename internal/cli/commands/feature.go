package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apigee/apigee-templater/internal/cli/ui"
	"github.com/apigee/apigee-templater/internal/document"
)

// NewFeatureCommand creates the feature command
func NewFeatureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "feature",
		Aliases: []string{"features", "f"},
		Short:   "Manage features and apply them to templates",
		Long: `Manage reusable features and compose them into templates.

Examples:
  templater feature import spike-arrest spike-arrest.yaml
  templater feature apply pet-store spike-arrest --param rate=20ps
  templater feature remove pet-store spike-arrest`,
	}

	cmd.AddCommand(NewFeatureListCommand())
	cmd.AddCommand(NewFeatureGetCommand())
	cmd.AddCommand(NewFeatureDescribeCommand())
	cmd.AddCommand(NewFeatureImportCommand())
	cmd.AddCommand(NewFeatureExportCommand())
	cmd.AddCommand(NewFeatureDeleteCommand())
	cmd.AddCommand(NewFeatureApplyCommand())
	cmd.AddCommand(NewFeatureRemoveCommand())

	return cmd
}

// NewFeatureListCommand creates the feature list command
func NewFeatureListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				names, err := a.service.ListFeatures(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(names) == 0 {
					fmt.Fprint(out, ui.Info("No features stored. Import one with 'templater feature import <name> <file>'.", noColor))
					return nil
				}

				table := ui.NewTable(out, noColor, "NAME", "PRIORITY", "PARAMETERS", "DESCRIPTION")
				for _, name := range names {
					f, err := a.service.GetFeature(ctx, name)
					if err != nil {
						return err
					}
					params := make([]string, len(f.Parameters))
					for i, p := range f.Parameters {
						params[i] = p.Name
					}
					table.AddRow(name,
						strconv.Itoa(f.EffectivePriority()),
						strings.Join(params, ", "),
						f.Description)
				}
				table.Render()
				return nil
			})
		},
	}
}

// NewFeatureGetCommand creates the feature get command
func NewFeatureGetCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:               "get <name>",
		Short:             "Print a feature as JSON or YAML",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("feature"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				f, err := a.service.GetFeature(cmd.Context(), args[0])
				if err != nil {
					return a.explainNotFound(cmd.Context(), "feature", args[0], err)
				}
				return printDocument(cmd, f, format)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json|yaml)")
	return cmd
}

// NewFeatureDescribeCommand creates the feature describe command
func NewFeatureDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "describe <name>",
		Short:             "Summarize a feature and its parameters",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("feature"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				f, err := a.service.GetFeature(cmd.Context(), args[0])
				if err != nil {
					return a.explainNotFound(cmd.Context(), "feature", args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), f.Describe())
				return nil
			})
		},
	}
}

// NewFeatureImportCommand creates the feature import command
func NewFeatureImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <name> <file>",
		Short: "Import a feature from a bundle archive or a JSON/YAML document",
		Long: `Import a feature. A .zip file is read as a proxy bundle archive whose
properties become feature parameters; any other file is read as a JSON or
YAML feature document.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, file := args[0], args[1]
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}

			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				return ui.WithSpinner(cmd.OutOrStdout(), fmt.Sprintf("Importing %s", file), noColor, func() (string, error) {
					var f *document.Feature
					if strings.EqualFold(filepath.Ext(file), ".zip") {
						f, err = a.service.ImportFeatureArchive(ctx, name, data)
					} else {
						f, err = document.DecodeFeature(data)
						if err == nil {
							f.Name = strings.ReplaceAll(name, " ", "-")
							err = a.service.SaveFeature(ctx, f)
						}
					}
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("Imported feature %s (%d parameters, %d policies)", f.Name, len(f.Parameters), len(f.Policies)), nil
				})
			})
		},
	}
}

// NewFeatureExportCommand creates the feature export command
func NewFeatureExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:               "export <name>",
		Short:             "Export a feature as a bundle archive",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("feature"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				data, err := a.service.ExportFeatureArchive(cmd.Context(), args[0])
				if err != nil {
					return a.explainNotFound(cmd.Context(), "feature", args[0], err)
				}
				path := output
				if path == "" {
					path = args[0] + ".zip"
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Exported feature %s to %s", args[0], path), noColor)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default: <name>.zip)")
	return cmd
}

// NewFeatureDeleteCommand creates the feature delete command
func NewFeatureDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete <name>",
		Short:             "Delete a feature",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("feature"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.service.DeleteFeature(cmd.Context(), args[0]); err != nil {
					return a.explainNotFound(cmd.Context(), "feature", args[0], err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Deleted feature %s", args[0]), noColor)
				return nil
			})
		},
	}
}

// NewFeatureApplyCommand creates the feature apply command
func NewFeatureApplyCommand() *cobra.Command {
	var params map[string]string

	cmd := &cobra.Command{
		Use:   "apply <template> <feature>",
		Short: "Apply a feature to a template",
		Long: `Apply a feature to a stored template and save the result.

Parameters without a --param value use the feature's defaults.`,
		Args: cobra.ExactArgs(2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return completeNames("feature")(cmd, nil, toComplete)
			}
			return completeNames("template")(cmd, args, toComplete)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				t, err := a.service.ApplyFeature(ctx, args[0], args[1], params)
				if err != nil {
					if _, gerr := a.service.Get(ctx, args[0]); gerr != nil {
						return a.explainNotFound(ctx, "template", args[0], err)
					}
					return a.explainNotFound(ctx, "feature", args[1], err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(),
					fmt.Sprintf("Applied feature %s to %s (features: %s)", args[1], t.Name, strings.Join(t.Features, ", ")),
					noColor)
				return nil
			})
		},
	}

	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Feature parameter as name=value (repeatable)")
	return cmd
}

// NewFeatureRemoveCommand creates the feature remove command
func NewFeatureRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <template> <feature>",
		Short: "Remove an applied feature from a template",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				t, err := a.service.RemoveFeature(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				ui.WriteSuccess(cmd.OutOrStdout(),
					fmt.Sprintf("Removed feature %s from %s (%d features left)", args[1], t.Name, len(t.Features)),
					noColor)
				return nil
			})
		},
	}
}
