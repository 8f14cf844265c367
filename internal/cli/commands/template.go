package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/apigee/apigee-templater/internal/cli/ui"
	"github.com/apigee/apigee-templater/internal/document"
	terrors "github.com/apigee/apigee-templater/internal/errors"
	"github.com/apigee/apigee-templater/internal/service"
)

// NewTemplateCommand creates the template command
func NewTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "template",
		Aliases: []string{"templates", "t"},
		Short:   "Manage proxy templates",
		Long: `Manage stored proxy templates.

Examples:
  templater template create pet-store --base-path /pets --target-url https://petstore.example.com
  templater template add-target pet-store --name orders --url https://orders.example.com \
      --route-condition 'request.path JavaMatches "/orders.*"'
  templater template describe pet-store
  templater template export pet-store -o pet-store.zip`,
	}

	cmd.AddCommand(NewTemplateListCommand())
	cmd.AddCommand(NewTemplateGetCommand())
	cmd.AddCommand(NewTemplateCreateCommand())
	cmd.AddCommand(NewTemplateDeleteCommand())
	cmd.AddCommand(NewTemplateDescribeCommand())
	cmd.AddCommand(NewTemplateImportCommand())
	cmd.AddCommand(NewTemplateExportCommand())
	cmd.AddCommand(NewTemplateAddEndpointCommand())
	cmd.AddCommand(NewTemplateAddTargetCommand())

	return cmd
}

// NewTemplateListCommand creates the template list command
func NewTemplateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				ctx := cmd.Context()
				names, err := a.service.List(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(names) == 0 {
					fmt.Fprint(out, ui.Info("No templates stored. Create one with 'templater template create <name>'.", noColor))
					return nil
				}

				table := ui.NewTable(out, noColor, "NAME", "ENDPOINTS", "TARGETS", "FEATURES")
				for _, name := range names {
					t, err := a.service.Get(ctx, name)
					if err != nil {
						return err
					}
					table.AddRow(name,
						strconv.Itoa(len(t.Endpoints)),
						strconv.Itoa(len(t.Targets)),
						strings.Join(t.Features, ", "))
				}
				table.Render()
				return nil
			})
		},
	}
}

// NewTemplateGetCommand creates the template get command
func NewTemplateGetCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:               "get <name>",
		Short:             "Print a template as JSON or YAML",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("template"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				t, err := a.service.Get(cmd.Context(), args[0])
				if err != nil {
					return a.explainNotFound(cmd.Context(), "template", args[0], err)
				}
				return printDocument(cmd, t, format)
			})
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format (json|yaml)")
	return cmd
}

func printDocument(cmd *cobra.Command, v any, format string) error {
	f := document.Format(format)
	if f != document.FormatJSON && f != document.FormatYAML {
		return fmt.Errorf("unknown format %q (expected json or yaml)", format)
	}
	data, err := document.Encode(v, f)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	out.Write(data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		fmt.Fprintln(out)
	}
	return nil
}

// NewTemplateCreateCommand creates the template create command
func NewTemplateCreateCommand() *cobra.Command {
	var (
		basePath    string
		targetURL   string
		features    []string
		params      map[string]string
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "create [name]",
		Short: "Create a template",
		Long: `Create a template with an optional default endpoint and target.

A base path adds a "default" endpoint; a target URL adds a "default" target
and routes the default endpoint to it. Spaces in the name become dashes.

Each --feature is applied to the new template, features contributing
endpoints or targets first, then by ascending priority. The template is not
stored if any feature is missing or fails to apply.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) > 0 {
				name = args[0]
			}

			if interactive {
				if err := askTemplate(&name, &basePath, &targetURL); err != nil {
					return err
				}
			}
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("template name is required (pass it as an argument or use --interactive)")
			}

			return withApp(cmd, func(a *app) error {
				t, err := a.service.CreateWithFeatures(cmd.Context(), name, basePath, targetURL, features, params)
				if err != nil {
					var te *terrors.TemplaterError
					if errors.As(err, &te) && te.Code == terrors.NotFound {
						return a.explainNotFound(cmd.Context(), "feature", te.Entity, err)
					}
					return err
				}
				msg := fmt.Sprintf("Created template %s", t.Name)
				if len(t.Features) > 0 {
					msg += " with " + strings.Join(t.Features, ", ")
				}
				ui.WriteSuccess(cmd.OutOrStdout(), msg, noColor)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&basePath, "base-path", "", "Base path of the default endpoint")
	cmd.Flags().StringVar(&targetURL, "target-url", "", "URL of the default target")
	cmd.Flags().StringSliceVar(&features, "feature", nil, "Stored feature to apply (repeatable)")
	cmd.Flags().StringToStringVar(&params, "param", nil, "Feature parameter as name=value (repeatable)")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Prompt for the template details")
	return cmd
}

func askTemplate(name, basePath, targetURL *string) error {
	questions := []*survey.Question{
		{
			Name:     "name",
			Prompt:   &survey.Input{Message: "Template name:", Default: *name},
			Validate: survey.Required,
		},
		{
			Name:   "basePath",
			Prompt: &survey.Input{Message: "Base path (empty for no endpoint):", Default: *basePath},
		},
		{
			Name:   "targetURL",
			Prompt: &survey.Input{Message: "Target URL (empty for no target):", Default: *targetURL},
		},
	}
	answers := struct {
		Name      string `survey:"name"`
		BasePath  string `survey:"basePath"`
		TargetURL string `survey:"targetURL"`
	}{}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}
	*name, *basePath, *targetURL = answers.Name, answers.BasePath, answers.TargetURL
	return nil
}

// NewTemplateDeleteCommand creates the template delete command
func NewTemplateDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "delete <name>",
		Short:             "Delete a template",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("template"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				if err := a.service.Delete(cmd.Context(), args[0]); err != nil {
					return a.explainNotFound(cmd.Context(), "template", args[0], err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Deleted template %s", args[0]), noColor)
				return nil
			})
		},
	}
}

// NewTemplateDescribeCommand creates the template describe command
func NewTemplateDescribeCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "describe <name>",
		Short:             "Summarize a template",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("template"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				t, err := a.service.Get(cmd.Context(), args[0])
				if err != nil {
					return a.explainNotFound(cmd.Context(), "template", args[0], err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), t.Describe())
				return nil
			})
		},
	}
}

// NewTemplateImportCommand creates the template import command
func NewTemplateImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <name> <file>",
		Short: "Import a template from a bundle archive or a JSON/YAML document",
		Long: `Import a template. A .zip file is read as a proxy bundle archive;
any other file is read as a JSON or YAML template document.`,
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
					var t *document.Template
					if strings.EqualFold(filepath.Ext(file), ".zip") {
						t, err = a.service.ImportArchive(ctx, name, data)
					} else {
						t, err = document.Decode(data)
						if err == nil {
							t.Name = strings.ReplaceAll(name, " ", "-")
							err = a.service.Save(ctx, t)
						}
					}
					if err != nil {
						return "", err
					}
					return fmt.Sprintf("Imported template %s (%d endpoints, %d policies)", t.Name, len(t.Endpoints), len(t.Policies)), nil
				})
			})
		},
	}
}

// NewTemplateExportCommand creates the template export command
func NewTemplateExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:               "export <name>",
		Short:             "Export a template as a bundle archive",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("template"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				data, err := a.service.ExportArchive(cmd.Context(), args[0])
				if err != nil {
					return a.explainNotFound(cmd.Context(), "template", args[0], err)
				}
				path := output
				if path == "" {
					path = args[0] + ".zip"
				}
				if err := os.WriteFile(path, data, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", path, err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Exported template %s to %s", args[0], path), noColor)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive path (default: <name>.zip)")
	return cmd
}

// NewTemplateAddEndpointCommand creates the template add-endpoint command
func NewTemplateAddEndpointCommand() *cobra.Command {
	var spec service.EndpointSpec

	cmd := &cobra.Command{
		Use:               "add-endpoint <template>",
		Short:             "Add a proxy endpoint to a template",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("template"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				t, err := a.service.AddEndpoint(cmd.Context(), args[0], spec)
				if err != nil {
					return a.explainNotFound(cmd.Context(), "template", args[0], err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(),
					fmt.Sprintf("Added endpoint %s to %s (%d endpoints)", spec.Name, t.Name, len(t.Endpoints)),
					noColor)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&spec.Name, "name", "", "Endpoint name")
	cmd.Flags().StringVar(&spec.BasePath, "base-path", "", "Endpoint base path")
	cmd.Flags().StringVar(&spec.TargetName, "target-name", "", "Target the endpoint routes to (default: default)")
	cmd.Flags().StringVar(&spec.TargetURL, "target-url", "", "Create the target with this URL")
	cmd.Flags().StringVar(&spec.RouteCondition, "route-condition", "", "Condition of the endpoint's route")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("base-path")
	return cmd
}

// NewTemplateAddTargetCommand creates the template add-target command
func NewTemplateAddTargetCommand() *cobra.Command {
	var spec service.TargetSpec

	cmd := &cobra.Command{
		Use:   "add-target <template>",
		Short: "Add a target to a template",
		Long: `Add a target. With --route-condition a conditional route to the target
is put in front of the existing routes of every endpoint.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeNames("template"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				t, err := a.service.AddTarget(cmd.Context(), args[0], spec)
				if err != nil {
					return a.explainNotFound(cmd.Context(), "template", args[0], err)
				}
				ui.WriteSuccess(cmd.OutOrStdout(),
					fmt.Sprintf("Added target %s to %s (%d targets)", spec.Name, t.Name, len(t.Targets)),
					noColor)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&spec.Name, "name", "", "Target name")
	cmd.Flags().StringVar(&spec.URL, "url", "", "Target URL")
	cmd.Flags().StringVar(&spec.RouteCondition, "route-condition", "", "Condition routing requests to the target")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("url")
	return cmd
}
