package commands

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/apigee/apigee-templater/internal/cli/ui"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// Global flags
var (
	cfgFile string
	noColor bool
	verbose bool
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "templater",
		Short: "Build and compose API proxy templates",
		Long: color.CyanString(`templater - API proxy templates and features

Stores proxy templates and reusable features, composes features into
templates, converts templates to and from proxy bundle archives, and
generates bundles from compact JSON or YAML descriptions.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: templater.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewTemplateCommand())
	rootCmd.AddCommand(NewFeatureCommand())
	rootCmd.AddCommand(NewGenerateCommand())
	rootCmd.AddCommand(NewSpecCommand())
	rootCmd.AddCommand(NewWatchCommand())
	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the templater version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			kv := ui.NewKeyValueTable(cmd.OutOrStdout(), noColor)
			kv.AddRow("templater version", Version)
			kv.AddRow("Git commit", GitCommit)
			kv.AddRow("Build date", BuildDate)
			kv.AddRow("Go version", goVer)
			kv.Render()
		},
	}
}

// reportedError carries a message already formatted for the terminal
type reportedError struct {
	message string
	err     error
}

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if errors.As(err, &reported) {
			fmt.Fprint(rootCmd.ErrOrStderr(), reported.message)
		} else {
			fmt.Fprint(rootCmd.ErrOrStderr(), ui.DescribeError(err, noColor))
		}
		return err
	}
	return nil
}
