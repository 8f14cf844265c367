package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	terrors "github.com/apigee/apigee-templater/internal/errors"
)

// ErrorLevel represents the severity of an error message
type ErrorLevel int

const (
	ErrorLevelError ErrorLevel = iota
	ErrorLevelWarning
	ErrorLevelInfo
)

// ErrorOptions configures the error message formatting
type ErrorOptions struct {
	Level        ErrorLevel
	Context      string
	Problem      string
	Detail       string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatError creates a standardized error message with suggestions and help commands
//
// Example output:
//
//	❌ TEMPLATE NOT FOUND: Cannot find template 'pet-stor'.
//
//	   Did you mean: pet-store?
//
//	   → See all templates: templater template list
func FormatError(opts ErrorOptions) string {
	var b strings.Builder

	var header, body *color.Color
	var symbol string
	switch opts.Level {
	case ErrorLevelWarning:
		header = paint(opts.NoColor, color.FgYellow, color.Bold)
		body = paint(opts.NoColor, color.FgYellow)
		symbol = "⚠️"
	case ErrorLevelInfo:
		header = paint(opts.NoColor, color.FgCyan, color.Bold)
		body = paint(opts.NoColor, color.FgCyan)
		symbol = "ℹ️"
	default:
		header = paint(opts.NoColor, color.FgRed, color.Bold)
		body = paint(opts.NoColor, color.FgRed)
		symbol = "❌"
	}

	if opts.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(opts.Context), opts.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if opts.Detail != "" {
		b.WriteString("\n")
		body.Fprintf(&b, "   %s\n", opts.Detail)
	}

	if len(opts.Suggestions) > 0 {
		b.WriteString("\n")
		paint(opts.NoColor, color.FgYellow).Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		b.WriteString("\n")
		cyan := paint(opts.NoColor, color.FgCyan)
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

// WriteError writes a formatted error message to the writer
func WriteError(w io.Writer, opts ErrorOptions) {
	fmt.Fprint(w, FormatError(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	return paint(noColor, color.FgGreen, color.Bold).Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to the writer
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// NotFoundError creates a not found error for a template or feature
func NotFoundError(kind, name string, suggestions []string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context:     kind + " not found",
		Problem:     fmt.Sprintf("Cannot find %s '%s'.", kind, name),
		Suggestions: suggestions,
		HelpCommands: []string{
			fmt.Sprintf("See all %ss: templater %s list", kind, kind),
		},
		NoColor: noColor,
	})
}

// DescribeError formats err for the terminal. Structured errors get their
// code, the failing entity and stage, the suggestion and help commands
// matching the code.
func DescribeError(err error, noColor bool) string {
	var te *terrors.TemplaterError
	if !errors.As(err, &te) {
		return FormatError(ErrorOptions{Problem: err.Error(), NoColor: noColor})
	}

	opts := ErrorOptions{
		Context: fmt.Sprintf("%s %s", te.Type, te.Code),
		Problem: te.Message,
		NoColor: noColor,
	}
	var details []string
	if te.Entity != "" {
		details = append(details, "entity: "+te.Entity)
	}
	if te.Stage != "" {
		details = append(details, "stage: "+te.Stage)
	}
	if te.Cause != nil {
		details = append(details, "cause: "+te.Cause.Error())
	}
	opts.Detail = strings.Join(details, "\n   ")
	if te.Suggestion != "" {
		opts.HelpCommands = append(opts.HelpCommands, te.Suggestion)
	}
	opts.HelpCommands = append(opts.HelpCommands, helpFor(te.Code)...)
	return FormatError(opts)
}

func helpFor(code terrors.ErrorCode) []string {
	switch code {
	case terrors.NotFound:
		return []string{"See all templates: templater template list", "See all features: templater feature list"}
	case terrors.FeatureAlreadyApplied, terrors.FeatureNotApplied:
		return []string{"Inspect the template: templater template describe <name>"}
	case terrors.UnknownProfile:
		return []string{"Get help: templater generate --help"}
	case terrors.NoConvertingFormat:
		return []string{"Inputs must be JSON or YAML documents with a name"}
	}
	return nil
}

// ConfigError creates a standardized configuration error
func ConfigError(message string, noColor bool) string {
	return FormatError(ErrorOptions{
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"View config: cat templater.yaml",
			"Get help: templater --help",
		},
		NoColor: noColor,
	})
}

// Warning creates a standardized warning message
func Warning(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelWarning, Problem: message, NoColor: noColor})
}

// Info creates a standardized info message
func Info(message string, noColor bool) string {
	return FormatError(ErrorOptions{Level: ErrorLevelInfo, Problem: message, NoColor: noColor})
}
