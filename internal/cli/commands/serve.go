package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/apigee/apigee-templater/internal/cli/ui"
	"github.com/apigee/apigee-templater/internal/server"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var (
		addr            string
		shutdownTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the template API over HTTP",
		Long: `Serve templates, features and bundle generation over HTTP.

Routes:
  GET    /health
  GET    /templates                          list template names
  POST   /templates                          create a template
  GET    /templates/{name}                   fetch a template (?format=yaml)
  PUT    /templates/{name}                   replace a template
  DELETE /templates/{name}
  GET    /templates/{name}/archive           export a bundle archive
  POST   /templates/{name}/archive           import a bundle archive
  POST   /templates/{name}/endpoints         add an endpoint
  POST   /templates/{name}/targets           add a target
  POST   /templates/{name}/features/{f}      apply a feature
  DELETE /templates/{name}/features/{f}      remove a feature
  GET    /features ...                       the same for features
  POST   /generate                           generate a bundle (?format=zip)
  POST   /token                              exchange credentials for a bearer token

With server.auth configured every route but /health requires either basic
auth for one of server.auth.users or a bearer token signed with
server.auth.jwt_secret.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				config := server.DefaultConfig()
				config.Address = a.config.ServerAddress()
				if addr != "" {
					config.Address = addr
				}
				config.OutputDir = a.config.Generate.OutputDir
				config.Project = a.config.Generate.Project
				config.Auth = a.config.ServerAuth()

				srv, err := server.New(a.service, config, a.logger)
				if err != nil {
					return err
				}

				errChan := make(chan error, 1)
				go func() {
					errChan <- srv.Start()
				}()

				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(sigChan)

				out := cmd.OutOrStdout()
				color.New(color.FgCyan, color.Bold).Fprintf(out, "Serving templates on http://%s\n", config.Address)
				if !config.Auth.Enabled() {
					fmt.Fprint(out, ui.Warning("Authentication is disabled; set server.auth to protect the API", noColor))
				}
				color.New(color.FgYellow).Fprintln(out, "Press Ctrl+C to stop")

				select {
				case err := <-errChan:
					if err != nil {
						return fmt.Errorf("server failed: %w", err)
					}
					return nil
				case <-sigChan:
				case <-cmd.Context().Done():
				}

				fmt.Fprintln(out, "\nShutting down...")
				ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					a.logger.Error("graceful shutdown failed", zap.Error(err))
					return err
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.host:server.port)")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "Time allowed for in-flight requests on shutdown")

	cmd.AddCommand(NewServeTokenCommand())
	cmd.AddCommand(NewServeHashPasswordCommand())

	return cmd
}

// NewServeTokenCommand creates the serve token command
func NewServeTokenCommand() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token signed with server.auth.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				auth := a.config.ServerAuth()
				if auth.JWTSecret == "" {
					return fmt.Errorf("server.auth.jwt_secret is not set")
				}
				if ttl > 0 {
					auth.TokenTTL = ttl
				}
				token, err := server.NewAuthenticator(auth).IssueToken(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: server.auth.token_ttl)")
	return cmd
}

// NewServeHashPasswordCommand creates the serve hash-password command
func NewServeHashPasswordCommand() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password for server.auth.users",
		Long: `Print the bcrypt hash of a password for use in server.auth.users.

The password is prompted for unless --password is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				prompt := &survey.Password{Message: "Password:"}
				if err := survey.AskOne(prompt, &password, survey.WithValidator(survey.Required)); err != nil {
					return err
				}
			}
			hash, err := server.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "Password to hash")
	return cmd
}
