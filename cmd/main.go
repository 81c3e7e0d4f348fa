package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/keyresult-tracker/internal/app"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "keyresult-tracker",
		Short:         "Key result progress tracking service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with the in-process job worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), (*app.App).Serve)
		},
	}
	root.AddCommand(
		serve,
		&cobra.Command{
			Use:   "worker",
			Short: "Consume background jobs only",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), (*app.App).RunWorker)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply schema migrations and exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), func(a *app.App, _ context.Context) error {
					a.Log.Info("migrations applied")
					return nil
				})
			},
		},
	)
	// Bare invocation serves.
	root.RunE = serve.RunE
	return root
}

func withApp(parent context.Context, run func(*app.App, context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return run(a, ctx)
}
