// Package main is the entry point for ticketflow.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rogersf/ticketflow/internal/config"
	"github.com/rogersf/ticketflow/internal/domain"
	"github.com/rogersf/ticketflow/internal/ipc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd(stdout, stderr io.Writer) *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   "ticketflow",
		Short: "Customer support ticket triage workflow",
		Long: `ticketflow classifies support tickets, drafts a reply from a knowledge
table, checks it against support policy and retries with refined context.
Tickets that keep failing review are escalated to a durable log for a human.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", os.Getenv("TICKETFLOW_CONFIG"), "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(runCmd(&g), serveCmd(&g), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ticketflow %s (commit=%s, built=%s)\n", version, commit, date)
		},
	}
}

func runCmd(g *globalFlags) *cobra.Command {
	var subject, description string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one ticket and print the terminal state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if a.cfg.Workflow.RunTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.cfg.Workflow.RunTimeout)
				defer cancel()
			}

			result, err := a.engine.Run(ctx, domain.Ticket{Subject: subject, Description: description})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Ticket subject")
	cmd.Flags().StringVar(&description, "description", "", "Ticket description")
	return cmd
}

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(g, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			srv := ipc.NewServer(a.handler(), a.cfg.Server.ListenAddr, a.logger, a.registry)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go pruneLoop(ctx, a)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return nil
		},
	}
}

// pruneLoop drops expired rate-limit buckets until ctx is done.
func pruneLoop(ctx context.Context, a *app) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.guard.Prune()
		}
	}
}

// loadApp reads configuration, applies flag overrides and wires the app.
func loadApp(g *globalFlags, logOut io.Writer) (*app, error) {
	var opts []config.Option
	if g.logLevel != "" {
		opts = append(opts, config.WithOverride("log.level", g.logLevel))
	}
	cfg, err := config.Load(g.configPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a, err := newApp(cfg, logOut)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(a.logger)
	return a, nil
}
