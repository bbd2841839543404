package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/config"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/logging"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/orchestrator"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const version = "0.9"

const (
	exitFatal  = 1
	exitConfig = 2
)

// exitError carries the process exit code out of the command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	log := logging.New()

	if err := newRootCommand(log).Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		log.WithError(err).Error("Bad command line")
		log.Info(config.Help())
		os.Exit(exitConfig)
	}
}

func newRootCommand(log *logrus.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "refresher [key=value ...]",
		Short:         "Keep CouchDB view indexes up to date",
		Long:          "Queries every view of the views design document so CouchDB updates its index." + config.Help(),
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, log)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

func run(cmd *cobra.Command, args []string, log *logrus.Logger) error {
	log.Infof("CouchDB View Refresher %s", version)

	cfg, rt, err := config.Load(log, cmd.Flags(), args)
	if err != nil {
		log.Errorf("Bad config: %v", err)
		log.Info(config.Help())
		return &exitError{code: exitConfig, err: err}
	}

	if err := logging.Configure(log, rt.LogLevel, rt.LogFormat); err != nil {
		log.Errorf("Bad config: %v", err)
		return &exitError{code: exitConfig, err: err}
	}

	log.Infof("Using configuration\n%s", cfg)

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.NewOrchestrator(cfg, rt, log)
	if err := orch.Start(); err != nil {
		log.WithError(err).Error("Failed to start orchestrator")
		return &exitError{code: exitFatal, err: err}
	}
	defer orch.Stop()

	if err := orch.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("Shutdown signal received...")
			return nil
		}
		log.WithError(err).Error("Refresh failed")
		return &exitError{code: exitFatal, err: err}
	}

	log.Info("Refresher finished")
	return nil
}
