package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildhive/aws-connections/internal/config"
	"github.com/buildhive/aws-connections/internal/devhost"
	"github.com/buildhive/aws-connections/internal/logging"
)

var hostSimAgainstAws bool

var hostSimCmd = &cobra.Command{
	Use:   "hostsim",
	Short: "Run a standalone development host for the panel to talk to.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		setCommandExecutionContext(commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: true,
		})
		return runHostSim(cmd.CommandPath())
	},
}

func init() {
	hostSimCmd.Flags().BoolVar(&hostSimAgainstAws, "aws", false,
		"probe and rotate against real AWS instead of the offline fakes")
}

func runHostSim(commandPath string) error {
	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: commandPath})
	if err != nil {
		return err
	}

	cfg, err := config.LoadOptionalHost()
	if err != nil {
		return err
	}
	addr := cfg.DevHostAddr
	if addr == "" {
		addr = ":8111"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := devhost.NewStore()
	if err != nil {
		return err
	}

	opts := devhost.Options{
		Store: store,
		// The default chain only makes sense when the simulator process
		// itself carries ambient AWS credentials.
		DefaultChainEnabled: hostSimAgainstAws,
	}
	if hostSimAgainstAws {
		opts.Prober = &devhost.STSProber{}
		opts.Rotator = &devhost.IAMRotator{}
	}
	sim := devhost.NewServer(opts)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("development host listening", "addr", addr, "aws", hostSimAgainstAws)
		errCh <- sim.Start(addr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = sim.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
