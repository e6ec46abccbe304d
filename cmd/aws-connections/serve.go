package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/spf13/cobra"

	"github.com/buildhive/aws-connections/internal/config"
	"github.com/buildhive/aws-connections/internal/hostapi"
	httpapp "github.com/buildhive/aws-connections/internal/http"
	"github.com/buildhive/aws-connections/internal/logging"
	"github.com/buildhive/aws-connections/internal/metrics"
	"github.com/buildhive/aws-connections/internal/secure"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the connection settings panel server.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		setCommandExecutionContext(commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: true,
		})
		return runServe(cmd.CommandPath())
	},
}

func runServe(commandPath string) error {
	logger, err := logging.BootstrapFromEnv(logging.BootstrapOptions{Command: commandPath})
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := scs.New()
	sessions.Lifetime = 12 * time.Hour
	sessions.Cookie.Secure = cfg.SessionCookieSecure

	client := hostapi.NewClient(hostapi.Options{
		BaseURL:    cfg.HostBaseURL,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
	})

	srv, err := httpapp.NewEchoServer(cfg, client, secure.Encryptor{}, sessions)
	if err != nil {
		return err
	}

	metricsSrv, metricsErrCh := metrics.StartServer(ctx, cfg.MetricsAddr)
	if metricsSrv != nil {
		logger.Info("metrics server listening", "addr", cfg.MetricsAddr)
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("panel server listening", "addr", cfg.HTTPAddr, "host", cfg.HostBaseURL)
		errCh <- srv.StartServer(httpServer)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-metricsErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "error", err)
			return err
		}
		return nil
	}
}
