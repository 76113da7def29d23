package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/khanhnv2901/cmpscan/internal/api"
	"github.com/khanhnv2901/cmpscan/internal/catalog"
	"github.com/khanhnv2901/cmpscan/internal/scanner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run cmpscan as a REST API service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config

		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() {
			if err := logger.Sync(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
			}
		}()

		cat, err := catalog.Default()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}

		chrome, err := launchRenderer(context.Background(), cfg.Browser.BrowserOptions(), logger)
		if err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer chrome.Close()

		s := scanner.New(chrome, cat,
			scanner.WithLogger(logger),
			scanner.WithHTTPOnlyCookies(cfg.Scan.HTTPOnlyCookies),
		)

		jobManager := api.NewJobManager(logger)
		defer jobManager.Close()
		jobs := api.NewScanJobService(jobManager, s, cfg.Serve.MaxRunningJobs, cfg.Serve.JobTimeout, logger)

		server := api.NewServer(api.Config{
			Scanner:     s,
			Catalog:     cat,
			Health:      &browserHealth{chrome: chrome},
			Jobs:        jobs,
			AuthToken:   cfg.Serve.AuthToken,
			Logger:      logger,
			ScanTimeout: cfg.Serve.ScanTimeout,
			CORSOrigins: cfg.Serve.CORSOrigins,
			RateLimit:   cfg.Serve.RateLimit,
			RateBurst:   cfg.Serve.RateBurst,
		})
		defer server.Close()

		httpServer := &http.Server{
			Addr:              cfg.Serve.Addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s API server listening on %s\n", colorInfo("→"), cfg.Serve.Addr)
			fmt.Fprintf(cmd.OutOrStdout(), "%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Serve.ShutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(ctx); err != nil {
				if closeErr := httpServer.Close(); closeErr != nil {
					return fmt.Errorf("failed to gracefully shutdown server: %w (close error: %v)", err, closeErr)
				}
				return fmt.Errorf("failed to gracefully shutdown server: %w", err)
			}
			jobs.Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "%s Server shutdown complete\n", colorSuccess("✓"))
		}

		return nil
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&cliConfig.Serve.Addr, "addr", cliConfig.Serve.Addr, "Address for the API server")
	flags.StringVar(&cliConfig.Serve.AuthToken, "auth-token", cliConfig.Serve.AuthToken, "Optional shared secret for API requests")
	flags.StringSliceVar(&cliConfig.Serve.CORSOrigins, "cors-origins", cliConfig.Serve.CORSOrigins, "Allowed CORS origins (empty = allow all)")
	flags.IntVar(&cliConfig.Serve.RateLimit, "rate-limit", cliConfig.Serve.RateLimit, "Rate limit per IP (requests/second, 0 = disabled)")
	flags.IntVar(&cliConfig.Serve.RateBurst, "rate-burst", cliConfig.Serve.RateBurst, "Rate limit burst size")
	flags.DurationVar(&cliConfig.Serve.ShutdownTimeout, "shutdown-timeout", cliConfig.Serve.ShutdownTimeout, "Graceful shutdown timeout")
	flags.DurationVar(&cliConfig.Serve.JobTimeout, "job-timeout", cliConfig.Serve.JobTimeout, "Time limit for one asynchronous scan job")
	flags.DurationVar(&cliConfig.Serve.ScanTimeout, "scan-timeout", cliConfig.Serve.ScanTimeout, "Time limit for one synchronous scan (0 = request lifetime)")
	flags.IntVar(&cliConfig.Serve.MaxRunningJobs, "max-jobs", cliConfig.Serve.MaxRunningJobs, "Maximum scan jobs running at once")
	addBrowserFlags(flags)
}

// browserHealth reports ready while the shared browser can open pages.
type browserHealth struct {
	chrome interface{ Ready() error }
}

func (h *browserHealth) Check(ctx context.Context) error {
	return nil
}

func (h *browserHealth) Ready(ctx context.Context) error {
	return h.chrome.Ready()
}
