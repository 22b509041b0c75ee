package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/regbridge/regbridge/internal/api"
	"github.com/regbridge/regbridge/internal/config"
	"github.com/regbridge/regbridge/internal/identity"
	"github.com/regbridge/regbridge/internal/imageref"
	"github.com/regbridge/regbridge/internal/ratelimit"
	"github.com/regbridge/regbridge/internal/runner"
	"github.com/regbridge/regbridge/internal/service"
	"github.com/regbridge/regbridge/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the sync job API server",
	Long: `Start the API server that accepts image copy and mirror requests and
delegates their execution to the configured workflow runner.

The server requires a configuration file (--config) that specifies:
- Identity provider connection settings
- Workflow runner repository and credentials
- Database connection settings
- Additional allowed private registries

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	// Job creation waits on workflow dispatch and run discovery, so request
	// and write timeouts must cover the discovery budget.
	serverRequestTimeout = 60 * time.Second
	serverWriteTimeout   = 65 * time.Second
	serverIdleTimeout    = 60 * time.Second

	limiterSweepInterval = 5 * time.Minute
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
	err = viper.BindPFlag("config", serveCmd.Flags().Lookup("config"))
	if err != nil {
		slog.Error("Failed to bind config flag", "error", err)
		os.Exit(1)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	address := viper.GetString("address")

	configPath := viper.GetString("config")
	cfg, err := config.LoadConfig(config.WithConfigPath(configPath))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"path", configPath,
		"workflow_repository", cfg.Workflows.Repository,
		"identity_url", cfg.Identity.URL)

	if cfg.Database == nil {
		return fmt.Errorf("database configuration is required")
	}

	jobStore, err := store.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer jobStore.Close()

	anonKey, err := cfg.Identity.GetAnonKey()
	if err != nil {
		return err
	}
	identityClient := identity.NewClient(cfg.Identity.URL, anonKey)

	token, err := cfg.Workflows.GetToken()
	if err != nil {
		return err
	}
	var runnerOpts []runner.GitHubOption
	if cfg.Workflows.APIBaseURL != "" {
		runnerOpts = append(runnerOpts, runner.WithBaseURL(cfg.Workflows.APIBaseURL))
	}
	workflowRunner, err := runner.NewGitHubRunner(cfg.Workflows.Repository, token, runnerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create workflow runner: %w", err)
	}

	limiter := ratelimit.NewMemoryLimiter(limiterSweepInterval)
	defer limiter.Close()

	syncService := service.NewSyncService(
		jobStore,
		workflowRunner,
		imageref.NewValidator(cfg.AllowedRegistries...),
		cfg.Workflows,
	)

	router := api.NewServer(api.ServerConfig{
		Syncs:      syncService,
		Identity:   identityClient,
		Limiter:    limiter,
		RateLimits: cfg.RateLimits,
		Readiness:  jobStore.Ping,
	}, api.WithMiddlewares(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(serverRequestTimeout),
		api.LoggingMiddleware,
		api.CORSMiddleware,
	))

	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}
