package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/taskmaster/scheduler/internal/adapters/blob"
	"github.com/taskmaster/scheduler/internal/application/services"
	"github.com/taskmaster/scheduler/internal/infrastructure/config"
	"github.com/taskmaster/scheduler/internal/infrastructure/database"
	"github.com/taskmaster/scheduler/internal/infrastructure/logger"
	"github.com/taskmaster/scheduler/internal/infrastructure/metrics"
	"github.com/taskmaster/scheduler/internal/infrastructure/server"
	"github.com/taskmaster/scheduler/internal/ports"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	GitCommit = "development"
	BuildDate = "unknown"
)

// NewRootCommand assembles the scheduler CLI.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Task and event scheduler",
		Long: `Scheduler keeps a list of tasks and calendar events in a single JSON document
stored in a blob backend. "serve" runs the persistence endpoint; "task" and
"event" edit the schedule through it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("endpoint", "", "Persistence endpoint URL (overrides SCHEDULER_ENDPOINT)")

	rootCmd.AddCommand(NewServeCommand())
	rootCmd.AddCommand(NewMigrateCommand())
	rootCmd.AddCommand(NewSweepCommand())
	rootCmd.AddCommand(NewTaskCommand())
	rootCmd.AddCommand(NewEventCommand())
	rootCmd.AddCommand(NewVersionCommand())

	return rootCmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the persistence endpoint",
		Long:  "Serve GET and POST /api/blob on top of the configured blob backend, with health, metrics and docs routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx)
		},
	}
}

// NewMigrateCommand creates the migrate command with subcommands
func NewMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long:  "Manage the blobs table used by the postgres backend (up, down, version)",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Run up migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration(cmd, "up", steps)
		},
	}
	upCmd.Flags().Int("steps", 0, "Number of migrations to apply (0 = all)")

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Run down migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return runMigration(cmd, "down", steps)
		},
	}
	downCmd.Flags().Int("steps", 0, "Number of migrations to revert (0 = all)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showMigrationVersion(cmd)
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

// NewSweepCommand creates the sweep command
func NewSweepCommand() *cobra.Command {
	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete stale dataset objects",
		Long:  "Remove every object under the dataset prefix except the newest ones. The current dataset is never touched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if cmd.Flags().Changed("keep") {
				cfg.Blob.Keep, _ = cmd.Flags().GetInt("keep")
			}

			gateway, closeGateway, err := openGateway(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeGateway()

			sweeper := services.NewSweeper(gateway, cfg.Blob.Prefix, cfg.Blob.Keep, logger.NewNop(), nil)
			removed, err := sweeper.Sweep(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale object(s)\n", removed)
			return err
		},
	}
	sweepCmd.Flags().Int("keep", 1, "Number of newest objects to keep")
	return sweepCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print scheduler version",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scheduler %s\n", Version)
			fmt.Fprintf(out, "Build Date: %s\n", BuildDate)
			fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
			fmt.Fprintf(out, "Go: %s\n", runtime.Version())
		},
	}
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Sync()

	gateway, closeGateway, err := openGateway(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	if cfg.Blob.Token == "" {
		appLogger.Warn("BLOB_READ_WRITE_TOKEN is not set; every /api/blob request will fail")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	datasetMetrics := metrics.NewDataset(registry)

	datasets := services.NewDatasetService(gateway, cfg.Blob, appLogger, datasetMetrics)

	if cfg.Blob.SweepSchedule != "" {
		sweeper := services.NewSweeper(gateway, cfg.Blob.Prefix, cfg.Blob.Keep, appLogger, datasetMetrics)
		if err := sweeper.Start(cfg.Blob.SweepSchedule); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	srv, err := server.New(cfg, server.Deps{
		Gateway:  gateway,
		Datasets: datasets,
		Tokens:   services.NewTokenService(cfg.Auth),
		Registry: registry,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	appLogger.Infow("Starting scheduler persistence endpoint",
		"port", cfg.Server.Port,
		"environment", cfg.App.Environment,
		"backend", cfg.Blob.Backend,
		"auth", cfg.Auth.Enabled(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	appLogger.Info("Server stopped")
	return nil
}

// openGateway builds the configured gateway and a func releasing it.
func openGateway(ctx context.Context, cfg *config.Config) (ports.BlobGateway, func(), error) {
	gateway, err := blob.New(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s blob backend: %w", cfg.Blob.Backend, err)
	}

	closeFn := func() {}
	if c, ok := gateway.(ports.Closer); ok {
		closeFn = func() { _ = c.Close() }
	}
	return gateway, closeFn, nil
}

func newMigrator(ctx context.Context, cfg *config.Config) (*migrate.Migrate, func(), error) {
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db.DB.DB, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.Database.MigrationsPath, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m, func() { db.Close() }, nil
}

func runMigration(cmd *cobra.Command, direction string, steps int) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m, closeDB, err := newMigrator(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	}

	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations to run")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Migration %s completed successfully\n", direction)
	return nil
}

func showMigrationVersion(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m, closeDB, err := newMigrator(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Current migration version: %d\n", version)
	fmt.Fprintf(cmd.OutOrStdout(), "Dirty: %t\n", dirty)
	return nil
}
