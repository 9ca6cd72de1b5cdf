package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/giygas/ddi-engine/cache"
	"github.com/giygas/ddi-engine/catalogparser"
	"github.com/giygas/ddi-engine/classifier"
	"github.com/giygas/ddi-engine/config"
	"github.com/giygas/ddi-engine/curated"
	"github.com/giygas/ddi-engine/data"
	"github.com/giygas/ddi-engine/database"
	"github.com/giygas/ddi-engine/drugs"
	"github.com/giygas/ddi-engine/engine"
	"github.com/giygas/ddi-engine/events"
	"github.com/giygas/ddi-engine/fingerprint"
	"github.com/giygas/ddi-engine/handlers"
	"github.com/giygas/ddi-engine/health"
	"github.com/giygas/ddi-engine/history"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/giygas/ddi-engine/logging"
	"github.com/giygas/ddi-engine/scheduler"
	"github.com/giygas/ddi-engine/server"
	"github.com/giygas/ddi-engine/validation"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "ddi-engine",
		Short: "Drug-drug interaction prediction and combination checking service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCuratedCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the interaction API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func importCuratedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-curated",
		Short: "Load a curated interaction file into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			source, _ := cmd.Flags().GetString("source")
			return runImport(file, source)
		},
	}
	cmd.Flags().String("file", "", "curated interaction file (defaults to CURATED_PATH)")
	cmd.Flags().String("source", "", "dataset name the records are stored under")
	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return nil, err
	}

	logging.InitLoggerWithOptions(logging.Options{
		Dir:            cfg.LogDir,
		Env:            cfg.Env,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	})
	return cfg, nil
}

// application holds the wired service and the resources to release on exit
type application struct {
	server    *server.Server
	scheduler *scheduler.Scheduler
	closers   []func()
}

func (a *application) onClose(f func()) {
	a.closers = append(a.closers, f)
}

// Close releases resources in reverse acquisition order
func (a *application) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// buildApplication wires every component and performs the initial data
// load. The returned application is not serving yet.
func buildApplication(ctx context.Context, cfg *config.Config) (_ *application, err error) {
	app := &application{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	dataContainer := data.NewDataContainer()
	dataContainer.SetServerStartTime(time.Now())
	extractor := fingerprint.NewExtractor(cfg.FingerprintRadius, cfg.FingerprintBits)

	var (
		curatedStore interfaces.CuratedStore = curated.NewMemoryStore(dataContainer)
		invalidator  scheduler.Invalidator
		engineOpts   []engine.Option
	)

	if cfg.DatabaseURL != "" {
		pool, err := database.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logging.Error("Failed to connect to the database", "error", err)
			return nil, err
		}
		app.onClose(pool.Close)

		pgStore := curated.NewPostgresStore(pool)
		curatedStore = pgStore
		invalidator = pgStore
		engineOpts = append(engineOpts, engine.WithHistory(history.NewPostgresProvider(pool)))
		logging.Info("Using the Postgres curated store and patient history")
	}

	var remote interfaces.RemoteCache
	if cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logging.Error("Invalid REDIS_URL", "error", err)
			return nil, err
		}
		backend := cache.NewRedisBackend(client, "")
		app.onClose(func() { _ = backend.Close() })
		if err := backend.Ping(ctx); err != nil {
			// The shared tier is optional, the health check reports it as degraded
			logging.Warn("Redis unreachable at startup", "error", err)
		}
		remote = backend
	}

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			logging.Error("Failed to create the report publisher", "error", err)
			return nil, err
		}
		app.onClose(func() { _ = publisher.Close() })
		engineOpts = append(engineOpts, engine.WithPublisher(publisher))
	}

	model, err := classifier.Load(cfg.ModelPath, cfg.LabelsPath, extractor, classifier.Config{
		Threshold:     cfg.SignificanceThreshold,
		DefaultTopK:   cfg.DefaultTopK,
		MaxBatchPairs: cfg.MaxBatchPairs,
		BatchWindow:   cfg.BatchWindow,
		BatchMaxSize:  cfg.BatchMaxSize,
	})
	if err != nil {
		logging.Error("Failed to load the interaction model", "path", cfg.ModelPath, "error", err)
		return nil, err
	}
	app.onClose(model.Close)

	interactionCache, err := cache.New(curatedStore, model, remote, cache.Config{
		TTL:            cfg.CacheTTL,
		Capacity:       cfg.CacheCapacity,
		ComputeTimeout: cfg.ComputeTimeout,
	})
	if err != nil {
		logging.Error("Failed to create the interaction cache", "error", err)
		return nil, err
	}
	app.onClose(func() { _ = interactionCache.Close() })

	app.scheduler = scheduler.NewScheduler(dataContainer,
		catalogparser.NewCatalogParser(cfg.CatalogPath, cfg.CuratedPath),
		scheduler.Options{
			ReloadAt:      cfg.ReloadAt,
			SweepInterval: cfg.CacheSweepInterval,
			Extractor:     extractor,
			Cache:         interactionCache,
			Invalidator:   invalidator,
		})
	if err := app.scheduler.Start(); err != nil {
		return nil, err
	}
	app.onClose(app.scheduler.Stop)

	resolver := drugs.NewResolver(dataContainer, extractor, drugs.DefaultMaxDistance)
	checker := engine.New(resolver, interactionCache, engine.Config{
		MaxMedications: cfg.MaxMedications,
		Concurrency:    cfg.CheckConcurrency,
		PairTimeout:    cfg.PairTimeout,
		MaxBatchChecks: engine.DefaultMaxBatchChecks,
	}, engineOpts...)

	healthChecker := health.NewHealthChecker(health.Dependencies{
		Data:       dataContainer,
		Classifier: model,
		Curated:    curatedStore,
		Cache:      interactionCache,
		Remote:     remote,
	}, cfg.ReloadAt)

	handler := handlers.NewHTTPHandler(checker, model, resolver, healthChecker,
		validation.NewDataValidator(), cfg.MaxMedications)
	app.server = server.NewServer(cfg, handler)

	return app, nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	errCh := make(chan error, 1)
	go func() {
		if err := app.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logging.Error("Server failed to start", "error", err)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.server.Shutdown(shutdownCtx)
}

func runImport(file, source string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Close()

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required to import curated interactions")
	}
	if file == "" {
		file = cfg.CuratedPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entries, err := catalogparser.ParseCatalogFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	catalog := drugs.BuildCatalog(entries)

	rows, err := catalogparser.ParseCuratedFile(file)
	if err != nil {
		return fmt.Errorf("read curated file: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	importer := curated.NewImporter(pool)
	if err := importer.EnsureSchema(ctx); err != nil {
		return err
	}
	result, err := importer.Import(ctx, catalog, rows, source)
	if err != nil {
		return err
	}

	logging.Info("Curated import completed",
		"source", result.Source,
		"rows", result.Stats.Rows,
		"pairs", result.Stats.Pairs,
		"unresolved", result.Stats.Unresolved,
		"deleted", result.Deleted,
		"inserted", result.Inserted,
	)
	return nil
}
