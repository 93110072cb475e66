package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eachPassingDay/ainote/internal/ai"
	"github.com/eachPassingDay/ainote/internal/api/handlers"
	"github.com/eachPassingDay/ainote/internal/config"
	"github.com/eachPassingDay/ainote/internal/database"
	"github.com/eachPassingDay/ainote/internal/index"
	"github.com/eachPassingDay/ainote/internal/jobs"
	"github.com/eachPassingDay/ainote/internal/repository"
	"github.com/eachPassingDay/ainote/internal/rerank"
	"github.com/eachPassingDay/ainote/internal/server"
	"github.com/eachPassingDay/ainote/internal/service"
	"github.com/eachPassingDay/ainote/internal/telemetry"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the note engine API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize Sentry with tracing if SENTRY_DSN is set
	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              dsn,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required: segmentation, enrichment and indexing all call the model")
	}
	aiClient := ai.NewClientWithConfig(ai.Config{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		ChatModel: cfg.ChatModel,
	})

	var store service.NoteStore
	var idx index.Index

	if cfg.HasDatabase() {
		pool, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		log.Println("connected to database")

		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if !noMigrate {
			if err := runMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		store = repository.NewNotePgStore(pool)
		idx = index.NewPgvectorIndex(pool, aiClient)
	} else {
		fileStore, err := repository.NewNoteFileStore(cfg.NoteDBPath)
		if err != nil {
			return fmt.Errorf("failed to open note store %s: %w", cfg.NoteDBPath, err)
		}
		fileIndex, err := index.NewFileIndex(aiClient, cfg.VectorDBPath)
		if err != nil {
			return fmt.Errorf("failed to open vector store %s: %w", cfg.VectorDBPath, err)
		}
		store = fileStore
		idx = fileIndex
		log.Printf("using file-backed stores (%s, %s)", cfg.NoteDBPath, cfg.VectorDBPath)
	}

	var reranker rerank.Reranker
	if cfg.HasReranker() {
		reranker = rerank.NewClient(cfg.RerankEndpoint, cfg.RerankAPIKey, rerank.WithModel(cfg.RerankModel))
		log.Println("reranker enabled")
	} else {
		log.Println("no reranker configured, merge decisions use embedding scores only")
	}

	segmenter := service.NewSegmenter(aiClient)
	analyzer := service.NewAnalyzer(aiClient)
	decision := service.NewDecisionEngine(idx, store, reranker, cfg.RetrieveTopK, cfg.MergeThreshold)
	merger := service.NewMergeExecutor(store, aiClient, idx)
	history := service.NewHistoryService(store, idx)
	searchSvc := service.NewSearchService(decision, store, reranker, cfg.MergeThreshold)
	chatSvc := service.NewChatService(decision, aiClient)

	queue := jobs.NewQueue(cfg.QueueCapacity)
	ingest := service.NewIngestService(store, segmenter, analyzer, decision, merger, idx, queue).
		WithCallTimeout(cfg.CallTimeout)

	worker := jobs.NewWorker(queue, ingest, cfg.WorkerCount)
	go worker.Start(ctx)
	log.Printf("ingestion worker started (%d consumers)", cfg.WorkerCount)

	noteHandler := handlers.NewNoteHandler(ingest, store, merger, history, searchSvc, chatSvc, analyzer)

	router := server.NewRouter(server.RouterConfig{NoteHandler: noteHandler})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	worker.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
