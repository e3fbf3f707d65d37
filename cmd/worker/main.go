package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/planforge/planforge/internal/assembly"
	"github.com/planforge/planforge/internal/config"
	"github.com/planforge/planforge/internal/database"
	"github.com/planforge/planforge/internal/drafts"
	"github.com/planforge/planforge/internal/logger"
	"github.com/planforge/planforge/internal/policy"
	"github.com/planforge/planforge/internal/queue"
	"github.com/planforge/planforge/internal/routing"
	"github.com/planforge/planforge/internal/services/ai"
	"github.com/planforge/planforge/internal/tags"
	"github.com/planforge/planforge/internal/workers"
)

func main() {
	// Parse command-line flags
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Override debug mode if flag is set
	debugMode := cfg.WorkerDebugMode || *debugFlag

	// Initialize logger
	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if syncErr := zapLogger.Sync(); syncErr != nil {
			// Ignore sync errors in production
			_ = syncErr
		}
	}()

	zapLogger.Info("Starting worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
	)

	// Initialize database connection
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("Failed to close database connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to database")

	// Initialize repositories
	lookupRepo := database.NewLookupRepository(db)
	routeRepo := database.NewRouteRepository(db)
	draftRepo := database.NewDraftRepository(db)
	auditRepo := database.NewAuditRepository(db)

	// Initialize RabbitMQ queue
	jobQueue, err := queue.NewRabbitMQQueue(cfg.RabbitMQURL)
	if err != nil {
		zapLogger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("Failed to close RabbitMQ connection", zap.Error(err))
		}
	}()

	zapLogger.Info("Connected to RabbitMQ",
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	// Initialize the orchestration core
	enforcer := policy.NewEnforcer(policy.Default())
	entityApplier := database.NewEntityApplier(db, enforcer)
	guard := assembly.NewGuard(enforcer)
	assembler := assembly.NewAssembler(lookupRepo, guard, assembly.DefaultBudgetTable(), zapLogger)
	tagResolver := tags.NewResolver(lookupRepo)
	routeResolver := routing.NewResolver(routeRepo, zapLogger)

	registry := ai.NewRegistry()
	ai.RegisterOpenAI(registry, zapLogger)
	providerConfig := func(provider string) map[string]string {
		if provider != ai.OpenAIProviderName {
			return nil
		}
		cfgMap := map[string]string{
			"api_key":  cfg.OpenAIKey,
			"base_url": cfg.AIBaseURL,
		}
		if debugMode {
			cfgMap["debug"] = "true"
		}
		return cfgMap
	}

	draftService := drafts.NewService(draftRepo, entityApplier, enforcer, zapLogger)
	orchestrator := ai.NewOrchestrator(
		tagResolver,
		assembler,
		routeResolver,
		registry,
		providerConfig,
		draftService,
		auditRepo,
		zapLogger,
	)

	zapLogger.Info("Initialized orchestrator",
		zap.String("provider", cfg.AIProvider),
		zap.String("model", cfg.AIModel),
	)

	// Create draft generator
	generator := workers.NewDraftGenerator(orchestrator, draftService, jobQueue)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start consuming messages
	msgChan, errChan, err := jobQueue.Consume(ctx, cfg.RabbitMQPrefetch)
	if err != nil {
		zapLogger.Fatal("Failed to start consuming messages", zap.Error(err))
	}

	zapLogger.Info("Worker started, consuming messages from queue")

	// Process messages
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgChan:
				if !ok {
					zapLogger.Info("Message channel closed")
					return
				}

				// Process job
				if err := generator.ProcessJob(ctx, msg); err != nil {
					zapLogger.Error("Failed to process job",
						zap.Error(err),
						zap.String("job_id", msg.GetJob().ID.String()),
						zap.String("job_type", string(msg.GetJob().Type)),
					)
				}
			}
		}
	}()

	// Handle errors
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-errChan:
				if !ok {
					return
				}
				zapLogger.Error("Queue error", zap.Error(err))
			}
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	zapLogger.Info("Shutdown signal received, stopping worker...")

	// Cancel context to stop processing
	cancel()

	zapLogger.Info("Worker stopped")
}
