package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"phicontext/internal/config"
	"phicontext/internal/crypto"
	"phicontext/internal/database"
	"phicontext/internal/handlers"
	"phicontext/internal/jobs"
	"phicontext/internal/logging"
	"phicontext/internal/middleware"
	"phicontext/internal/preflight"
	"phicontext/internal/sanitizer"
	"phicontext/internal/security"
	"phicontext/internal/services"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Load .env file (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	// Initialize structured logging (JSON in production, text in dev)
	logging.Init()

	log.Println("🚀 Starting PHI context cache server...")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("📋 Configuration loaded (Port: %s, Capacity: %d, Environment: %s)",
		cfg.Port, cfg.MaxEntries, cfg.Environment)

	// Subject anonymization
	var anonymizer *security.Anonymizer
	var err error
	if cfg.AnonymizationSecret != "" {
		anonymizer, err = security.NewAnonymizer(cfg.AnonymizationSecret)
	} else {
		log.Println("⚠️ ANONYMIZATION_SECRET not set - using a per-process key (development mode only, snapshots will not match subjects after restart)")
		anonymizer, err = security.NewEphemeralAnonymizer()
	}
	if err != nil {
		log.Fatalf("❌ Failed to initialize anonymizer: %v", err)
	}

	phiSanitizer := sanitizer.New(sanitizer.Options{PatternScrubbing: cfg.PatternScrubbing})
	log.Printf("✅ Sanitizer initialized (level: %s)", phiSanitizer.Level())

	cacheCfg := services.DefaultContextCacheConfig()
	cacheCfg.MaxEntries = cfg.MaxEntries
	cacheCfg.ImportanceFloor = cfg.ImportanceFloor
	cacheCfg.DefaultTTL = cfg.DefaultTTL
	cacheCfg.RescoreAllOnInsert = cfg.RescoreAllOnInsert
	cacheCfg.ReanalysisChunkSize = cfg.ReanalysisChunkSize
	cacheCfg.ReanalysisChunkRate = cfg.ReanalysisChunkRate
	cacheCfg.DedupWindow = cfg.DedupWindow

	contextCache, err := services.NewContextCacheService(cacheCfg, phiSanitizer, anonymizer)
	if err != nil {
		log.Fatalf("❌ Failed to create context cache: %v", err)
	}
	contextCache.SetMetrics(services.NewContextCacheMetrics(prometheus.DefaultRegisterer))

	if cfg.AnalysisRelevanceFile != "" {
		relevance, err := services.LoadAnalysisRelevance(cfg.AnalysisRelevanceFile)
		if err != nil {
			log.Fatalf("❌ Failed to load analysis relevance file: %v", err)
		}
		contextCache.SetAnalysisRelevance(relevance)
		log.Printf("✅ Analysis relevance loaded from %s (%d analysis types)", cfg.AnalysisRelevanceFile, len(relevance))
	}
	log.Println("✅ Context cache initialized")

	// Optional snapshot persistence
	var storeOpts []database.StoreOption
	if cfg.SnapshotEncryptionKey != "" {
		recordCipher, err := crypto.NewRecordCipher(cfg.SnapshotEncryptionKey)
		if err != nil {
			log.Fatalf("❌ Failed to initialize snapshot encryption: %v", err)
		}
		storeOpts = append(storeOpts, database.WithRecordSealer(recordCipher))
		log.Println("🔐 Snapshot records will be encrypted at rest")
	}

	var snapshotStore database.SnapshotStore
	switch {
	case cfg.SnapshotDatabaseURL != "":
		snapshotStore, err = database.NewSQLSnapshotStore(context.Background(), cfg.SnapshotDatabaseURL, storeOpts...)
	case cfg.RedisURL != "":
		log.Println("🔗 Connecting to Redis...")
		snapshotStore, err = database.NewRedisSnapshotStore(context.Background(), cfg.RedisURL, storeOpts...)
	}
	if err != nil {
		log.Printf("⚠️ Failed to open snapshot store: %v (snapshots disabled)", err)
		snapshotStore = nil
	}

	if preflight.HasFailures(preflight.NewChecker(cfg, snapshotStore).RunAll()) {
		log.Fatal("❌ Pre-flight checks failed, refusing to start")
	}

	if snapshotStore != nil {
		defer snapshotStore.Close()

		restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		restored, err := contextCache.Restore(restoreCtx, snapshotStore)
		cancel()
		if err != nil {
			log.Printf("⚠️ Failed to restore context snapshot: %v", err)
		} else {
			log.Printf("✅ Restored %d context entries from snapshot", restored)
		}
	} else {
		log.Println("⚠️ No snapshot store configured - cache contents are lost on restart")
	}

	// Background jobs
	scheduler, err := jobs.NewJobScheduler()
	if err != nil {
		log.Fatalf("❌ Failed to create job scheduler: %v", err)
	}

	reanalysisSchedule := jobs.Schedule{Interval: cfg.ReanalysisInterval, Cron: cfg.ReanalysisCron}
	if err := scheduler.Register(jobs.ContextReanalysisJobName, reanalysisSchedule, jobs.NewContextReanalysisJob(contextCache)); err != nil {
		log.Fatalf("❌ Failed to register reanalysis job: %v", err)
	}
	if snapshotStore != nil {
		snapshotSchedule := jobs.Schedule{Interval: cfg.SnapshotInterval}
		if err := scheduler.Register(jobs.ContextSnapshotJobName, snapshotSchedule, jobs.NewContextSnapshotJob(contextCache, snapshotStore)); err != nil {
			log.Fatalf("❌ Failed to register snapshot job: %v", err)
		}
	}
	scheduler.Start()

	// HTTP surface
	app := fiber.New(fiber.Config{
		AppName:      "phicontext v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // manual reanalysis of a full cache
		IdleTimeout:  2 * time.Minute,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	prometheusMiddleware := fiberprometheus.New("phicontext")
	prometheusMiddleware.RegisterAt(app, "/metrics")
	app.Use(prometheusMiddleware.Middleware)
	log.Println("📊 Prometheus metrics endpoint enabled at /metrics")

	rateLimitConfig := middleware.LoadRateLimitConfig()
	app.Use("/api/context", middleware.ContextAPIRateLimiter(rateLimitConfig))
	app.Use("/api/context/reanalyze", middleware.ReanalyzeRateLimiter(rateLimitConfig))

	handlers.NewContextCacheHandler(contextCache, scheduler).RegisterRoutes(app)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("\n🛑 Shutting down server...")

		if err := scheduler.Stop(); err != nil {
			log.Printf("⚠️ Error stopping job scheduler: %v", err)
		}

		if snapshotStore != nil {
			saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if saved, err := contextCache.Snapshot(saveCtx, snapshotStore); err != nil {
				log.Printf("⚠️ Failed to save final context snapshot: %v", err)
			} else {
				log.Printf("✅ Saved %d context entries before shutdown", saved)
			}
			cancel()
		}

		contextCache.Shutdown()

		if err := app.Shutdown(); err != nil {
			log.Printf("⚠️ Error shutting down server: %v", err)
		}
	}()

	log.Printf("✅ Server listening on :%s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
}
