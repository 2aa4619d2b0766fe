package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClareAI/astra-sales-agent/internal/adapters/llm"
	"github.com/ClareAI/astra-sales-agent/internal/adapters/provider"
	"github.com/ClareAI/astra-sales-agent/internal/cache"
	"github.com/ClareAI/astra-sales-agent/internal/config"
	"github.com/ClareAI/astra-sales-agent/internal/core/job"
	"github.com/ClareAI/astra-sales-agent/internal/handler"
	"github.com/ClareAI/astra-sales-agent/internal/repository"
	"github.com/ClareAI/astra-sales-agent/internal/services/evaluator"
	"github.com/ClareAI/astra-sales-agent/internal/services/ingress"
	"github.com/ClareAI/astra-sales-agent/internal/services/outreach"
	"github.com/ClareAI/astra-sales-agent/internal/services/reply"
	"github.com/ClareAI/astra-sales-agent/internal/services/scheduler"
	"github.com/ClareAI/astra-sales-agent/internal/services/summarizer"
	"github.com/ClareAI/astra-sales-agent/internal/storage"
	"github.com/ClareAI/astra-sales-agent/pkg/crypto"
	"github.com/ClareAI/astra-sales-agent/pkg/events"
	"github.com/ClareAI/astra-sales-agent/pkg/gcs"
	"github.com/ClareAI/astra-sales-agent/pkg/logger"
	redispkg "github.com/ClareAI/astra-sales-agent/pkg/redis"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownGrace = 30 * time.Second

func main() {
	// .env is for local development; deployed environments inject real env.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		log.Printf("failed to initialize zap logger, falling back to std log: %v", err)
	}

	cfg := config.LoadServiceConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		logger.Base().Fatal("invalid service configuration", zap.Error(err))
	}
	whatsappCfg := config.LoadWhatsAppConfigFromEnv()
	if err := whatsappCfg.Validate(); err != nil {
		logger.Base().Fatal("invalid whatsapp configuration", zap.Error(err))
	}
	llmCfg := config.LoadLLMConfigFromEnv()
	if err := llmCfg.Validate(); err != nil {
		logger.Base().Fatal("invalid llm configuration", zap.Error(err))
	}

	if cfg.MasterEncryptionKey != "" {
		crypto.SetMasterKey(cfg.MasterEncryptionKey)
	} else {
		logger.Base().Warn("MASTER_ENCRYPTION_KEY not set; credential sealing is unavailable")
	}

	repos, err := repository.NewRepositoryManager()
	if err != nil {
		logger.Base().Fatal("failed to initialize database", zap.Error(err))
	}
	defer repos.Close()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional infrastructure: redis, pub/sub, GCS. The service degrades to
	// single-instance in-process behavior without them.
	redisSvc, err := redispkg.NewRedisServiceFromEnv()
	if err != nil {
		logger.Base().Warn("redis unavailable, running without fast-path dedup and eval locks", zap.Error(err))
		redisSvc = nil
	}

	publisher, err := events.NewPublisherFromEnv(rootCtx)
	if err != nil {
		logger.Base().Warn("event publisher unavailable", zap.Error(err))
		publisher = nil
	}
	defer publisher.Close()

	var gcsClient *gcs.GCSClient
	if bucket := os.Getenv("GCS_BUCKET_NAME"); bucket != "" {
		gcsClient, err = gcs.NewGCSClient(rootCtx, bucket)
		if err != nil {
			logger.Base().Warn("gcs unavailable, transcripts will not be archived", zap.Error(err))
			gcsClient = nil
		}
	}

	integrations := cache.NewIntegrationCache()
	integrations.StartSync(rootCtx, repos)

	whatsapp := provider.NewClient(whatsappCfg)
	llmClient := llm.NewClient(llmCfg)

	pool := job.NewPool(cfg.WorkerPoolSize, cfg.JobQueueSize)

	summarizerSvc := summarizer.New(repos, llmClient, llmCfg)
	evaluatorSvc := evaluator.New(repos, llmClient, llmCfg, summarizerSvc, publisher, redisSvc, cfg.InstanceID, cfg.EvaluatingStaleAfter)
	outreachSvc := outreach.New(repos, llmClient, llmCfg, whatsapp, publisher, cfg.OutreachQuietDays)
	replySvc := reply.New(repos, llmClient, llmCfg, whatsapp, publisher)
	ingressSvc := ingress.New(repos, integrations, pool, redisSvc)
	schedulerSvc := scheduler.New(repos, pool, time.Duration(cfg.SchedulerTickSeconds)*time.Second)

	pool.Register(job.KindEvaluateTenant, func(ctx context.Context, j job.Job) error {
		counts, err := evaluatorSvc.EvaluateTenant(ctx, j.TenantID)
		if err != nil {
			return err
		}
		logger.Base().Info("tenant evaluation finished",
			zap.String("tenant_id", j.TenantID),
			zap.Int("evaluated", counts.Evaluated),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed),
		)
		return nil
	})
	pool.Register(job.KindDispatchTenant, func(ctx context.Context, j job.Job) error {
		counts, err := outreachSvc.DispatchTenant(ctx, j.TenantID)
		if err != nil {
			return err
		}
		logger.Base().Info("tenant outreach finished",
			zap.String("tenant_id", j.TenantID),
			zap.Int("sent", counts.Sent),
			zap.Int("skipped", counts.Skipped),
			zap.Int("failed", counts.Failed),
		)
		return nil
	})
	pool.Register(job.KindReplyConversation, func(ctx context.Context, j job.Job) error {
		_, skipped, err := replySvc.MaybeReply(ctx, j.ConversationID)
		if err != nil {
			return err
		}
		if skipped {
			logger.Base().Debug("reply skipped", zap.String("conversation_id", j.ConversationID))
		}
		return nil
	})

	pool.Start(rootCtx)
	defer pool.Stop()

	// Reconcile conversations a previous instance left mid-evaluation.
	if recovered, err := evaluatorSvc.RecoverStale(rootCtx); err != nil {
		logger.Base().Warn("stale evaluation recovery failed", zap.Error(err))
	} else if recovered > 0 {
		logger.Base().Info("recovered stale evaluating conversations", zap.Int("count", recovered))
	}

	schedulerSvc.Start(rootCtx)

	transcripts := storage.NewTranscriptExporter(gcsClient)
	handlers := handler.NewHandlerManager(repos, whatsapp, whatsappCfg, integrations, ingressSvc, pool, transcripts)
	router := handlers.SetupRoutes(cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Base().Info("starting sales agent service",
			zap.String("port", cfg.Port),
			zap.String("instance_id", cfg.InstanceID),
			zap.String("env", cfg.Env),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Base().Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Base().Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Base().Warn("http server shutdown incomplete", zap.Error(err))
	}
}
