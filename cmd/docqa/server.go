package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/config"
	"github.com/xxxsen/docqa/internal/db"
	"github.com/xxxsen/docqa/internal/extract"
	"github.com/xxxsen/docqa/internal/filestore"
	"github.com/xxxsen/docqa/internal/handler"
	"github.com/xxxsen/docqa/internal/job"
	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/rag"
	"github.com/xxxsen/docqa/internal/repo"
	"github.com/xxxsen/docqa/internal/schedule"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/vecindex"
)

func runServer(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := logutil.GetLogger(ctx)
	logger.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("index_store", cfg.IndexStore.Type),
		zap.String("llm_provider", cfg.LLM.Provider),
	)

	sqlDB, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer sqlDB.Close()
	if err := db.ApplyMigrations(ctx, sqlDB); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	if key := cfg.Extract.UniofficeLicenseKey; key != "" {
		if err := extract.UseUnioffice(key); err != nil {
			return fmt.Errorf("init docx reader: %w", err)
		}
	} else {
		logger.Warn("no unioffice license key configured, docx files are read with gooxml")
	}

	docRepo := repo.NewDocumentRepo(sqlDB)
	cacheRepo := repo.NewEmbeddingCacheRepo(sqlDB)

	store, err := filestore.New(cfg.IndexStore)
	if err != nil {
		return fmt.Errorf("init index store: %w", err)
	}
	embedder, err := buildEmbedder(cfg.Embedding, cacheRepo)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	var rebuilder vecindex.Rebuilder
	if cfg.Retrieval.Rebuild == config.RebuildCopy {
		rebuilder = vecindex.CopyRebuilder{}
	}
	index, err := vecindex.NewManager(store, embedder, vecindex.Options{
		Dimension: cfg.Embedding.Dimension,
		MinScore:  cfg.Retrieval.MinScore,
		Rebuilder: rebuilder,
	})
	if err != nil {
		return fmt.Errorf("init index: %w", err)
	}

	openai, gemini, err := buildChatProviders(cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm: %w", err)
	}
	generator := rag.NewGenerator(rag.GeneratorConfig{
		Provider:     cfg.LLM.Provider,
		Timeout:      time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		OpenAIModel:  cfg.LLM.OpenAI.Model,
		Temperature:  cfg.LLM.OpenAI.Temperature,
		MaxTokens:    cfg.LLM.OpenAI.MaxTokens,
		GeminiModels: cfg.LLM.Gemini.Models,
	}, openai, gemini)
	retriever := rag.NewRetriever(index, cfg.Retrieval.TopK)

	documentService := service.NewDocumentService(docRepo, index, cfg.UploadDir, cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	askService := service.NewAskService(docRepo, retriever, generator)

	scheduler, err := buildScheduler(cfg, docRepo, index, cacheRepo)
	if err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Documents:    handler.NewDocumentHandler(documentService, cfg.MaxUploadMB*1024*1024),
		Ask:          handler.NewAskHandler(askService),
		JWTSecret:    []byte(cfg.JWTSecret),
		AskRateLimit: time.Duration(cfg.AskRateLimitSeconds) * time.Second,
	}
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logger.Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("server stopping...")
	return nil
}

func buildScheduler(cfg *config.Config, docs *repo.DocumentRepo, index *vecindex.Manager, cache *repo.EmbeddingCacheRepo) (*schedule.CronScheduler, error) {
	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewChunkCountReconcileJob(docs, index), cfg.Jobs.ChunkCountReconcileSpec); err != nil {
		return nil, err
	}
	var trimmer job.CacheTrimmer
	if cfg.Embedding.Cache.Database {
		trimmer = cache
	}
	maxAge := time.Duration(cfg.Jobs.EmbedCacheMaxAgeHours) * time.Hour
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(trimmer, maxAge), cfg.Jobs.EmbedCacheCleanupSpec); err != nil {
		return nil, err
	}
	return scheduler, nil
}
