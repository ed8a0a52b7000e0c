// Package main wires together the analyzer service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/api"
	"github.com/searchpulse/geo-analyzer/internal/archive"
	"github.com/searchpulse/geo-analyzer/internal/clock/system"
	"github.com/searchpulse/geo-analyzer/internal/config"
	"github.com/searchpulse/geo-analyzer/internal/id/uuid"
	"github.com/searchpulse/geo-analyzer/internal/logging"
	"github.com/searchpulse/geo-analyzer/internal/notify"
	"github.com/searchpulse/geo-analyzer/internal/pipeline"
	"github.com/searchpulse/geo-analyzer/internal/publish"
	"github.com/searchpulse/geo-analyzer/internal/queue"
	"github.com/searchpulse/geo-analyzer/internal/stage/audit"
	"github.com/searchpulse/geo-analyzer/internal/stage/report"
	"github.com/searchpulse/geo-analyzer/internal/stage/schema"
	"github.com/searchpulse/geo-analyzer/internal/stage/score"
	"github.com/searchpulse/geo-analyzer/internal/store/memory"
	"github.com/searchpulse/geo-analyzer/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	idGen := uuid.NewUUIDGenerator()

	var (
		recordStore analysis.RecordStore
		scratch     analysis.Scratch
	)
	switch cfg.DB.Driver {
	case "postgres":
		pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
			DSN:             cfg.DB.DSN,
			MaxConns:        int32(cfg.DB.MaxConns),
			MinConns:        int32(cfg.DB.MinConns),
			MaxConnLifetime: time.Duration(cfg.DB.ConnLifetimeMin) * time.Minute,
		})
		if err != nil {
			logger.Fatal("postgres connect failed", zap.Error(err))
		}
		defer pool.Close()
		store, err := postgres.NewAnalysisStoreWithPool(pool, cfg.DB.Table)
		if err != nil {
			logger.Fatal("analysis store init failed", zap.Error(err))
		}
		scratchStore, err := postgres.NewScratchStoreWithPool(pool, cfg.DB.ScratchTable)
		if err != nil {
			logger.Fatal("scratch store init failed", zap.Error(err))
		}
		recordStore = store
		scratch = scratchStore
	default:
		recordStore = memory.NewAnalysisStore()
		scratch = memory.NewScratch()
	}

	var renderer audit.Renderer
	if cfg.Render.Enabled {
		chromeRenderer, err := audit.NewChromedpRenderer(audit.RendererConfig{
			MaxConcurrency: cfg.Render.MaxConcurrency,
			Timeout:        time.Duration(cfg.Render.TimeoutSeconds) * time.Second,
			DomainQPS:      cfg.Render.DomainQPS,
			UserAgent:      cfg.Crawl.UserAgent,
		}, logger.Named("render"))
		if err != nil {
			logger.Warn("headless renderer init failed", zap.Error(err))
		} else {
			renderer = chromeRenderer
			defer chromeRenderer.Close()
		}
	}

	llm := openai.NewClient(cfg.OpenAI.APIKey)
	llmCfg := score.Config{
		Model:       cfg.OpenAI.Model,
		Temperature: float32(cfg.OpenAI.Temperature),
		MaxTokens:   cfg.OpenAI.MaxTokens,
	}

	auditStage := audit.New(scratch, renderer, audit.Config{
		UserAgent:       cfg.Crawl.UserAgent,
		MaxPages:        cfg.Crawl.MaxPages,
		Timeout:         time.Duration(cfg.Crawl.TimeoutSeconds) * time.Second,
		RenderThreshold: cfg.Crawl.RenderThreshold,
	}, clock, logger.Named("audit"))

	analyzer, err := pipeline.New(
		pipeline.Config{OutputRoot: cfg.Pipeline.OutputRoot},
		[]pipeline.Stage{
			auditStage,
			schema.New(scratch, logger.Named("schema")),
			score.NewScoreStage(llm, scratch, llmCfg, logger.Named("score")),
			score.NewClaimsStage(llm, scratch, llmCfg, logger.Named("claims")),
		},
		[]pipeline.ReportStage{
			report.Summary{},
			report.Scorecard{},
			report.Recommendations{},
			report.Claims{},
			report.Inventory{},
		},
		idGen,
		clock,
		logger.Named("pipeline"),
	)
	if err != nil {
		logger.Fatal("pipeline init failed", zap.Error(err))
	}

	var notifier analysis.Notifier
	if cfg.Email.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Email.Region))
		if err != nil {
			logger.Fatal("aws config load failed", zap.Error(err))
		}
		sesNotifier, err := notify.NewSESNotifier(sesv2.NewFromConfig(awsCfg), notify.Config{
			FromAddress: cfg.Email.FromAddress,
			ReplyTo:     cfg.Email.ReplyTo,
		}, logger.Named("notify"))
		if err != nil {
			logger.Fatal("ses notifier init failed", zap.Error(err))
		}
		notifier = sesNotifier
	}

	var publisher analysis.Publisher
	if cfg.PubSub.Enabled {
		pubsubPublisher, err := publish.NewPubSubPublisher(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID, logger.Named("publish"))
		if err != nil {
			logger.Fatal("pubsub publisher init failed", zap.Error(err))
		}
		defer func() {
			_ = pubsubPublisher.Close()
		}()
		publisher = pubsubPublisher
	}

	var archiver analysis.Archiver
	if cfg.Archive.Enabled {
		gcsClient, err := gcstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("gcs client init failed", zap.Error(err))
		}
		defer func() {
			_ = gcsClient.Close()
		}()
		gcsArchiver, err := archive.NewGCSArchiver(gcsClient, archive.Config{
			Bucket: cfg.Archive.Bucket,
			Prefix: cfg.Archive.Prefix,
		}, logger.Named("archive"))
		if err != nil {
			logger.Fatal("archiver init failed", zap.Error(err))
		}
		archiver = gcsArchiver
	}

	q, err := queue.New(queue.Config{
		MaxRetries:      cfg.Queue.MaxRetries,
		RetryBackoff:    time.Duration(cfg.Queue.RetryBackoffSec) * time.Second,
		StatusCacheSize: cfg.Queue.StatusCacheSize,
		ReconcileMaxAge: time.Duration(cfg.Queue.ReconcileMaxAgeHrs) * time.Hour,
		PersistTimeout:  time.Duration(cfg.Queue.PersistTimeoutSec) * time.Second,
	}, queue.Deps{
		Store:     recordStore,
		Scratch:   scratch,
		Pipeline:  analyzer,
		Notifier:  notifier,
		Publisher: publisher,
		Archiver:  archiver,
		Clock:     clock,
		Logger:    logger.Named("queue"),
	})
	if err != nil {
		logger.Fatal("queue init failed", zap.Error(err))
	}

	apiServer := api.NewServer(q, api.Config{
		AdminToken:        cfg.Auth.AdminToken,
		RequestTimeout:    cfg.RequestTimeout(),
		ReconcileLookback: time.Duration(cfg.Reconcile.LookbackHours) * time.Hour,
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	grace := cfg.ShutdownGrace()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := q.Close(shutdownCtx); err != nil {
		logger.Error("queue shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
