package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/labreports/internal/catalog"
	"github.com/joseph-ayodele/labreports/internal/common"
	"github.com/joseph-ayodele/labreports/internal/document"
	"github.com/joseph-ayodele/labreports/internal/export"
	"github.com/joseph-ayodele/labreports/internal/extract"
	"github.com/joseph-ayodele/labreports/internal/gcp"
	"github.com/joseph-ayodele/labreports/internal/reports"
	repo "github.com/joseph-ayodele/labreports/internal/repository"
	svc "github.com/joseph-ayodele/labreports/internal/server"
	"github.com/joseph-ayodele/labreports/internal/source"
	"github.com/joseph-ayodele/labreports/internal/standardize"
	"github.com/joseph-ayodele/labreports/internal/trend"
	"github.com/joseph-ayodele/labreports/internal/workflow"
)

func main() {
	// Setup structured logger that outputs messages with variables but no time/level
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}
	addr := cfg.Server.GRPCAddr
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repo.Open(ctx, repo.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer repo.Close(db, logger)

	if err := repo.HealthCheck(ctx, db, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if cfg.Database.AutoMigrate {
		if err := repo.Migrate(ctx, db, logger); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}

	cat := catalog.Default()
	reportsRepo := repo.NewLabReportRepository(db, logger)
	trendsRepo := repo.NewTrendRepository(db, logger)

	models, err := newModels(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to configure models", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	defer models.Close()

	checkpoints, closeCheckpoints, err := newCheckpointStore(ctx, cfg, db, logger)
	if err != nil {
		logger.Error("failed to configure checkpoint store", "backend", cfg.Workflow.CheckpointBackend, "error", err)
		os.Exit(1)
	}
	defer closeCheckpoints()

	deps := workflow.Deps{
		Documents: document.NewService(document.Config{
			Pdftotext: cfg.Document.Pdftotext,
			Pdftoppm:  cfg.Document.Pdftoppm,
			Pdfimages: cfg.Document.Pdfimages,
		}, logger),
		Text:        extract.NewModelExtractor(models.Text, cat, cfg.LLM.MaxInputChars, logger),
		Standardize: standardize.NewEngine(cat),
		Reports:     reportsRepo,
		Trends:      trend.NewAggregator(trendsRepo, logger),
		Checkpoints: checkpoints,
	}
	if v := models.visionExtractor(cfg, logger); v != nil {
		deps.Vision = v
	}

	orchestrator, err := workflow.NewOrchestrator(deps, workflow.Config{
		UploadDir:           cfg.Document.UploadDir,
		RenderZoom:          cfg.Document.RenderZoom,
		MaxPasswordAttempts: cfg.Workflow.MaxPasswordAttempts,
		RawTextLimit:        cfg.Workflow.RawTextLimit,
		CheckpointTTL:       cfg.Workflow.CheckpointTTL,
	}, logger)
	if err != nil {
		logger.Error("failed to build workflow", "error", err)
		os.Exit(1)
	}

	// Cloud Storage is optional: gs:// sources and export uploads need it.
	var objects *gcp.ObjectStore
	if cfg.GCP.ProjectID != "" {
		sc, err := storage.NewClient(ctx)
		if err != nil {
			logger.Error("failed to create storage client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = sc.Close() }()
		objects = gcp.NewObjectStore(sc, logger)
	}

	var resolver *source.Resolver
	var exports *svc.ExportHandler
	exportSvc := export.NewService(trendsRepo, logger)
	if objects != nil {
		resolver = source.NewResolver(cfg.Document.UploadDir, objects, logger)
		exports = svc.NewExportHandler(exportSvc, objects, cfg.GCP.ExportBucket, logger)
	} else {
		resolver = source.NewResolver(cfg.Document.UploadDir, nil, logger)
		exports = svc.NewExportHandler(exportSvc, nil, "", logger)
	}

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", addr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(svc.UnaryLogging(logger)))

	queries := reports.NewService(reportsRepo, trendsRepo, logger)
	svc.RegisterLabReportsServer(grpcServer, svc.NewLabReportsService(orchestrator, resolver, queries, exports, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(svc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if cfg.Workflow.CheckpointTTL > 0 {
		go purgeLoop(ctx, orchestrator, cfg.Workflow.CheckpointTTL, logger)
	}

	logger.Info("labreportsd listening",
		"addr", addr,
		"llm_provider", cfg.LLM.Provider,
		"checkpoints", cfg.Workflow.CheckpointBackend,
		"gcs", objects != nil,
	)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	healthServer.Shutdown()
	grpcServer.GracefulStop()
}

// purgeLoop drops idle checkpoints every ttl/4, at most once a minute.
func purgeLoop(ctx context.Context, o *workflow.Orchestrator, ttl time.Duration, logger *slog.Logger) {
	every := ttl / 4
	if every < time.Minute {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.PurgeExpired(ctx); err != nil {
				logger.Warn("checkpoint.purge.failed", "error", err)
			}
		}
	}
}
