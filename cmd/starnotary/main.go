package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/starnotary/internal/api/handler"
	"github.com/jmerrifield20/starnotary/internal/config"
	"github.com/jmerrifield20/starnotary/internal/identity"
	"github.com/jmerrifield20/starnotary/internal/integrity"
	"github.com/jmerrifield20/starnotary/internal/ledger"
	"github.com/jmerrifield20/starnotary/internal/logging"
	"github.com/jmerrifield20/starnotary/internal/mempool"
	"github.com/jmerrifield20/starnotary/internal/signature"
	"github.com/jmerrifield20/starnotary/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	cfg, err := config.Load(os.Getenv("STARNOTARY_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "starnotary:", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "starnotary: build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("starnotary exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Storage and ledger ───────────────────────────────────────────────────
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	st, err := store.Open(openCtx, cfg.Storage.Config)
	cancel()
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", zap.Error(err))
		}
	}()
	logger.Info("store opened",
		zap.String("driver", string(cfg.Storage.Driver)),
		zap.String("path", cfg.Storage.Path),
	)

	chain := ledger.New(st, logger.Named("ledger"),
		ledger.WithStoreTimeout(cfg.Storage.Timeout),
		ledger.WithAppendRecorder(func(r *ledger.Record) {
			handler.RecordBlockAppended(r.Height)
		}),
	)
	if err := chain.Init(ctx); err != nil {
		return fmt.Errorf("init ledger: %w", err)
	}
	height, err := chain.Height(ctx)
	if err != nil {
		return fmt.Errorf("read ledger height: %w", err)
	}
	handler.SetLedgerHeight(height)
	logger.Info("ledger ready", zap.Int64("height", height))

	// ── Mempool and registration tokens ──────────────────────────────────────
	pool := mempool.New(mempool.Config{Window: cfg.Mempool.Window},
		signature.BitcoinVerifier{}, chain, logger.Named("mempool"))
	defer pool.Close()
	pool.SetMetricsRecorder(handler.RecordMempoolEvent)

	tokens, err := identity.NewTokenIssuer([]byte(cfg.API.TokenSecret), cfg.API.Issuer)
	if err != nil {
		return fmt.Errorf("init token issuer: %w", err)
	}
	if cfg.API.TokenSecret == "" {
		logger.Warn("api.token_secret not set; registration tokens will not survive a restart")
	}

	// ── gRPC health ──────────────────────────────────────────────────────────
	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(integrity.ServiceName, healthpb.HealthCheckResponse_SERVING)
	grpcSrv := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	reflection.Register(grpcSrv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	go func() {
		logger.Info("starnotary gRPC health listening", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC serve error", zap.Error(err))
		}
	}()

	// ── Background: integrity sweep ──────────────────────────────────────────
	var reporter handler.IntegrityReporter
	if cfg.Integrity.Enabled {
		checker := integrity.New(chain, integrity.Config{Interval: cfg.Integrity.Interval}, logger.Named("integrity"))
		checker.SetHealthServer(healthSrv)
		checker.SetMetricsRecord(handler.RecordIntegritySweep)
		reporter = checker
		go checker.Start(ctx)
	}

	// ── Background: mempool gauges every 15 seconds ──────────────────────────
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				handler.SetMempoolGauges(pool.Stats())
			case <-ctx.Done():
				return
			}
		}
	}()

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", handler.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", handler.RequestIDHeader},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))

	router.Use(handler.SecurityHeaders())
	router.Use(handler.BodyLimit(1 << 20))
	router.Use(handler.RequestID())

	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		router.Use(handler.RateLimiter(ctx, rps, int(rps*2)))
	}

	router.Use(handler.RequestLogger(logger.Named("http")))
	router.Use(handler.PrometheusMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", handler.MetricsHandler())

	api := router.Group("/")
	handler.NewValidationHandler(pool, tokens, logger).Register(api)
	handler.NewBlockHandler(pool, chain, tokens, cfg.API.RequireRegistrationToken, logger).Register(api)
	handler.NewStarHandler(chain, logger).Register(api)
	handler.NewChainHandler(chain, reporter, logger).Register(api)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starnotary HTTP listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		grpcSrv.Stop()
		return fmt.Errorf("http listen: %w", err)
	}
	logger.Info("shutting down starnotary...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	healthSrv.Shutdown()
	grpcSrv.GracefulStop()

	logger.Info("starnotary stopped")
	return nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
