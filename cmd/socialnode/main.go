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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/socialmedia/internal/config"
	"github.com/jmerrifield20/socialmedia/internal/handler"
	"github.com/jmerrifield20/socialmedia/internal/health"
	"github.com/jmerrifield20/socialmedia/internal/identity"
	"github.com/jmerrifield20/socialmedia/internal/logging"
	"github.com/jmerrifield20/socialmedia/internal/node"
	"github.com/jmerrifield20/socialmedia/internal/notify"
	"github.com/jmerrifield20/socialmedia/internal/social"
	"github.com/jmerrifield20/socialmedia/internal/txlog"
	"github.com/jmerrifield20/socialmedia/internal/webhooks"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	cfg, err := config.Load(os.Getenv("SOCIAL_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "socialnode: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "socialnode: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("socialnode exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	startCtx := context.Background()

	owner, err := identity.ParseAddress(cfg.Ledger.Owner)
	if err != nil {
		return fmt.Errorf("ledger.owner: %w", err)
	}

	// ── Journal ───────────────────────────────────────────────────────────────
	journal, db, err := openJournal(startCtx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := journal.Close(); err != nil {
			logger.Error("close journal", zap.Error(err))
		}
		if db != nil {
			db.Close()
		}
	}()

	if err := journal.Verify(startCtx); err != nil {
		return fmt.Errorf("journal integrity check failed: %w", err)
	}
	n, _ := journal.Len(startCtx)
	root, _ := journal.Root(startCtx)
	logger.Info("journal verified",
		zap.String("backend", cfg.Storage.Backend),
		zap.Int("entries", n),
		zap.String("root", root),
	)

	// ── Ledger ────────────────────────────────────────────────────────────────
	exec := node.NewExecutor(owner, journal, logger)
	if _, err := exec.Replay(startCtx); err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}
	handler.SetLedgerGauges(exec.Stats(), n)

	// Post and user gauges follow the events; the journal gauge follows
	// applied calls.
	exec.SetCallRecorder(func(m node.Method, outcome string) {
		handler.RecordCall(m, outcome)
		if outcome == "ok" {
			handler.RecordJournalAppend()
		}
	})

	// ── Sessions ──────────────────────────────────────────────────────────────
	keys := identity.NewKeyManager(cfg.Identity.KeyDir)
	if err := keys.LoadOrCreate(); err != nil {
		return fmt.Errorf("session key setup failed: %w", err)
	}
	logger.Info("session key ready", zap.String("key_dir", cfg.Identity.KeyDir))

	issuerURL := cfg.Server.IssuerURL
	if issuerURL == "" {
		issuerURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}
	sessions := identity.NewSessionIssuer(keys.Key(), issuerURL, cfg.Identity.SessionTTL)

	// ── Notifications ─────────────────────────────────────────────────────────
	hub := notify.New(logger)
	exec.SetNotifier(hub)

	// Subscribers run on hub goroutines, off the call path.
	if err := hub.Subscribe(handler.RecordEvent); err != nil {
		return err
	}
	if err := hub.Subscribe(func(ev social.Event) {
		logger.Info("event",
			zap.String("kind", string(ev.Kind)),
			zap.String("caller", ev.Caller.String()),
			zap.Uint64("post_id", ev.PostID),
			zap.Uint64("comment_id", ev.CommentID),
		)
	}); err != nil {
		return err
	}

	var hooks *webhooks.Service
	if cfg.Webhooks.Enabled {
		var repo webhooks.Repository
		if db != nil {
			repo = webhooks.NewPostgresRepository(db)
		} else {
			repo = webhooks.NewMemoryRepository()
			logger.Warn("webhook subscriptions are kept in memory with this storage backend")
		}
		hooks = webhooks.NewService(repo, logger)
		hooks.SetHTTPClient(&http.Client{Timeout: cfg.Webhooks.Timeout})
		hooks.SetMetricsRecorder(handler.RecordWebhookDelivery)
		if err := hub.Subscribe(hooks.Handle); err != nil {
			return err
		}
	}

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: !containsWildcard(corsOrigins),
		MaxAge:           12 * time.Hour,
	}))
	router.Use(handler.SecurityHeaders())
	router.Use(handler.BodyLimit(cfg.Server.BodyLimit))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})
	defer close(stop)

	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		router.Use(handler.RateLimiter(rps, rps*2, stop))
	}
	router.Use(handler.RequestLogger(logger))
	router.Use(handler.PrometheusMiddleware())

	checker := health.New(journal, health.Config{
		CheckInterval: cfg.Health.CheckInterval,
		FailThreshold: cfg.Health.FailThreshold,
	}, logger)
	checker.SetMetricsRecord(handler.RecordJournalHealth)
	handler.RecordJournalHealth(true)
	go checker.Start(stop)

	router.GET("/healthz", checker.Handler())

	// ── gRPC health ───────────────────────────────────────────────────────────
	var grpcSrv *grpc.Server
	if port := cfg.Server.GRPCPort; port > 0 {
		grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err != nil {
			return fmt.Errorf("gRPC listen on :%d: %w", port, err)
		}
		grpcSrv = checker.NewGRPCServer(logger)
		go func() {
			logger.Info("socialnode gRPC health listening", zap.Int("port", port))
			if err := grpcSrv.Serve(grpcLis); err != nil {
				logger.Error("gRPC serve error", zap.Error(err))
			}
		}()

		conn, err := grpc.NewClient(fmt.Sprintf("localhost:%d", port),
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			grpcSrv.Stop()
			return fmt.Errorf("dial local gRPC: %w", err)
		}
		defer conn.Close()
		router.GET(health.GatewayPath, gin.WrapH(health.GatewayHandler(conn)))
	}
	router.GET("/metrics", handler.MetricsHandler())
	identity.RegisterJWKS(router, sessions)

	v1 := router.Group("/api/v1")
	handler.NewSocialHandler(exec, sessions, logger).Register(v1)
	sessionHandler := handler.NewSessionHandler(sessions, logger)
	sessionHandler.SetLoginWindow(cfg.Identity.LoginWindow)
	sessionHandler.Register(v1)
	handler.NewLedgerHandler(journal, logger).Register(v1)
	handler.NewStreamHandler(hub, originChecker(corsOrigins), logger).Register(v1)
	if hooks != nil {
		webhooks.NewHandler(hooks, sessions, logger).Register(v1)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("socialnode HTTP listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("owner", owner.String()),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP listen error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-quit
	logger.Info("shutting down socialnode...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	hub.Close()
	if hooks != nil {
		hooks.Close()
	}

	logger.Info("socialnode stopped")
	return nil
}

// openJournal opens the configured journal backend. The pool is non-nil only
// for the postgres backend.
func openJournal(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (txlog.Log, *pgxpool.Pool, error) {
	switch cfg.Backend {
	case config.StorageMemory:
		logger.Warn("journal is in memory; ledger state is lost on restart")
		return txlog.NewMemory(), nil, nil

	case config.StorageBadger:
		l, err := txlog.OpenBadger(cfg.BadgerDir, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open badger journal: %w", err)
		}
		return l, nil, nil

	case config.StoragePostgres:
		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		l, err := txlog.NewPostgres(ctx, db, logger)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return l, db, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
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

// originChecker allows websocket upgrades from the CORS origins. Requests
// without an Origin header (non-browser clients) are always allowed.
func originChecker(origins []string) func(*http.Request) bool {
	if containsWildcard(origins) {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSpace(o)] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
