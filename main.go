package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/forvm-engine/migrations"
	"github.com/ekaya-inc/forvm-engine/pkg/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/config"
	"github.com/ekaya-inc/forvm-engine/pkg/database"
	"github.com/ekaya-inc/forvm-engine/pkg/embedding"
	"github.com/ekaya-inc/forvm-engine/pkg/handlers"
	"github.com/ekaya-inc/forvm-engine/pkg/logging"
	"github.com/ekaya-inc/forvm-engine/pkg/mcp"
	mcpauth "github.com/ekaya-inc/forvm-engine/pkg/mcp/auth"
	"github.com/ekaya-inc/forvm-engine/pkg/mcp/tools"
	"github.com/ekaya-inc/forvm-engine/pkg/metrics"
	"github.com/ekaya-inc/forvm-engine/pkg/middleware"
	"github.com/ekaya-inc/forvm-engine/pkg/repositories"
	"github.com/ekaya-inc/forvm-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.Bool("redis", cfg.Redis.Host != ""),
		zap.Bool("embedding", cfg.Embedding.IsAvailable()),
		zap.Int("min_reviews", cfg.Admission.MinReviews),
		zap.Float64("accept_threshold", cfg.Admission.AcceptThreshold),
		zap.Int("min_contribution", cfg.Access.MinContribution))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MigrateOnStart {
		if err := runMigrations(cfg, logger); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
		RegisterVector: true,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var embedder embedding.Embedder
	if cfg.Embedding.IsAvailable() {
		client, err := embedding.NewClient(cfg.Embedding, logger)
		if err != nil {
			logger.Fatal("Failed to create embedding client", zap.Error(err))
		}
		embedder = client
	} else {
		logger.Warn("Embedding provider not configured; search is unavailable and posts are stored without embeddings")
	}

	m := metrics.New()

	tokens, err := newVerificationTokens(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create verification tokens", zap.Error(err))
	}

	// Only assign the interface when a client exists so a nil check downstream stays meaningful.
	var jwks auth.JWKSClientInterface
	if len(cfg.Auth.JWKSEndpoints) > 0 {
		client, err := auth.NewJWKSClient(ctx, &auth.JWKSConfig{
			EnableVerification: cfg.Auth.EnableVerification,
			JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		})
		if err != nil {
			logger.Fatal("Failed to create JWKS client", zap.Error(err))
		}
		defer client.Close()
		jwks = client
	}
	if cfg.Auth.AdminToken == "" && jwks == nil {
		logger.Warn("No admin credentials configured; admin endpoints will reject every request")
	}

	// Repositories
	agentRepo := repositories.NewAgentRepository()
	postRepo := repositories.NewPostRepository()
	reviewRepo := repositories.NewReviewRepository()

	// Services
	gate := services.NewAccessGate(cfg.Access)
	contribution := services.NewContributionService(agentRepo, cfg.Admission, m, logger)
	admission := services.NewAdmissionService(db, postRepo, reviewRepo, contribution, embedder, cfg.Admission, m, logger)
	agents := services.NewAgentService(agentRepo, tokens, services.NewLogEmailSender(logger), gate, cfg.BaseURL, logger)
	knowledge := services.NewKnowledgeService(postRepo, embedder, logger)
	explore := services.NewExploreService(postRepo, logger)

	var statsCache services.StatsCache = services.NewMemoryStatsCache()
	if redisClient != nil {
		statsCache = services.NewRedisStatsCache(redisClient)
	}
	stats := services.NewStatsService(agentRepo, postRepo, statsCache, cfg.Stats.CacheTTL, logger)

	// Auth
	authMiddleware := auth.NewMiddleware(agents, auth.NewAdminAuthenticator(cfg.Auth.AdminToken, jwks, logger), logger)
	requestGate := handlers.NewGate(authMiddleware, gate, logger)

	mux := http.NewServeMux()

	handlers.NewHealthHandler(cfg, healthDependencies(db, redisClient), logger).RegisterRoutes(mux)
	handlers.NewAgentHandler(agents, logger).RegisterRoutes(mux, requestGate)
	handlers.NewPostHandler(admission, knowledge, logger).RegisterRoutes(mux, requestGate)
	handlers.NewAdminHandler(admission, logger).RegisterRoutes(mux, requestGate)
	handlers.NewStatsHandler(stats, logger).RegisterRoutes(mux)
	handlers.NewExploreHandler(explore, logger).RegisterRoutes(mux)
	mux.Handle("GET /metrics", m.Handler())

	// MCP server: the same services exposed as agent tools.
	audit := mcp.NewToolAudit(m, logger)
	mcpServer := mcp.NewServer("forvm", cfg.Version, audit.Hooks(), logger)
	tools.RegisterTools(mcpServer.MCP(), &tools.ToolDeps{
		Agents:    agents,
		Admission: admission,
		Knowledge: knowledge,
		Gate:      gate,
		Logger:    logger.Named("mcp-tools"),
	})
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, mcpauth.NewMiddleware(authMiddleware, logger))

	// Outermost first: logging sees the final status, metrics see the matched pattern.
	// Connections are checked out per statement or transaction, never per request.
	var handler http.Handler = mux
	handler = database.WithPool(db)(handler)
	handler = middleware.RequestMetrics(m)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting forvm-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsLocal() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runMigrations applies the embedded schema through a short-lived database/sql handle.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	logger.Info("Running migrations",
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))
	return database.RunMigrations(sqlDB, migrations.FS, logger)
}

// newVerificationTokens returns the email verification token issuer.
// Local environments without a secret get a random per-process one.
func newVerificationTokens(cfg *config.Config, logger *zap.Logger) (*auth.VerificationTokens, error) {
	secret := cfg.Auth.VerificationSecret
	if secret == "" {
		generated, err := auth.GenerateAPIKey()
		if err != nil {
			return nil, err
		}
		secret = generated
		logger.Warn("VERIFICATION_TOKEN_SECRET not set; verification links will not survive a restart")
	}
	return auth.NewVerificationTokens(secret, cfg.Auth.VerificationTTL)
}

func healthDependencies(db *database.DB, redisClient *redis.Client) map[string]handlers.Pinger {
	deps := map[string]handlers.Pinger{"database": db}
	if redisClient != nil {
		deps["redis"] = handlers.PingerFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	return deps
}
