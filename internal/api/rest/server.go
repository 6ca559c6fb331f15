package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/stayloop/stayloop-backend/internal/domain/security"
	"github.com/stayloop/stayloop-backend/internal/infrastructure/cache"
	"github.com/stayloop/stayloop-backend/internal/infrastructure/config"
	"github.com/stayloop/stayloop-backend/internal/infrastructure/database"
	"github.com/stayloop/stayloop-backend/internal/infrastructure/repository"
	"github.com/stayloop/stayloop-backend/internal/metrics"
	"github.com/stayloop/stayloop-backend/internal/service/fraud"
	securitysvc "github.com/stayloop/stayloop-backend/internal/service/security"
)

// Server is the API server with all dependencies wired
type Server struct {
	config     *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	zapLogger  *zap.Logger
	db         *pgxpool.Pool
	cache      cache.Cache
}

// NewServer creates a new API server with all dependencies
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	zapLogger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("creating zap logger: %w", err)
	}

	db, err := database.Connect(ctx, &cfg.Database, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	redisCache, err := cache.NewRedisCache(&cfg.Redis, zapLogger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	// Repositories
	eventRepo := repository.NewSecurityEventRepository(db)
	fraudRepo := repository.NewFraudRepository(db)

	// Metrics
	registry, err := metrics.NewRegistry()
	if err != nil {
		db.Close()
		redisCache.Close()
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}

	// Services. Block lookups run on every request, so the block list is read
	// through the cache layer.
	blockStore := cache.NewBlocklistCache(eventRepo, redisCache, zapLogger)
	notifier := securitysvc.NewLogNotifier(zapLogger)
	securityService := securitysvc.NewService(eventRepo, blockStore, notifier, cfg.Security.Patterns, zapLogger)

	auditLog := securitysvc.NewFraudAuditLog(securityService)
	fraudService := fraud.NewService(fraudRepo, fraudRepo, auditLog, fraudRepo, &cfg.Fraud, zapLogger)

	// Rate limiter: counts in Redis, records degraded-mode decisions as
	// security events so outages are visible to operators
	onDegraded := func(ctx context.Context, key string, limit int, window time.Duration, cause error) {
		event := security.NewEvent(security.EventRateLimitDegraded, security.SeverityHigh, security.EventDetails{
			RateLimit: &security.RateLimitDetails{
				Key:    key,
				Limit:  limit,
				Window: window,
				Reason: cause.Error(),
			},
		})
		if err := securityService.LogEvent(ctx, event); err != nil {
			zapLogger.Warn("failed to record degraded rate limit event", zap.Error(err))
		}
	}
	rateLimiter := cache.NewRateLimiter(redisCache, zapLogger, onDegraded)
	rateLimitMiddleware := NewRateLimitMiddleware(rateLimiter, cfg.RateLimit.Requests, cfg.RateLimit.Window, registry)

	handler := NewHandler(fraudService, securityService, registry)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handler.Health)
	mux.HandleFunc("GET /healthz", handler.Health)
	mux.HandleFunc("POST /api/v1/fraud/check", handler.FraudCheck)
	mux.HandleFunc("POST /api/v1/fraud/feedback", handler.Feedback)
	mux.HandleFunc("POST /api/v1/security/events", handler.SecurityEvent)
	mux.HandleFunc("GET /api/v1/security/blocked/{ip}", handler.BlockedIP)

	middlewares := []Middleware{
		requestIDMiddleware,
		loggingMiddleware,
		recoveryMiddleware,
		rateLimitMiddleware.Middleware(),
		BlocklistMiddleware(securityService),
		timeoutMiddleware(30 * time.Second),
	}

	var h http.Handler = mux
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	server := &Server{
		config:    cfg,
		logger:    logger,
		zapLogger: zapLogger,
		db:        db,
		cache:     redisCache,
		httpServer: &http.Server{
			Addr:           cfg.Server.Address,
			Handler:        h,
			ReadTimeout:    cfg.Server.ReadTimeout,
			WriteTimeout:   cfg.Server.WriteTimeout,
			IdleTimeout:    cfg.Server.IdleTimeout,
			MaxHeaderBytes: 1 << 20,
		},
	}

	return server, nil
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", s.config.Server.Address)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		s.logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.db.Close()
	if err := s.cache.Close(); err != nil {
		s.zapLogger.Warn("closing cache", zap.Error(err))
	}

	return nil
}
