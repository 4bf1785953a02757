// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/audit"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/config"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/disputes"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/identity"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/idgen"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/logging"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/metrics"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/orders"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/platform"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/ratelimit"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/security"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/validation"
	"github.com/caffeinepub/usdt-p2p-trading-platform/internal/wallet"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	identity    *identity.Service
	wallets     *wallet.Service
	orders      *orders.Service
	disputes    *disputes.Service
	auditor     *audit.Service
	platform    *platform.Service
	rateLimiter *ratelimit.Limiter
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	cancelRun   context.CancelFunc

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	logFormat := "text"
	if cfg.IsProduction() {
		logFormat = "json"
	}
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, logFormat),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		identityStore identity.Store
		walletStore   wallet.Store
		orderStore    orders.Store
		disputeStore  disputes.Store
		auditStore    audit.Store
		platformStore platform.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		identityStore = identity.NewPostgresStore(db)
		walletStore = wallet.NewPostgresStore(db)
		orderStore = orders.NewPostgresStore(db)
		disputeStore = disputes.NewPostgresStore(db)
		auditStore = audit.NewPostgresStore(db)
		platformStore = platform.NewPostgresStore(db)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		identityStore = identity.NewMemoryStore()
		walletStore = wallet.NewMemoryStore()
		orderStore = orders.NewMemoryStore()
		disputeStore = disputes.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		platformStore = platform.NewMemoryStore()
	}

	// Wire services. The platform service checks the withdrawal lock for
	// the wallet service and quotes the rate for the order service.
	s.auditor = audit.NewService(auditStore)
	s.identity = identity.NewService(identityStore)
	s.wallets = wallet.NewService(walletStore, lockChecker{&s.platform}, s.auditor, cfg.SpreadBPS)
	s.orders = orders.NewService(orderStore, s.wallets, rateProvider{&s.platform}, s.auditor)
	s.platform = platform.NewService(platformStore, s.wallets, s.orders, cfg.PlatformRate, cfg.SpreadBPS)
	s.disputes = disputes.NewService(disputeStore, s.orders, s.wallets, s.auditor)

	// Bootstrap admin account
	adminKey, err := s.identity.EnsureAdmin(ctx, cfg.AdminPrincipal)
	if err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
	}
	s.logger.Info("admin bootstrapped", "principal", identity.Normalize(cfg.AdminPrincipal))
	if adminKey != "" {
		// First boot only. The key is shown once; store it securely.
		s.logger.Warn("admin API key issued", "api_key", adminKey)
	}

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// lockChecker and rateProvider adapt across the service-construction
// cycle: wallets and orders consult the platform service, which is
// constructed after them because it reads their state back.
type lockChecker struct{ p **platform.Service }

func (l lockChecker) WithdrawalsLocked(ctx context.Context) (bool, error) {
	return (*l.p).WithdrawalsLocked(ctx)
}

type rateProvider struct{ p **platform.Service }

func (r rateProvider) Rate(ctx context.Context) (float64, error) {
	return (*r.p).Rate(ctx)
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())
	s.router.GET("/api", s.infoHandler)

	identityHandler := identity.NewHandler(s.identity)
	walletHandler := wallet.NewHandler(s.wallets)
	orderHandler := orders.NewHandler(s.orders)
	disputeHandler := disputes.NewHandler(s.disputes)
	auditHandler := audit.NewHandler(s.auditor, identity.CallerPrincipal)
	platformHandler := platform.NewHandler(s.platform)

	// V1 API group. The identity middleware resolves API keys on every
	// route; enforcement happens per group below.
	v1 := s.router.Group("/v1")
	v1.Use(s.identity.Middleware())
	v1.Use(validation.PrincipalParamMiddleware())

	// PUBLIC ROUTES (no auth required): registration, the order book,
	// and platform facts the UI shows pre-login
	identityHandler.RegisterPublicRoutes(v1)
	orderHandler.RegisterPublicRoutes(v1)
	platformHandler.RegisterPublicRoutes(v1)

	// AUTHENTICATED ROUTES (any valid key): own profile, approval
	// requests, audit self-reporting
	authed := v1.Group("")
	authed.Use(identity.RequireAuth())
	identityHandler.RegisterRoutes(authed)
	auditHandler.RegisterRoutes(authed)

	// APPROVED-USER ROUTES: everything that moves or commits funds
	users := v1.Group("")
	users.Use(identity.RequireRole(identity.RoleUser))
	walletHandler.RegisterRoutes(users)
	orderHandler.RegisterRoutes(users)
	disputeHandler.RegisterRoutes(users)

	// ADMIN ROUTES
	admin := v1.Group("/admin")
	admin.Use(identity.RequireRole(identity.RoleAdmin))
	identityHandler.RegisterAdminRoutes(admin)
	walletHandler.RegisterAdminRoutes(admin)
	orderHandler.RegisterAdminRoutes(admin)
	disputeHandler.RegisterAdminRoutes(admin)
	auditHandler.RegisterAdminRoutes(admin)
	platformHandler.RegisterAdminRoutes(admin)
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "USDT P2P Trading Platform",
		"description": "Escrowed USDT/INR peer-to-peer trading",
		"version":     "0.1.0",
		"currency":    "USDT",
		"fiat":        "INR",
	})
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Run starts the server and blocks until shutdown
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Sample DB pool stats into Prometheus
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown drains in-flight requests and releases resources
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRun != nil {
		s.cancelRun()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}
