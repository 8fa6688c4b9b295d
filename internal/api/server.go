package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"asset-manager/config"
	"asset-manager/internal/database"
	"asset-manager/internal/events"
	"asset-manager/internal/logging"
	"asset-manager/internal/manager"
	"asset-manager/internal/policy"
)

// RateLimiter provides simple in-memory rate limiting per endpoint
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// SnapshotSaver mirrors pushed position snapshots to the cache. May be
// nil when the cache is disabled.
type SnapshotSaver interface {
	Save(ctx context.Context, positions []policy.Position)
}

// Server exposes the manager over HTTP and WebSocket.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	manager     *manager.Manager
	audit       *database.ActionRepository
	snapshots   SnapshotSaver
	eventBus    *events.EventBus
	hub         *WSHub
	config      config.ServerConfig
	rateLimiter *RateLimiter
	logger      *logging.Logger
}

// NewServer creates the API server. audit and snapshots may be nil when
// the corresponding stores are disabled.
func NewServer(cfg config.ServerConfig, mgr *manager.Manager, audit *database.ActionRepository, snapshots SnapshotSaver, eventBus *events.EventBus) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		manager:     mgr,
		audit:       audit,
		snapshots:   snapshots,
		eventBus:    eventBus,
		hub:         NewWSHub(),
		config:      cfg,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logging.WithComponent("api"),
	}

	server.setupRoutes()

	// Every system event goes out to connected dashboards.
	eventBus.SubscribeAll(server.hub.BroadcastEvent)
	go server.hub.Run()

	return server
}

func allowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:5173", "http://localhost:8080"}
	}
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

// rateLimitMiddleware limits requests per endpoint path.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.FullPath()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	v1.Use(s.rateLimitMiddleware())
	{
		v1.POST("/signal", s.handleSignal)
		v1.POST("/positions", s.handleUpdatePositions)
		v1.PATCH("/config", s.handleUpdateConfig)
		v1.GET("/config", s.handleGetConfig)
		v1.POST("/enable", s.handleEnable)
		v1.POST("/disable", s.handleDisable)
		v1.GET("/status", s.handleStatus)
		v1.GET("/health", s.handleHealth)
		v1.GET("/actions/pending", s.handlePendingActions)
		v1.GET("/actions/executed", s.handleExecutedActions)
		v1.GET("/actions/history", s.handleActionHistory)
		v1.POST("/actions/:id/execute", s.handleExecuteAction)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	readTimeout := time.Duration(s.config.ReadTimeout) * time.Second
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	writeTimeout := time.Duration(s.config.WriteTimeout) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
