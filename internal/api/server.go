package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pulsekeep/pulsekeep/internal/app_interfaces"
	"github.com/pulsekeep/pulsekeep/internal/config"
	"github.com/pulsekeep/pulsekeep/internal/middleware"
)

// Version reported by GET /api/0/info.
const Version = "0.13.2"

type Server struct {
	cfg         *config.Config
	postgresDB  app_interfaces.PostgresService
	eventStore  app_interfaces.EventStoreService
	redisClient app_interfaces.RedisService
	keySvc      app_interfaces.KeyStoreService
	settingsSvc app_interfaces.SettingsService
	router      *gin.Engine
	httpSrv     *http.Server
}

func NewServer(
	cfg *config.Config,
	postgresDB app_interfaces.PostgresService,
	eventStore app_interfaces.EventStoreService,
	redisClient app_interfaces.RedisService,
	keySvc app_interfaces.KeyStoreService,
	settingsSvc app_interfaces.SettingsService,
) *Server {
	if cfg.Environment == "production" || cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		cfg:         cfg,
		postgresDB:  postgresDB,
		eventStore:  eventStore,
		redisClient: redisClient,
		keySvc:      keySvc,
		settingsSvc: settingsSvc,
		router:      gin.New(),
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggerMiddleware())
	s.router.Use(MetricsMiddleware())
	s.router.Use(CORSMiddleware(s.cfg.Server.CORSOrigins))

	if s.cfg.Server.RateLimitPerMinute > 0 {
		s.router.Use(RateLimitMiddleware(s.cfg.Server.RateLimitPerMinute))
	}

	maxBytes := int64(s.cfg.Ingest.MaxPayloadBytes)
	if maxBytes <= 0 {
		maxBytes = config.DefaultMaxPayloadBytes
	}
	s.router.Use(BodyPolicyMiddleware(maxBytes))
}

func (s *Server) setupRoutes() {
	// ===========================================
	// PUBLIC ROUTES (no authentication required)
	// ===========================================

	s.router.GET("/health", s.healthCheckHandler())
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.router.GET("/api/0/info", s.infoHandler())

	// Key management stays open so the first key can be issued; the
	// reverse proxy in front restricts who reaches it.
	keys := s.router.Group("/api/v1")
	{
		keys.POST("/api-keys", s.createAPIKeyHandler())
		keys.GET("/api-keys", s.listAPIKeysHandler())
		keys.DELETE("/api-keys/:key_id", s.revokeAPIKeyHandler())
	}

	// ===========================================
	// BUCKET / EVENT ROUTES (API key when auth is enabled)
	// ===========================================

	apiKeyAuth := middleware.NewAPIKeyMiddleware(s.keySvc, s.cfg.Security.AuthEnabled)

	api0 := s.router.Group("/api/0")
	api0.Use(apiKeyAuth)
	{
		api0.GET("/buckets", s.listBucketsHandler())
		api0.POST("/buckets/:bucket_id", s.createBucketHandler())
		api0.GET("/buckets/:bucket_id", s.getBucketHandler())
		api0.DELETE("/buckets/:bucket_id", s.deleteBucketHandler())

		api0.POST("/buckets/:bucket_id/events", s.insertEventsHandler())
		api0.GET("/buckets/:bucket_id/events", s.getEventsHandler())
		api0.GET("/buckets/:bucket_id/events/count", s.countEventsHandler())
		api0.POST("/buckets/:bucket_id/heartbeat", s.heartbeatHandler())

		api0.POST("/query", s.queryHandler())

		api0.GET("/settings/:key", s.getSettingHandler())
		api0.PUT("/settings/:key", s.setSettingHandler())
		api0.DELETE("/settings/:key", s.deleteSettingHandler())
	}
}

// Router exposes the gin engine, mainly for handler tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Run() error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Server.Host, s.cfg.Server.Port)

	readTimeout := 15 * time.Second
	if s.cfg.Server.ReadTimeoutSeconds > 0 {
		readTimeout = time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second
	}
	writeTimeout := 15 * time.Second
	if s.cfg.Server.WriteTimeoutSeconds > 0 {
		writeTimeout = time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second
	}

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}
