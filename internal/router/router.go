package router

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam    *handler.ExamHandler
	Session *handler.SessionHandler
	WS      *handler.WSHandler
	Monitor *handler.MonitorHandler
	Result  *handler.ResultHandler
	System  *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work of the middlewares, such as the rate limiter
// cleanup.
func SetupRouter(
	ctx context.Context,
	tokenService *service.TokenService,
	sessionService *service.SessionService,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:          middleware.DefaultBrotliConfig.Quality,
		MinLength:        middleware.DefaultBrotliConfig.MinLength,
		ExcludedPrefixes: []string{"/ws/", "/api/v1/exam/monitor"},
	}))

	router.GET("/health", handlers.System.Health)

	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)

	api := router.Group("/api/v1")
	api.Use(middleware.NoStore(), limiter.Middleware())

	// ─── 1. Exam (examiner authoring + stateless submission) ───────────
	exam := api.Group("/exam")
	{
		exam.PUT("", handlers.Exam.ConfigureExam)
		exam.POST("/setup", handlers.Exam.ConfigureExam)
		exam.GET("/active", handlers.Exam.GetActiveExam)
		exam.POST("/submit", handlers.Exam.SubmitExam)
		exam.GET("/monitor", handlers.Monitor.MonitorSSE)
		exam.GET("/results", handlers.Result.ListResults)
	}

	// ─── 2. Sessions (session token) ───────────────────────────────────
	api.POST("/sessions", handlers.Session.StartSession)
	sessions := api.Group("/sessions/:session_id")
	sessions.Use(
		middleware.RequireSessionToken(tokenService),
		middleware.RequireHeldSession(sessionService),
	)
	{
		sessions.GET("", handlers.Session.GetSession)
		sessions.PUT("/answers/:index", handlers.Session.RecordAnswer)
		sessions.POST("/signals", handlers.Session.ReportSignal)
		sessions.POST("/submit", handlers.Session.SubmitSession)
	}

	api.GET("/system/status", handlers.System.Status)

	// ─── 3. WebSocket (token in query) ─────────────────────────────────
	ws := router.Group("/ws/v1/sessions/:session_id")
	ws.Use(
		middleware.RequireSessionToken(tokenService),
		middleware.RequireHeldSession(sessionService),
	)
	{
		ws.GET("/stream", handlers.WS.SessionStream)
	}

	return router
}
