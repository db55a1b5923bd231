package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether the service's dependencies are reachable.
type HealthCheck func(ctx context.Context) error

// RouterConfig collects the handlers and middleware dependencies mounted by NewRouter.
type RouterConfig struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Meetings      *MeetingHandler
	Authenticator Authenticator
	Health        HealthCheck
	Recorder      RequestRecorder
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	// CORSAllowedOrigins feeds the CORS middleware. Empty disables cross-origin access.
	CORSAllowedOrigins []string
	Logger             *slog.Logger
}

// NewRouter assembles the gin engine. Handlers left nil are not mounted.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := defaultLogger(cfg.Logger)

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(RequestLogger(logger), Recovery(logger), CORS(cfg.CORSAllowedOrigins), RequestMetrics(cfg.Recorder))

	responder := newResponder(logger)
	engine.NoRoute(func(c *gin.Context) { responder.writeError(c, http.StatusNotFound, nil) })
	engine.NoMethod(func(c *gin.Context) {
		responder.writeJSON(c, http.StatusMethodNotAllowed, errorResponse{Message: "method not allowed"})
	})

	engine.GET("/healthz", healthHandler(cfg.Health, responder))
	if cfg.MetricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	authenticated := engine.Group("/", RequireAuth(cfg.Authenticator, logger))

	if cfg.Auth != nil {
		engine.POST("/auth/login", cfg.Auth.Login)
		authenticated.POST("/auth/profile", cfg.Auth.Profile)
	}

	if cfg.Users != nil {
		engine.POST("/users", cfg.Users.Register)
		authenticated.GET("/users/profile", cfg.Users.Profile)
		authenticated.PATCH("/users/profile", cfg.Users.UpdateProfile)
		authenticated.DELETE("/users/profile", cfg.Users.DeleteProfile)
	}

	if cfg.Meetings != nil {
		meetings := authenticated.Group("/meetings")
		meetings.POST("", cfg.Meetings.Create)
		meetings.GET("", cfg.Meetings.List)
		meetings.GET("/history", cfg.Meetings.History)

		meetings.GET("/by-call/:callId", cfg.Meetings.GetByCall)
		meetings.POST("/by-call/:callId", cfg.Meetings.EnsureByCall)
		meetings.POST("/by-call/:callId/join", cfg.Meetings.JoinByCall)
		meetings.POST("/by-call/:callId/start", cfg.Meetings.StartByCall)
		meetings.POST("/by-call/:callId/end", cfg.Meetings.EndByCall)

		meetings.GET("/:id", cfg.Meetings.Get)
		meetings.PATCH("/:id", cfg.Meetings.Update)
		meetings.DELETE("/:id", cfg.Meetings.Delete)
		meetings.POST("/:id/join", cfg.Meetings.Join)
		meetings.POST("/:id/start", cfg.Meetings.Start)
		meetings.POST("/:id/end", cfg.Meetings.End)
	}

	return engine
}

func healthHandler(check HealthCheck, responder responder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				responder.loggerFor(ctx).ErrorContext(ctx, "health check failed", "error", err)
				responder.writeJSON(c, http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		responder.writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
	}
}
