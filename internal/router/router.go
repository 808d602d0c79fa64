package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/campuscare/campuscare-api/internal/handler"
	"github.com/campuscare/campuscare-api/internal/middleware"
	"github.com/campuscare/campuscare-api/internal/service"
	"github.com/campuscare/campuscare-api/pkg/config"
	"github.com/campuscare/campuscare-api/pkg/logger"
	corsmiddleware "github.com/campuscare/campuscare-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuscare/campuscare-api/pkg/middleware/requestid"
)

// Dependencies carries everything route registration needs.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Redis         *redis.Client
	Metrics       *service.MetricsService
	Auth          *service.AuthService
	Issues        *handler.IssueHandler
	Assignments   *handler.AssignmentHandler
	Notifications *handler.NotificationHandler
	Users         *handler.UserHandler
	AuthHandler   *handler.AuthHandler
}

// New builds the gin engine with all routes registered.
func New(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", deps.AuthHandler.Login)
		auth.POST("/refresh", deps.AuthHandler.Refresh)
		auth.POST("/logout", middleware.JWT(deps.Auth), deps.AuthHandler.Logout)
	}

	issues := api.Group("/issues")
	{
		issues.GET("", middleware.OptionalJWT(deps.Auth), deps.Issues.List)
		issues.GET("/mine", middleware.JWT(deps.Auth), deps.Issues.ListMine)
		issues.GET("/:id", middleware.OptionalJWT(deps.Auth), deps.Issues.Get)
		issues.GET("/:id/history", middleware.JWT(deps.Auth), deps.Issues.History)
		issues.POST("",
			middleware.JWT(deps.Auth),
			middleware.IssueRateLimit(deps.Redis, cfg.RateLimit, deps.Metrics, deps.Logger),
			deps.Issues.Create)
		issues.PATCH("/:id", middleware.JWT(deps.Auth), deps.Issues.Update)
		issues.POST("/:id/vote", middleware.JWT(deps.Auth), deps.Issues.Vote)
	}

	api.GET("/locations", deps.Issues.Locations)

	assignments := api.Group("/assignments", middleware.JWT(deps.Auth))
	{
		assignments.POST("", middleware.RequireStaff(), deps.Assignments.Create)
		assignments.GET("/mine", deps.Assignments.ListMine)
		assignments.POST("/:id/start", middleware.RequireStaff(), deps.Assignments.Start)
		assignments.POST("/:id/complete", middleware.RequireStaff(), deps.Assignments.Complete)
	}

	notifications := api.Group("/notifications", middleware.JWT(deps.Auth))
	{
		notifications.GET("", deps.Notifications.List)
		notifications.POST("/:id/read", deps.Notifications.MarkRead)
		notifications.POST("/read-all", deps.Notifications.MarkAllRead)
	}

	users := api.Group("/users", middleware.JWT(deps.Auth))
	{
		users.GET("/me", deps.Users.Me)
		users.GET("/staff", middleware.RequireStaff(), deps.Users.ListStaff)
	}

	return r
}
