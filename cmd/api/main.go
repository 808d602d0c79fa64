package main

import (
	"context"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	_ "github.com/campuscare/campuscare-api/api/swagger"
	"github.com/campuscare/campuscare-api/internal/handler"
	"github.com/campuscare/campuscare-api/internal/repository"
	"github.com/campuscare/campuscare-api/internal/router"
	"github.com/campuscare/campuscare-api/internal/service"
	"github.com/campuscare/campuscare-api/pkg/cache"
	"github.com/campuscare/campuscare-api/pkg/classify"
	"github.com/campuscare/campuscare-api/pkg/config"
	"github.com/campuscare/campuscare-api/pkg/database"
	"github.com/campuscare/campuscare-api/pkg/jobs"
	"github.com/campuscare/campuscare-api/pkg/logger"
	"github.com/campuscare/campuscare-api/pkg/mailer"
)

// @title CampusCare API
// @version 1.0.0
// @description Campus facility cleanliness issue tracker
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, rate limiting disabled", "error", err)
		redisClient = nil
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	voteRepo := repository.NewVoteRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	var emailQueue *jobs.Queue[mailer.Message]
	if cfg.Mailer.Enabled {
		sender := mailer.NewSMTPSender(cfg.Mailer)
		emailQueue = jobs.NewQueue[mailer.Message]("email", func(_ context.Context, msg mailer.Message) error {
			return sender.Send(msg)
		}, jobs.QueueConfig{
			Workers:    cfg.EmailQueue.Workers,
			BufferSize: cfg.EmailQueue.BufferSize,
			MaxRetries: cfg.EmailQueue.MaxRetries,
			RetryDelay: cfg.EmailQueue.RetryDelay,
			Logger:     logr,
		})
		emailQueue.Start(context.Background())
		defer emailQueue.Stop()
	}

	var emails *service.EmailNotifier
	if emailQueue != nil {
		emails = service.NewEmailNotifier(userRepo, emailQueue, metrics, logr)
	}

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	issueService := service.NewIssueService(db, issueRepo, historyRepo, voteRepo, assignmentRepo,
		notificationRepo, classify.NewClient(cfg.Classifier), metrics, validate, logr)
	voteService := service.NewVoteService(db, voteRepo, issueRepo, notificationRepo, metrics, logr)
	assignmentService := service.NewAssignmentService(db, assignmentRepo, issueRepo, userRepo,
		historyRepo, notificationRepo, emails, validate, logr)
	notificationService := service.NewNotificationService(notificationRepo, logr)
	userService := service.NewUserService(userRepo, logr)

	engine := router.New(router.Dependencies{
		Config:        cfg,
		Logger:        logr,
		Redis:         redisClient,
		Metrics:       metrics,
		Auth:          authService,
		Issues:        handler.NewIssueHandler(issueService, voteService),
		Assignments:   handler.NewAssignmentHandler(assignmentService),
		Notifications: handler.NewNotificationHandler(notificationService),
		Users:         handler.NewUserHandler(userService),
		AuthHandler:   handler.NewAuthHandler(authService),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := engine.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
