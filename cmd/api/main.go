package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/classbridge/classbridge-api/api/swagger"
	"github.com/classbridge/classbridge-api/internal/handler"
	"github.com/classbridge/classbridge-api/internal/middleware"
	"github.com/classbridge/classbridge-api/internal/models"
	"github.com/classbridge/classbridge-api/internal/repository"
	"github.com/classbridge/classbridge-api/internal/service"
	redisclient "github.com/classbridge/classbridge-api/pkg/cache"
	"github.com/classbridge/classbridge-api/pkg/config"
	"github.com/classbridge/classbridge-api/pkg/database"
	"github.com/classbridge/classbridge-api/pkg/logger"
	corsmiddleware "github.com/classbridge/classbridge-api/pkg/middleware/cors"
	reqidmiddleware "github.com/classbridge/classbridge-api/pkg/middleware/requestid"
	"github.com/classbridge/classbridge-api/pkg/storage"
)

// @title ClassBridge API
// @version 1.0.0
// @description Classroom management backend: branches, subjects, class codes, assignments, submissions and study materials
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var cacheRepo *repository.CacheRepository
	if cfg.Cache.Enabled {
		redisClient, err := redisclient.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, roster cache disabled", "error", err)
			cacheRepo = repository.NewCacheRepository(nil, logr)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	} else {
		cacheRepo = repository.NewCacheRepository(nil, logr)
	}
	defer cacheRepo.Close() //nolint:errcheck

	store, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	reaper := service.NewReaperService(store, signer, service.ReaperConfig{
		Workers:    cfg.Reaper.Workers,
		MaxRetries: cfg.Reaper.MaxRetries,
		RetryDelay: cfg.Reaper.RetryDelay,
	}, logr)
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	reaper.Start(reaperCtx)
	defer func() {
		stopReaper()
		reaper.Stop()
	}()

	userRepo := repository.NewUserRepository(db)
	branchRepo := repository.NewBranchRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	memberRepo := repository.NewMemberRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	materialRepo := repository.NewMaterialRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "classbridge-api",
	})
	branchSvc := service.NewBranchService(branchRepo, subjectRepo, reaper, cacheRepo, nil, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, branchRepo, memberRepo, reaper, cacheRepo, nil, logr)
	membershipSvc := service.NewMembershipService(memberRepo, subjectRepo, cacheRepo, cfg.Cache.RosterTTL, metricsSvc, nil, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, subjectRepo, memberRepo, nil, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, assignmentRepo, memberRepo, nil, logr)
	materialSvc := service.NewMaterialService(materialRepo, subjectRepo, memberRepo, reaper, nil, logr)
	uploadSvc := service.NewUploadService(store, signer, service.UploadConfig{
		MaxFileSizeBytes: cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Uploads.AllowedMIMEs,
		URLPrefix:        cfg.APIPrefix,
	}, logr)
	exportSvc := service.NewExportService(subjectRepo, memberRepo, assignmentRepo, submissionRepo, nil, nil, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	branchHandler := handler.NewBranchHandler(branchSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	membershipHandler := handler.NewMembershipHandler(membershipSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc)
	materialHandler := handler.NewMaterialHandler(materialSvc)
	uploadHandler := handler.NewUploadHandler(uploadSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/signup", authHandler.Signup)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
	}

	api.GET("/files/:token", uploadHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))
	{
		secured.POST("/uploads", uploadHandler.Upload)

		teacher := secured.Group("")
		teacher.Use(middleware.RequireRoles(models.RoleTeacher))
		{
			teacher.POST("/branches", branchHandler.Create)
			teacher.GET("/branches", branchHandler.List)
			teacher.DELETE("/branches/:id", branchHandler.Delete)
			teacher.POST("/branches/:id/subjects", subjectHandler.Create)
			teacher.GET("/branches/:id/subjects", subjectHandler.ListByBranch)
			teacher.DELETE("/subjects/:id", subjectHandler.Delete)
			teacher.GET("/subjects/:id/roster", membershipHandler.Roster)
			teacher.DELETE("/members/:id", membershipHandler.Remove)
			teacher.POST("/subjects/:id/assignments", assignmentHandler.Create)
			teacher.GET("/assignments/:id/submissions", submissionHandler.ListByAssignment)
			teacher.PATCH("/submissions/:id/grade", submissionHandler.Grade)
			teacher.POST("/subjects/:id/materials", materialHandler.Create)
			teacher.DELETE("/materials/:id", materialHandler.Delete)
			teacher.GET("/subjects/:id/gradebook", exportHandler.Gradebook)
		}

		student := secured.Group("")
		student.Use(middleware.RequireRoles(models.RoleStudent))
		{
			student.POST("/subjects/join", membershipHandler.Join)
			student.GET("/me/subjects", membershipHandler.MySubjects)
			student.POST("/assignments/:id/submissions", submissionHandler.Submit)
			student.GET("/assignments/:id/submissions/me", submissionHandler.Status)
		}

		secured.GET("/subjects/:id", subjectHandler.Get)
		secured.GET("/subjects/:id/assignments", assignmentHandler.ListBySubject)
		secured.GET("/subjects/:id/materials", materialHandler.ListBySubject)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
