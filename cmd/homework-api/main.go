package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/homework-review-api/api/swagger"
	"github.com/noah-isme/homework-review-api/internal/dto"
	"github.com/noah-isme/homework-review-api/internal/handler"
	internalmiddleware "github.com/noah-isme/homework-review-api/internal/middleware"
	"github.com/noah-isme/homework-review-api/internal/models"
	"github.com/noah-isme/homework-review-api/internal/repository"
	"github.com/noah-isme/homework-review-api/internal/service"
	"github.com/noah-isme/homework-review-api/pkg/aichat"
	"github.com/noah-isme/homework-review-api/pkg/cache"
	"github.com/noah-isme/homework-review-api/pkg/config"
	"github.com/noah-isme/homework-review-api/pkg/database"
	"github.com/noah-isme/homework-review-api/pkg/jobs"
	"github.com/noah-isme/homework-review-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/homework-review-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/homework-review-api/pkg/middleware/requestid"
	"github.com/noah-isme/homework-review-api/pkg/storage"
)

// @title Homework Review API
// @version 1.0.0
// @description Homework submission tracker with asynchronous AI review
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

	policy, err := models.ParseRejectionPolicy(cfg.AIReview.Action)
	if err != nil {
		logr.Fatal("invalid AI review action", zap.Error(err))
	}

	location, err := time.LoadLocation(cfg.Janitor.Timezone)
	if err != nil {
		logr.Warn("unknown timezone, falling back to UTC", zap.String("timezone", cfg.Janitor.Timezone), zap.Error(err))
		location = time.UTC
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(rootCtx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(rootCtx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, board cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	files, err := storage.NewLocalStorage(cfg.Uploads.Dir)
	if err != nil {
		logr.Fatal("failed to prepare upload directory", zap.Error(err))
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Cache.BoardTTL, logr, cfg.Cache.BoardEnabled)

	adminRepo := repository.NewAdminRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	homeworkRepo := repository.NewHomeworkRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	imageRepo := repository.NewImageRepository(db)
	cascadeRepo := repository.NewCascadeRepository(db)

	authSvc := service.NewAuthService(adminRepo, teacherRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	if err := authSvc.SeedAdmin(rootCtx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
		logr.Fatal("failed to seed admin account", zap.Error(err))
	}

	chatClient := aichat.NewClient(aichat.Config{
		ChatURL:      cfg.AIReview.APIURL,
		LoginURL:     cfg.AIReview.LoginURL,
		Username:     cfg.AIReview.Username,
		Password:     cfg.AIReview.Password,
		APIUser:      cfg.AIReview.APIUser,
		LoginTimeout: cfg.AIReview.LoginTimeout,
		ChatTimeout:  cfg.AIReview.ChatTimeout,
	}, nil)

	worker := service.NewReviewWorker(service.ReviewWorkerParams{
		Submissions: submissionRepo,
		Images:      imageRepo,
		Homeworks:   homeworkRepo,
		Cascade:     cascadeRepo,
		Files:       files,
		Chat:        chatClient,
		Credentials: service.NewCredentialCache(chatClient, logr),
		Cache:       cacheSvc,
		Metrics:     metrics,
		Logger:      logr,
		Config: service.ReviewWorkerConfig{
			Model:      cfg.AIReview.Model,
			BaseURL:    cfg.AIReview.BaseURL,
			MaxRetries: cfg.AIReview.MaxRetries,
			RetryDelay: cfg.AIReview.RetryDelay,
			Policy:     policy,
		},
	})

	// Review attempts are retried inside the worker; the queue never requeues.
	reviewQueue := jobs.NewQueue(service.ReviewJobType, worker.Handle, jobs.QueueConfig{
		Workers:    cfg.AIReview.Workers,
		BufferSize: cfg.AIReview.QueueSize,
		MaxRetries: -1,
		Logger:     logr,
	})
	reviewQueue.Start(rootCtx)
	if err := metrics.ObserveQueueDepth(reviewQueue.Len); err != nil {
		logr.Warn("queue depth gauge disabled", zap.Error(err))
	}

	submissionSvc := service.NewSubmissionService(service.SubmissionServiceParams{
		Submissions: submissionRepo,
		Images:      imageRepo,
		Homeworks:   homeworkRepo,
		Students:    studentRepo,
		Teachers:    teacherRepo,
		Cascade:     cascadeRepo,
		Files:       files,
		Queue:       reviewQueue,
		Cache:       cacheSvc,
		Metrics:     metrics,
		Logger:      logr,
		Config: service.SubmissionServiceConfig{
			ImageUploadEnabled: cfg.Uploads.Enabled,
			AIReviewEnabled:    cfg.AIReview.Enabled,
			MaxImages:          cfg.Uploads.MaxImages,
		},
	})
	boardSvc := service.NewBoardService(service.BoardServiceParams{
		Students:    studentRepo,
		Homeworks:   homeworkRepo,
		Submissions: submissionRepo,
		Cache:       cacheSvc,
		Location:    location,
		CacheTTL:    cfg.Cache.BoardTTL,
		Logger:      logr,
	})
	homeworkSvc := service.NewHomeworkService(service.HomeworkServiceParams{
		Repo:        homeworkRepo,
		Teachers:    teacherRepo,
		Submissions: submissionRepo,
		Cascade:     cascadeRepo,
		Files:       files,
		Cache:       cacheSvc,
		Location:    location,
		Validator:   validate,
		Logger:      logr,
	})
	teacherSvc := service.NewTeacherService(teacherRepo, cascadeRepo, files, cacheSvc, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, cascadeRepo, files, cacheSvc, validate, logr)

	var janitor *service.Janitor
	if cfg.Janitor.Enabled {
		janitor, err = service.NewJanitor(service.JanitorParams{
			Submissions: submissionRepo,
			Homeworks:   homeworkRepo,
			Cache:       cacheSvc,
			Metrics:     metrics,
			Logger:      logr,
			Config: service.JanitorConfig{
				DailySpec:     cfg.Janitor.DailySpec,
				SweepSpec:     cfg.Janitor.SweepSpec,
				ReviewTimeout: cfg.Janitor.ReviewTimeout,
				Location:      location,
				SweepEmpty:    cfg.Uploads.Enabled,
			},
		})
		if err != nil {
			logr.Fatal("failed to schedule janitor", zap.Error(err))
		}
		janitor.Start()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	submissionHandler := handler.NewSubmissionHandler(submissionSvc, boardSvc)
	homeworkHandler := handler.NewHomeworkHandler(homeworkSvc, submissionSvc)
	teacherHandler := handler.NewTeacherHandler(teacherSvc)
	studentHandler := handler.NewStudentHandler(studentSvc)
	metricsHandler := handler.NewMetricsHandler(metrics, db)
	configHandler := handler.NewConfigurationHandler(dto.PublicConfig{
		EnableImageUpload:    cfg.Uploads.Enabled,
		MaxImagesPerHomework: cfg.Uploads.MaxImages,
		AllowedImageFormats:  cfg.Uploads.AllowedFormats,
		MaxImageSizeMB:       cfg.Uploads.MaxImageSizeMB,
		EnableAIReview:       cfg.AIReview.Enabled,
		AIReviewAction:       string(policy),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.Static("/uploads", cfg.Uploads.Dir)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/config", configHandler.Public)
	api.GET("/board", submissionHandler.Board)
	api.POST("/submissions", submissionHandler.Create)
	api.GET("/submissions/:id", submissionHandler.Get)
	api.DELETE("/submissions/:id", submissionHandler.Delete)
	api.POST("/submissions/:id/images", internalmiddleware.BodyLimit(cfg.Uploads.MaxBodyBytes()), submissionHandler.UploadImage)
	api.GET("/submissions/:id/images", submissionHandler.ListImages)
	api.POST("/submissions/:id/finalize", submissionHandler.Finalize)
	api.DELETE("/images/:id", submissionHandler.DeleteImage)

	api.POST("/admin/login", authHandler.AdminLogin)
	api.POST("/teacher/login", authHandler.TeacherLogin)

	teacher := api.Group("/teacher")
	teacher.Use(internalmiddleware.JWT(authSvc), internalmiddleware.RequireRoles(models.RoleTeacher))
	teacher.GET("/me", teacherHandler.Me)
	teacher.POST("/ai-review/toggle", teacherHandler.ToggleAIReview)
	teacher.POST("/homeworks", homeworkHandler.Create)
	teacher.GET("/homeworks", homeworkHandler.List)
	teacher.DELETE("/homeworks/:id", homeworkHandler.Delete)
	teacher.GET("/submissions", homeworkHandler.Submissions)
	teacher.GET("/abnormal-submissions", homeworkHandler.Abnormal)
	teacher.POST("/submissions/:id/retry", homeworkHandler.Retry)
	teacher.POST("/submissions/:id/override", homeworkHandler.Override)
	teacher.POST("/submissions/reset", homeworkHandler.ResetSubmissions)
	teacher.GET("/students-status", homeworkHandler.StudentsStatus)
	teacher.GET("/unsubmitted-students", homeworkHandler.UnsubmittedStudents)
	teacher.GET("/homework-dates", homeworkHandler.HomeworkDates)

	admin := api.Group("/admin")
	admin.Use(internalmiddleware.JWT(authSvc), internalmiddleware.RequireRoles(models.RoleAdmin))
	admin.GET("/teachers", teacherHandler.List)
	admin.POST("/teachers", teacherHandler.Create)
	admin.PUT("/teachers/:id", teacherHandler.Update)
	admin.DELETE("/teachers/:id", teacherHandler.Delete)
	admin.GET("/students", studentHandler.List)
	admin.GET("/students/:id", studentHandler.Get)
	admin.POST("/students", studentHandler.Create)
	admin.PUT("/students/:id", studentHandler.Update)
	admin.DELETE("/students/:id", studentHandler.Delete)
	admin.GET("/homeworks", homeworkHandler.List)
	admin.DELETE("/homeworks/:id", homeworkHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env,
			"ai_review", cfg.AIReview.Enabled, "policy", policy, "uploads", cfg.Uploads.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown incomplete", zap.Error(err))
	}
	reviewQueue.Stop()
	if janitor != nil {
		janitor.Stop(shutdownCtx)
	}
}
