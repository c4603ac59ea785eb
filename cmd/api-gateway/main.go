package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/vantage-academy/portal-api/api/swagger"
	"github.com/vantage-academy/portal-api/internal/handler"
	"github.com/vantage-academy/portal-api/internal/middleware"
	"github.com/vantage-academy/portal-api/internal/models"
	"github.com/vantage-academy/portal-api/internal/repository"
	"github.com/vantage-academy/portal-api/internal/service"
	"github.com/vantage-academy/portal-api/internal/token"
	"github.com/vantage-academy/portal-api/pkg/cache"
	"github.com/vantage-academy/portal-api/pkg/config"
	"github.com/vantage-academy/portal-api/pkg/database"
	"github.com/vantage-academy/portal-api/pkg/logger"
	corsmiddleware "github.com/vantage-academy/portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/vantage-academy/portal-api/pkg/middleware/requestid"
	"github.com/vantage-academy/portal-api/pkg/storage"
)

// @title Academy Portal API
// @version 1.0.0
// @description Role-aware portal for the coaching certification academy
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	uploads, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare uploads storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	programRepo := repository.NewProgramRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	materialRepo := repository.NewMaterialRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	switchRepo := repository.NewRoleSwitchRepository(redisClient, cfg.Session.SwitchTTL)

	// Services.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	audit := service.NewAuditRecorder(auditRepo, cfg.Audit, logr, metricsSvc)
	audit.Start(ctx)
	defer audit.Stop()

	codec := token.NewJWTCodec(cfg.Session.Secret, cfg.Session.TokenLifetime, cfg.Session.Issuer)
	authSvc := service.NewAuthService(userRepo, switchRepo, codec, nil, logr, audit, metricsSvc)
	userSvc := service.NewUserService(userRepo, nil, logr, audit)
	classSvc := service.NewClassService(classRepo, userRepo, nil, logr, audit)
	programSvc := service.NewProgramService(programRepo, nil, logr, audit)
	sessionSvc := service.NewSessionService(sessionRepo, classSvc, nil, logr, audit)
	materialSvc := service.NewMaterialService(materialRepo, classSvc, uploads, signer, cfg.Uploads, logr, audit)
	auditQuerySvc := service.NewAuditQueryService(auditRepo)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classHandler := handler.NewClassHandler(classSvc)
	programHandler := handler.NewProgramHandler(programSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	materialHandler := handler.NewMaterialHandler(materialSvc, uploads)
	auditHandler := handler.NewAuditHandler(auditQuerySvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

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
		auth.POST("/login", authHandler.Login)

		protected := auth.Group("")
		protected.Use(middleware.Authenticate(codec))
		protected.POST("/switch-role", authHandler.SwitchRole)
		protected.POST("/session/refresh", authHandler.RefreshSession)
		protected.GET("/session", authHandler.Session)
		protected.POST("/logout", authHandler.Logout)
		protected.POST("/change-password", authHandler.ChangePassword)
	}

	// Material downloads are authorized by the signed token alone so links
	// can be opened outside an authenticated client.
	api.GET("/materials/:id/download", materialHandler.Download)

	secured := api.Group("")
	secured.Use(middleware.Authenticate(codec))

	users := secured.Group("/users")
	{
		// Teachers can provision accounts (student-only, enforced in the
		// service); everything else is admin-persona territory.
		users.POST("", middleware.RequireFlag(models.RoleTeacher, models.RoleAdmin), userHandler.Create)
		users.GET("", middleware.RequireCurrentRole(models.RoleAdmin), userHandler.List)
		users.GET("/:id", middleware.RequireCurrentRole(models.RoleAdmin), userHandler.Get)
		users.PUT("/:id", middleware.RequireCurrentRole(models.RoleAdmin), userHandler.Update)
		users.DELETE("/:id", middleware.RequireCurrentRole(models.RoleAdmin), userHandler.Delete)
		users.PUT("/:id/access-expiry", middleware.RequireCurrentRole(models.RoleAdmin), userHandler.ResetAccessExpiry)
	}

	classes := secured.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.GET("/:id", classHandler.Get)
		classes.POST("", middleware.RequireCurrentRole(models.RoleAdmin), classHandler.Create)
		classes.PUT("/:id", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), classHandler.Update)
		classes.DELETE("/:id", middleware.RequireCurrentRole(models.RoleAdmin), classHandler.Delete)

		classes.GET("/:id/teachers", classHandler.ListTeachers)
		classes.POST("/:id/teachers", middleware.RequireCurrentRole(models.RoleAdmin), classHandler.AssignTeacher)
		classes.DELETE("/:id/teachers/:teacherId", middleware.RequireCurrentRole(models.RoleAdmin), classHandler.RemoveTeacher)

		classes.GET("/:id/members", classHandler.ListMembers)
		classes.POST("/:id/members", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), classHandler.AddMember)
		classes.DELETE("/:id/members/:studentId", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), classHandler.RemoveMember)
		classes.GET("/:id/roster/export", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), classHandler.ExportRoster)

		classes.GET("/:id/sessions", sessionHandler.ListByClass)
		classes.POST("/:id/sessions", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), sessionHandler.Create)

		classes.GET("/:id/materials", materialHandler.ListByClass)
		classes.POST("/:id/materials", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), materialHandler.Upload)
	}

	sessions := secured.Group("/sessions")
	{
		sessions.PUT("/:id", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), sessionHandler.Update)
		sessions.DELETE("/:id", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), sessionHandler.Delete)
	}

	materials := secured.Group("/materials")
	{
		materials.DELETE("/:id", middleware.RequireCurrentRole(models.RoleTeacher, models.RoleAdmin), materialHandler.Delete)
	}

	programs := secured.Group("/programs")
	{
		programs.GET("", programHandler.List)
		programs.GET("/:id", programHandler.Get)
		programs.POST("", middleware.RequireCurrentRole(models.RoleAdmin), programHandler.Create)
		programs.PUT("/:id", middleware.RequireCurrentRole(models.RoleAdmin), programHandler.Update)
		programs.DELETE("/:id", middleware.RequireCurrentRole(models.RoleAdmin), programHandler.Delete)
	}

	secured.GET("/audit-logs", middleware.RequireCurrentRole(models.RoleAdmin), auditHandler.List)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)

	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		logr.Sugar().Infow("shutting down")
		_ = srv.Shutdown(context.Background())
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
