package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/driving-school-api/api/swagger"
	schema "github.com/noah-isme/driving-school-api/db"
	"github.com/noah-isme/driving-school-api/internal/handler"
	"github.com/noah-isme/driving-school-api/internal/middleware"
	"github.com/noah-isme/driving-school-api/internal/models"
	"github.com/noah-isme/driving-school-api/internal/realtime"
	"github.com/noah-isme/driving-school-api/internal/repository"
	"github.com/noah-isme/driving-school-api/internal/service"
	"github.com/noah-isme/driving-school-api/pkg/cache"
	"github.com/noah-isme/driving-school-api/pkg/config"
	"github.com/noah-isme/driving-school-api/pkg/database"
	"github.com/noah-isme/driving-school-api/pkg/export"
	"github.com/noah-isme/driving-school-api/pkg/logger"
	"github.com/noah-isme/driving-school-api/pkg/mailer"
	corsmiddleware "github.com/noah-isme/driving-school-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/driving-school-api/pkg/middleware/requestid"
)

// @title Driving School Scheduling API
// @version 1.0.0
// @description Instructor availability, lesson booking, scheduled notifications and realtime delivery.
// @BasePath /api/v1
// @schemes http https
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		_, err := database.ApplyMigrations(ctx, db, schema.Migrations(), logr.Named("migrations"))
		cancel()
		if err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}

	metrics := service.NewMetricsService()
	validate := service.NewValidator()
	loc := cfg.Scheduling.Location()

	var cacheRepo service.CacheRepository
	var cacheProbe *repository.CacheRepository
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("slot cache disabled", zap.Error(err))
		} else {
			redisRepo := repository.NewCacheRepository(client, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
			cacheProbe = redisRepo
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Scheduling.SlotCacheTTL, logr, cacheRepo != nil)

	users := repository.NewUserRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	jobRepo := repository.NewNotificationJobRepository(db)
	inboxRepo := repository.NewNotificationRepository(db)

	hub := realtime.NewHub(metrics, logr.Named("realtime"))
	defer hub.Close()

	notifications := service.NewNotificationService(jobRepo, inboxRepo, users, bookingRepo, assignmentRepo, hub, newSender(cfg.Email, logr), metrics, service.NotificationConfig{
		SweepInterval:        cfg.Notifications.SweepInterval,
		SweepBatchSize:       cfg.Notifications.SweepBatchSize,
		Workers:              cfg.Notifications.Workers,
		MaxDeliveryAttempts:  cfg.Notifications.MaxDeliveryAttempts,
		EscalationPriorities: priorities(cfg.Notifications.EscalationPriorities),
		ReminderOffsets:      cfg.Notifications.ReminderOffsets,
		EmailWorkers:         cfg.Notifications.EmailWorkers,
		EmailMaxRetries:      cfg.Notifications.EmailMaxRetries,
		RetryDelay:           cfg.Notifications.RetryDelay,
		InboxPageSize:        cfg.Notifications.InboxPageSize,
		Location:             loc,
		AppName:              cfg.Email.AppName,
		FrontendBaseURL:      cfg.Email.FrontendBaseURL,
	}, validate, logr.Named("notifications"))

	identity := service.NewIdentityService(users, service.IdentityConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	availability := service.NewAvailabilityService(availabilityRepo, users, cacheSvc, notifications, loc, validate, logr.Named("availability"))
	slots := service.NewSlotService(availabilityRepo, bookingRepo, users, cacheSvc, metrics, service.SlotConfig{
		Location:        loc,
		DefaultDuration: cfg.Scheduling.DefaultLessonLength,
		MaxDuration:     cfg.Scheduling.MaxLessonLength,
	}, logr.Named("slots"))
	bookings := service.NewBookingService(bookingRepo, users, cacheSvc, notifications, hub, metrics, service.BookingConfig{
		DefaultDuration: cfg.Scheduling.DefaultLessonLength,
		MaxDuration:     cfg.Scheduling.MaxLessonLength,
	}, validate, logr.Named("bookings"))
	calendar := service.NewCalendarService(availabilityRepo, bookingRepo, users, loc, logr.Named("calendar"), export.NewCSVExporter(), export.NewPDFExporter())
	access := service.NewRoomAccessService(assignmentRepo, bookingRepo)

	ws := realtime.NewHandler(hub, identity, access, bookings, notifications, corsmiddleware.Allowed(cfg.CORS.AllowedOrigins), realtime.Config{
		HandshakeTimeout: cfg.Realtime.HandshakeTimeout,
		WriteTimeout:     cfg.Realtime.WriteTimeout,
		PongWait:         cfg.Realtime.PongWait,
		PingInterval:     cfg.Realtime.PingInterval,
		SendBuffer:       cfg.Realtime.SendBuffer,
		MaxMessageBytes:  cfg.Realtime.MaxMessageBytes,
	}, logr.Named("realtime"))

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, db, hub)
	if cacheProbe != nil {
		metricsHandler.WithCache(cacheProbe)
	}

	handler.Routes{
		Availability: handler.NewAvailabilityHandler(availability, slots),
		Calendar:     handler.NewCalendarHandler(calendar),
		Bookings:     handler.NewBookingHandler(bookings),
		Notification: handler.NewNotificationHandler(notifications),
		Metrics:      metricsHandler,
		Realtime:     ws.Serve,
	}.Register(r, cfg.APIPrefix, middleware.JWT(identity))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifications.Start(ctx)
	defer notifications.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logr.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newSender(cfg config.EmailConfig, logr *zap.Logger) mailer.Sender {
	if cfg.Provider == "sendgrid" && cfg.SendgridAPIKey != "" {
		return mailer.NewSendGridSender(cfg.SendgridAPIKey, "", cfg.AppName, cfg.FromName, cfg.FromAddress)
	}
	if cfg.Provider == "sendgrid" {
		logr.Warn("SENDGRID_API_KEY missing, falling back to console email")
	}
	return mailer.NewConsoleSender(logr.Named("email"))
}

func priorities(raw []string) []models.NotificationPriority {
	out := make([]models.NotificationPriority, 0, len(raw))
	for _, p := range raw {
		priority := models.NotificationPriority(p)
		if priority.Valid() {
			out = append(out, priority)
		}
	}
	return out
}
