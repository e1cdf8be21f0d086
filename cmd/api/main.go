package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/arena-go-api/internal/config"
	"github.com/noah-isme/arena-go-api/internal/database"
	"github.com/noah-isme/arena-go-api/internal/handler"
	"github.com/noah-isme/arena-go-api/internal/middleware"
	"github.com/noah-isme/arena-go-api/internal/models"
	"github.com/noah-isme/arena-go-api/internal/repository"
	"github.com/noah-isme/arena-go-api/internal/router"
	"github.com/noah-isme/arena-go-api/internal/service"
	"github.com/noah-isme/arena-go-api/pkg/ai"
	"github.com/noah-isme/arena-go-api/pkg/blobstore"
	"github.com/noah-isme/arena-go-api/pkg/github"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Submission{}, &models.Evaluation{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis not configured, submission status polling falls back to the database")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats not configured, evaluated events will not be published")
	}

	store, err := blobstore.New(blobstore.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create blob store client: %v", err)
	}

	if err := store.EnsureBucket(context.Background()); err != nil {
		log.Fatalf("failed to prepare blob store bucket: %v", err)
	}

	browser := github.New(github.Config{
		Token:   cfg.GitHubToken,
		BaseURL: cfg.GitHubBaseURL,
		Logger:  logger,
	})

	var grader ai.Grader
	if cfg.OpenAIAPIKey != "" {
		grader, err = ai.NewOpenAIGrader(ai.OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			Model:          cfg.OpenAIModel,
			MaxTokens:      cfg.GradeMaxTokens,
			RequestTimeout: cfg.GradeTimeout,
			Logger:         logger,
		})
		if err != nil {
			log.Fatalf("failed to create grader: %v", err)
		}
	} else {
		logger.Warn().Msg("openai not configured, grading requests will fail until a key is provided")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	submissionRepo := repository.NewSubmissionRepository(db)

	harvestService := service.NewHarvestService(browser, store, service.HarvestConfig{
		MaxFileBytes:        cfg.HarvestMaxFileBytes,
		MaxTotalBytes:       cfg.HarvestMaxTotalBytes,
		DownloadConcurrency: cfg.HarvestConcurrency,
	}, logger)
	gradeService := service.NewGradeService(store, grader, logger)
	submissionService := service.NewSubmissionService(submissionRepo, harvestService, gradeService, redisClient, natsConn, validate, logger, service.SubmissionConfig{
		StatusTTL: cfg.StatusTTL,
		Provider:  "openai",
		Model:     cfg.OpenAIModel,
	})

	harvestHandler := handler.NewHarvestHandler(harvestService, validate, logger)
	gradeHandler := handler.NewGradeHandler(gradeService, validate, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, validate, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		HarvestHandler:    harvestHandler,
		GradeHandler:      gradeHandler,
		SubmissionHandler: submissionHandler,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
