package main

import (
	"context"
	"log"
	"strings"
	"time"

	"plan-delivery-service/config"
	"plan-delivery-service/controllers"
	"plan-delivery-service/database"
	"plan-delivery-service/kafka"
	"plan-delivery-service/lock"
	"plan-delivery-service/repository"
	"plan-delivery-service/routes"
	"plan-delivery-service/sender"
	"plan-delivery-service/services"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[PlanDelivery] No .env file found, using system environment")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("[PlanDelivery] Failed to load config:", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("[PlanDelivery] Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if err := database.Connect(cfg, logger); err != nil {
		log.Fatal("[PlanDelivery] Failed to connect to DB:", err)
	}
	defer database.Close()

	redisClient, err := database.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatal("[PlanDelivery] Failed to connect to Redis:", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal("[PlanDelivery] Failed to load AWS config:", err)
	}

	emailSender, err := sender.NewSMTPSender()
	if err != nil {
		log.Fatal("[PlanDelivery] Failed to configure SMTP sender:", err)
	}

	paymentRepo := repository.NewGormPaymentRepo(database.DB)
	resolutionRepo := repository.NewGormResolutionRepo(database.DB)

	// Processed markers outlive the SLA window by a wide margin so webhook
	// replays stay on the fast path.
	lockStore := lock.NewRedisStore(redisClient, 30*24*time.Hour)
	stateMachine := services.NewPaymentStateMachine(lockStore, paymentRepo, cfg.LockTTL, logger)

	generator := services.NewHTTPPlanGenerator(cfg.GeneratorURL, cfg.GeneratorAPIKey, logger)
	renderer := services.NewHTTPPlanRenderer(cfg.RendererURL, logger)
	storage := services.NewS3PlanStorage(awsCfg, cfg.PlanBucket, cfg.PlanKeyPrefix)

	eventProducer := kafka.NewDeliveryEventProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic, logger)
	defer eventProducer.Close()

	resolutionSvc := services.NewResolutionService(resolutionRepo, cfg.SLAWindow, logger)

	pipeline := services.NewPipeline(
		stateMachine,
		paymentRepo,
		generator,
		renderer,
		storage,
		emailSender,
		resolutionSvc,
		eventProducer,
		logger,
	)
	pipeline.StageTimeout = cfg.StageTimeout
	pipeline.DownloadTTL = cfg.DownloadURLTTL

	monitor := services.NewSLAMonitor(
		resolutionRepo,
		resolutionSvc,
		services.NewSNSAlertPublisher(awsCfg),
		cfg.AlertTopicARN,
		cfg.SweepInterval,
		logger,
	)
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	go monitor.Start(monitorCtx)

	stripeSvc := services.NewStripeService(cfg.StripeSecretKey)

	r := gin.New()
	r.Use(gin.Recovery())

	wc := &controllers.WebhookController{
		Verifier:   services.NewWebhookVerifier(cfg.WebhookSecret, cfg.WebhookTolerance),
		State:      stateMachine,
		Pipeline:   pipeline,
		Repo:       paymentRepo,
		Logger:     logger,
		RunTimeout: cfg.LockTTL,
	}
	cc := &controllers.CheckoutController{
		Stripe:     stripeSvc,
		Logger:     logger,
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
	}
	rc := &controllers.ResolutionController{
		Service: resolutionSvc,
		Logger:  logger,
	}
	routes.Register(r, wc, cc, rc, cfg.AdminAPIKey)

	logger.Info("Plan delivery service running", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("[PlanDelivery] Server failed:", err)
	}
}
