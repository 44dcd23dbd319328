package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-push-dispatch-service/internal/backend/bouncer"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/backend/direct"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/counters"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/platform/apns"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/renderer"
	fsStore "github.com/tinywideclouds/go-push-dispatch-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-push-dispatch-service/internal/useractivity"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"

	"github.com/tinywideclouds/go-push-dispatch-service/pushdispatchservice"
	"github.com/tinywideclouds/go-push-dispatch-service/pushdispatchservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-push-dispatch-service")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	// --- Stores ---
	registry := fsStore.NewDeviceRegistry(fsClient)
	stateStore := fsStore.NewStateStore(fsClient)
	readAdapter := fsStore.NewReadAdapter(fsClient)
	logger.Info("Stores initialized", "type", "firestore")

	// --- Counters ---
	var counterSink dispatch.CounterSink = counters.NewLogSink(logger)
	if cfg.Redis.Enabled {
		logger.Info("Initializing Redis counter sink...", "addr", cfg.Redis.Addr)
		redisSink, err := counters.NewRedisSink(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Error("Failed to connect to Redis", "err", err)
			os.Exit(1)
		}
		defer redisSink.Close()
		counterSink = redisSink
	}

	// --- Auth ---
	identityURL := os.Getenv("IDENTITY_SERVICE_URL")
	if identityURL == "" {
		identityURL = "http://localhost:3000"
	}
	jwksURL, _ := middleware.DiscoverAndValidateJWTConfig(identityURL, middleware.RSA256, logger)
	authMiddleware, _ := middleware.NewJWKSAuthMiddleware(jwksURL, logger)

	// --- Delivery Backend ---
	// Selected exactly once; everything downstream is backend-agnostic.
	var backend dispatch.DeliveryBackend
	if cfg.Bouncer.Enabled {
		logger.Info("Delivery backend: bouncer relay", "url", cfg.Bouncer.URL)
		backend = bouncer.New(cfg.Bouncer.URL, &http.Client{}, logger)
	} else {
		logger.Info("Delivery backend: direct platform APIs")

		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			logger.Error("Failed to initialize Firebase App", "err", err)
			os.Exit(1)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			logger.Error("Failed to create FCM messaging client", "err", err)
			os.Exit(1)
		}
		androidSender := fcm.NewDispatcher(fcmMessaging, logger)

		appleSender, err := apns.NewDispatcher(apns.Config{
			KeyID:           cfg.APNS.KeyID,
			TeamID:          cfg.APNS.TeamID,
			BundleID:        cfg.APNS.BundleID,
			P8KeyContent:    cfg.APNS.P8KeyContent,
			PushesPerSecond: cfg.APNS.PushesPerSecond,
		}, logger)
		if err != nil {
			logger.Error("Failed to create APNs dispatcher", "err", err)
			os.Exit(1)
		}

		backend = direct.New(appleSender, androidSender, logger)
	}

	// --- Edge Collaborators ---
	reactivator := useractivity.NewClient(cfg.UserActivityURL, &http.Client{}, logger)

	digestTopic := convertPubsub(cfg.ProjectID, cfg.DigestTopicID, "topics")
	digestRenderer := renderer.NewPubSubRenderer(psClient.Publisher(digestTopic), logger)

	// --- Consumer & Service ---
	consumer, err := newIngestionConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer creation failed", "err", err)
		os.Exit(1)
	}

	service, err := pushdispatchservice.New(
		cfg,
		consumer,
		backend,
		registry,
		stateStore,
		readAdapter,
		readAdapter,
		reactivator,
		counterSink,
		digestRenderer,
		authMiddleware,
		logger,
	)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

func newIngestionConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
