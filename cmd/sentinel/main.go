package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/timeout"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twilio/twilio-go"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/craftlink/sentinel/internal/abuse"
	"github.com/craftlink/sentinel/internal/actions"
	"github.com/craftlink/sentinel/internal/alerts"
	"github.com/craftlink/sentinel/internal/authz"
	"github.com/craftlink/sentinel/internal/farming"
	"github.com/craftlink/sentinel/internal/scheduler"
	"github.com/craftlink/sentinel/internal/signals"
	"github.com/craftlink/sentinel/internal/trust"
	"github.com/craftlink/sentinel/pkg/common"
	"github.com/craftlink/sentinel/pkg/config"
	"github.com/craftlink/sentinel/pkg/database"
	"github.com/craftlink/sentinel/pkg/eventbus"
	"github.com/craftlink/sentinel/pkg/health"
	"github.com/craftlink/sentinel/pkg/httpclient"
	"github.com/craftlink/sentinel/pkg/logger"
	"github.com/craftlink/sentinel/pkg/middleware"
	"github.com/craftlink/sentinel/pkg/ratelimit"
	"github.com/craftlink/sentinel/pkg/redis"
	"github.com/craftlink/sentinel/pkg/resilience"
	"github.com/craftlink/sentinel/pkg/secrets"
	"github.com/craftlink/sentinel/pkg/tracing"
	ws "github.com/craftlink/sentinel/pkg/websocket"
)

const (
	serviceVersion   = "1.0.0"
	alertDedupWindow = 10 * time.Minute
)

func main() {
	cfg, err := config.Load("sentinel")
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Server.Environment,
		}); err != nil {
			log.Fatal("failed to init sentry", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	if cfg.Tracing.Enabled {
		shutdown, err := tracing.Init(ctx, tracing.Config{
			Enabled:     true,
			Endpoint:    cfg.Tracing.Endpoint,
			ServiceName: cfg.Server.ServiceName,
			SampleRatio: 1,
		})
		if err != nil {
			log.Fatal("failed to init tracing", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	resolveSecrets(ctx, cfg, log)

	if err := database.Migrate(&cfg.Database); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	pool, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer database.Close(pool)

	redisClient, err := redis.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	bus, err := eventbus.Connect(&cfg.NATS)
	if err != nil {
		log.Fatal("failed to connect to nats", zap.Error(err))
	}
	defer bus.Close()

	hub := ws.NewHub()
	go hub.Run()

	// Persistence layer.
	clusterRepo := signals.NewRepository(pool)
	platform := signals.NewPlatformReader(pool)
	caseRepo := farming.NewRepository(pool)
	scoreRepo := trust.NewRepository(pool)
	trustReader := trust.NewPlatformReader(pool)
	abuseRepo := abuse.NewRepository(pool)
	alertRepo := alerts.NewRepository(pool)
	flagRepo := actions.NewRepository(pool)
	authorizer := authz.NewService(authz.NewRepository(pool))

	// Alert fanout and enforcement.
	alertRouter := alerts.NewRouter(
		buildNotifiers(ctx, cfg, alertRepo, hub, log),
		alerts.NewRedisDedupStore(redisClient),
		alertDedupWindow,
		log.Named("alerts"),
	)
	executor := actions.NewExecutor(flagRepo, alertRouter, log.Named("actions"))

	// Detection pipeline.
	farmingSvc := farming.NewService(caseRepo, clusterRepo, bus, &cfg.Detection, log.Named("farming"))
	merger := signals.NewMerger(cfg.Detection.MergeStrategy)
	scanSvc := signals.NewService(
		signals.DefaultCollectors(platform, platform, platform, platform, &cfg.Detection),
		merger, farmingSvc, clusterRepo, log.Named("signals"),
	)
	referralSvc := signals.NewService(
		[]signals.Collector{signals.NewReferralCollector(platform)},
		merger, farmingSvc, clusterRepo, log.Named("referrals"),
	)
	trustSvc := trust.NewService(trustReader, trustReader, trustReader, trustReader, trustReader, scoreRepo, log.Named("trust"))
	detector := abuse.NewDetector(abuseRepo, abuseRepo, executor, bus, &cfg.Detection, log.Named("abuse"))

	if err := abuse.NewEventHandler(detector, log.Named("abuse")).RegisterSubscriptions(ctx, bus); err != nil {
		log.Fatal("failed to subscribe abuse handlers", zap.Error(err))
	}
	if err := trust.NewEventHandler(trustSvc, log.Named("trust")).RegisterSubscriptions(ctx, bus); err != nil {
		log.Fatal("failed to subscribe trust handlers", zap.Error(err))
	}

	worker := scheduler.NewWorker(platform, redisClient, scanSvc, referralSvc, detector, trustSvc, &cfg.Detection, log.Named("scheduler"))
	worker.Start(ctx)

	router := buildRouter(cfg, pool, redisClient, bus,
		farming.NewHandler(farmingSvc, scanSvc, authorizer),
		trust.NewHandler(trustSvc, authorizer),
		alerts.NewHandler(alertRepo, authorizer),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Info("sentinel listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", zap.Error(err))
	}
	worker.Stop()
	log.Info("shutdown complete")
}

func buildRouter(
	cfg *config.Config,
	pool *pgxpool.Pool,
	redisClient *redis.Client,
	bus *eventbus.Bus,
	handlers ...interface{ RegisterRoutes(*gin.RouterGroup) },
) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.Metrics(cfg.Server.ServiceName))
	if cfg.Sentry.Enabled {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.CORSOrigins, ",")
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Correlation-ID"}
	router.Use(cors.New(corsConfig))

	checks := map[string]func() error{
		"postgres": health.PoolChecker(pool),
		"redis":    health.RedisChecker(redisClient.Client),
		"nats":     health.NATSChecker(bus.Conn()),
	}
	if cfg.Notify.NotificationsURL != "" {
		checks["notifications"] = health.HTTPEndpointChecker(cfg.Notify.NotificationsURL + "/health")
	}
	router.GET("/healthz", common.HealthCheckWithDeps(cfg.Server.ServiceName, serviceVersion, checks))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	api.Use(timeout.New(
		timeout.WithTimeout(10*time.Second),
		timeout.WithHandler(func(c *gin.Context) { c.Next() }),
		timeout.WithResponse(func(c *gin.Context) {
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "request timed out"})
		}),
	))
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(ratelimit.NewLimiter(redisClient.Client, cfg.RateLimit)))
	}

	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return router
}

// buildNotifiers assembles one notifier per configured channel. A
// channel whose provider is not configured is simply absent; the
// router skips channels it has no notifier for.
func buildNotifiers(ctx context.Context, cfg *config.Config, alertRepo alerts.AlertRepository, hub *ws.Hub, log *zap.Logger) []alerts.Notifier {
	notifiers := []alerts.Notifier{alerts.NewDashboardNotifier(alertRepo, hub)}

	if cfg.Notify.ChatEnabled && cfg.Notify.TwilioAccountSID != "" {
		twilioClient := twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.Notify.TwilioAccountSID,
			Password: cfg.Notify.TwilioAuthToken,
		})
		notifiers = append(notifiers, alerts.NewChatNotifier(
			twilioClient.Api, cfg.Notify.TwilioFrom, cfg.Notify.OpsNumbers(), log.Named("chat")))
	}

	if cfg.Notify.NotificationsURL != "" {
		breaker := resilience.NewCircuitBreaker(resilience.Settings{
			Name:             "notifications-email",
			Timeout:          30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
		}, nil)
		notifiers = append(notifiers, alerts.NewEmailNotifier(
			httpclient.NewClient(cfg.Notify.NotificationsURL), breaker))
	}

	if cfg.Notify.PushEnabled && cfg.Notify.FirebaseProject != "" {
		app, err := firebase.NewApp(ctx,
			&firebase.Config{ProjectID: cfg.Notify.FirebaseProject},
			option.WithCredentialsFile(cfg.Notify.FirebaseCredFile))
		if err != nil {
			log.Error("failed to init firebase, push channel disabled", zap.Error(err))
			return notifiers
		}
		messagingClient, err := app.Messaging(ctx)
		if err != nil {
			log.Error("failed to init fcm, push channel disabled", zap.Error(err))
			return notifiers
		}
		notifiers = append(notifiers, alerts.NewPushNotifier(messagingClient, "ops-alerts"))
	}

	return notifiers
}

// resolveSecrets overlays sensitive config values from the configured
// secret backend. With no backend the env-provided values stand.
func resolveSecrets(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	if cfg.Secrets.Provider == "" {
		return
	}

	manager, err := secrets.NewManager(secrets.Config{
		Provider: secrets.ProviderType(cfg.Secrets.Provider),
		CacheTTL: 5 * time.Minute,
		Vault: secrets.VaultConfig{
			Address: cfg.Secrets.VaultAddr,
			Token:   cfg.Secrets.VaultToken,
			Mount:   cfg.Secrets.VaultMount,
		},
		AWS: secrets.AWSConfig{
			Region: cfg.Secrets.AWSRegion,
		},
		GCP: secrets.GCPConfig{
			ProjectID: cfg.Secrets.GCPProject,
		},
		Kubernetes: secrets.KubernetesConfig{
			BasePath: cfg.Secrets.KubernetesPath,
		},
	})
	if err != nil {
		log.Fatal("failed to init secrets manager", zap.Error(err))
	}
	defer manager.Close()

	overlay := func(target *string, ref secrets.Reference) {
		value, err := manager.GetString(ctx, ref)
		if err != nil {
			log.Warn("secret not resolved, keeping env value",
				zap.String("secret", ref.Name), zap.Error(err))
			return
		}
		*target = value
	}

	overlay(&cfg.Database.Password, secrets.Reference{
		Name: "database-password",
		Path: "sentinel/database",
		Key:  "password",
		Type: secrets.SecretDatabase,
	})
	overlay(&cfg.JWT.Secret, secrets.Reference{
		Name: "jwt-secret",
		Path: "sentinel/jwt",
		Key:  "secret",
		Type: secrets.SecretJWTKeys,
	})
	overlay(&cfg.Notify.TwilioAuthToken, secrets.Reference{
		Name: "twilio-auth-token",
		Path: "sentinel/twilio",
		Key:  "auth_token",
		Type: secrets.SecretTwilio,
	})
}
