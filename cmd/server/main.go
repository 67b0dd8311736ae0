package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/alerting"
	"github.com/stanstork/beacon/internal/config"
	"github.com/stanstork/beacon/internal/directory"
	"github.com/stanstork/beacon/internal/handlers"
	"github.com/stanstork/beacon/internal/ingest"
	"github.com/stanstork/beacon/internal/middleware"
	"github.com/stanstork/beacon/internal/migration"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/notification"
	"github.com/stanstork/beacon/internal/repository"
	"github.com/stanstork/beacon/internal/routes"
	"github.com/stanstork/beacon/internal/temporal"
	beaconworker "github.com/stanstork/beacon/internal/worker"

	_ "github.com/lib/pq" // PostgreSQL driver
	tc "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

type stores struct {
	rules         repository.RuleRepository
	preferences   repository.PreferenceRepository
	notifications repository.NotificationRepository
	recipients    repository.RecipientRepository
}

type application struct {
	config         *config.Config
	db             *sql.DB
	stores         stores
	redis          *redis.Client
	temporalClient tc.Client
	temporalWorker worker.Worker
	pushSender     *notification.PushSender
	broadcaster    *notification.Broadcaster
	stream         *handlers.StreamHandler
	logger         zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	app := &application{
		config:      cfg,
		broadcaster: notification.NewBroadcaster(32, logger),
		logger:      logger,
	}
	defer app.close()

	if err := app.openStores(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	app.seedDirectory()

	registry, err := app.buildRegistry()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure channel senders")
	}
	deliverer, err := app.buildDeliverer(registry)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure delivery executor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service := notification.NewService(app.stores.notifications, logger, app.streamPublisher(ctx))
	resolver, err := alerting.NewResolver(cfg.QuietHours.DefaultTimezone, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to configure preference resolver")
	}
	pipeline := alerting.NewPipeline(alerting.PipelineConfig{
		Evaluator:   alerting.NewEvaluator(app.stores.rules, logger),
		Directory:   directory.New(app.stores.recipients),
		Preferences: app.stores.preferences,
		Resolver:    resolver,
		Store:       service,
		Dispatcher:  notification.NewDispatcher(deliverer, logger),
	}, logger)

	sources := app.startSources(ctx, pipeline)

	router := app.initRouter(pipeline, service)
	loggedRouter := middleware.LoggingMiddleware(logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins(cfg.CORSOrigins),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	app.startServer(corsHandler, cancel, sources)

	logger.Info().Msg("Application terminated.")
}

func (app *application) openStores() error {
	if app.config.Storage == config.StorageMemory {
		app.logger.Warn().Msg("Using in-memory storage; data is lost on restart")
		app.stores = stores{
			rules:         repository.NewMemoryRuleRepository(nil),
			preferences:   repository.NewMemoryPreferenceRepository(nil),
			notifications: repository.NewMemoryNotificationRepository(nil),
			recipients:    repository.NewMemoryRecipientRepository(),
		}
		return nil
	}

	db, err := sql.Open("postgres", app.config.DatabaseURL)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return err
	}
	if err := migration.RunMigrations(db, app.logger); err != nil {
		db.Close()
		return err
	}
	app.db = db
	app.stores = stores{
		rules:         repository.NewRuleRepository(db),
		preferences:   repository.NewPreferenceRepository(db),
		notifications: repository.NewNotificationRepository(db),
		recipients:    repository.NewRecipientRepository(db),
	}
	return nil
}

func (app *application) seedDirectory() {
	for _, rec := range app.config.Directory.Recipients {
		recipient := models.Recipient{
			UserID:       strings.TrimSpace(rec.UserID),
			Name:         rec.Name,
			Email:        rec.Email,
			Phone:        rec.Phone,
			SlackWebhook: rec.SlackWebhook,
			PushTopic:    rec.PushTopic,
			Roles:        rec.Roles,
		}
		if _, err := app.stores.recipients.Upsert(context.Background(), recipient); err != nil {
			app.logger.Error().Err(err).Str("user_id", recipient.UserID).Msg("Failed to seed recipient")
		}
	}
	if n := len(app.config.Directory.Recipients); n > 0 {
		app.logger.Info().Int("recipients", n).Msg("Recipient directory seeded")
	}
}

// buildRegistry wires one sender per configured external channel. Channels
// left unconfigured fail deliveries permanently.
func (app *application) buildRegistry() (*notification.Registry, error) {
	cfg := app.config
	httpClient := &http.Client{Timeout: cfg.Delivery.SendTimeout}
	var senders []notification.ChannelSender

	if len(cfg.Email.Providers) > 0 {
		providers := make([]notification.EmailProvider, 0, len(cfg.Email.Providers))
		for _, name := range cfg.Email.Providers {
			provider, err := app.emailProvider(name)
			if err != nil {
				return nil, err
			}
			providers = append(providers, provider)
		}
		email, err := notification.NewEmailSender(cfg.Email.From, app.logger, providers...)
		if err != nil {
			return nil, err
		}
		senders = append(senders, email)
	}
	if cfg.SMS.GatewayURL != "" {
		sms, err := notification.NewSMSSender(cfg.SMS, httpClient)
		if err != nil {
			return nil, err
		}
		senders = append(senders, sms)
	}
	if cfg.Slack.Enabled {
		senders = append(senders, notification.NewSlackSender(httpClient))
	}
	if cfg.Push.BrokerURL != "" {
		push, err := notification.NewPushSender(cfg.Push)
		if err != nil {
			return nil, err
		}
		app.pushSender = push
		senders = append(senders, push)
	}

	registry := notification.NewRegistry(senders...)
	app.logger.Info().Interface("channels", registry.Channels()).Msg("Channel senders configured")
	return registry, nil
}

func (app *application) emailProvider(name string) (notification.EmailProvider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "smtp":
		return notification.NewSMTPMailer(app.config.Email)
	case "resend":
		return notification.NewResendMailer(app.config.Email.Resend)
	case "ses":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return notification.NewSESMailer(ctx, app.config.Email.SES)
	default:
		return nil, errors.New("unknown email provider " + name)
	}
}

func (app *application) buildDeliverer(registry *notification.Registry) (notification.Deliverer, error) {
	policy := notification.RetryPolicyFromConfig(app.config.Delivery)
	if app.config.Delivery.Executor != config.ExecutorTemporal {
		return notification.NewRetryingDeliverer(registry, policy, app.logger), nil
	}

	temporalClient, err := tc.Dial(tc.Options{
		HostPort:  app.config.Temporal.HostPort,
		Namespace: app.config.Temporal.Namespace,
		Logger:    temporal.NewLogAdapter(app.logger),
	})
	if err != nil {
		return nil, err
	}
	app.temporalClient = temporalClient

	w := beaconworker.New(temporalClient, app.config.Temporal.TaskQueue, registry, app.logger)
	if err := w.Start(); err != nil {
		return nil, err
	}
	app.temporalWorker = w
	app.logger.Info().Str("task_queue", app.config.Temporal.TaskQueue).Msg("Temporal worker started")

	return temporal.NewWorkflowDeliverer(temporalClient, app.config.Temporal.TaskQueue, policy, app.logger), nil
}

// streamPublisher returns where new notifications are announced. With Redis
// configured every instance relays the shared stream into its own broadcaster.
func (app *application) streamPublisher(ctx context.Context) notification.Publisher {
	if app.config.Redis.Addr == "" {
		return app.broadcaster
	}
	app.redis = redis.NewClient(&redis.Options{
		Addr:     app.config.Redis.Addr,
		Password: app.config.Redis.Password,
		DB:       app.config.Redis.DB,
	})
	stream := notification.NewRedisStream(app.redis, app.config.Redis.ChannelPrefix, app.logger)
	go func() {
		if err := stream.Relay(ctx, app.broadcaster); err != nil {
			app.logger.Error().Err(err).Msg("Notification stream relay stopped")
		}
	}()
	return stream
}

func (app *application) startSources(ctx context.Context, pipeline *alerting.Pipeline) *sync.WaitGroup {
	var list []ingest.Source
	if len(app.config.Kafka.Brokers) > 0 && app.config.Kafka.Topic != "" {
		src, err := ingest.NewKafkaSource(app.config.Kafka, app.logger)
		if err != nil {
			app.logger.Fatal().Err(err).Msg("Failed to configure Kafka source")
		}
		list = append(list, src)
	}
	if app.config.Simulator.Enabled {
		list = append(list, ingest.NewSimulator(app.config.Simulator.Interval, app.config.Simulator.Seed, app.logger))
	}

	handle := func(ctx context.Context, evt models.Event) error {
		_, err := pipeline.Process(ctx, evt)
		return err
	}
	var wg sync.WaitGroup
	for _, src := range list {
		wg.Add(1)
		go func(src ingest.Source) {
			defer wg.Done()
			app.logger.Info().Str("source", src.Name()).Msg("Starting event source")
			if err := src.Run(ctx, handle); err != nil {
				app.logger.Error().Err(err).Str("source", src.Name()).Msg("Event source stopped")
			}
		}(src)
	}
	return &wg
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(pipeline *alerting.Pipeline, service notification.Service) http.Handler {
	logger := app.logger
	var readiness http.HandlerFunc
	if app.db != nil {
		readiness = handlers.Readiness(map[string]handlers.Pinger{"postgres": app.db})
	}

	app.stream = handlers.NewStreamHandler(app.broadcaster, logger)
	return routes.NewRouter(routes.Handlers{
		Auth:          handlers.NewAuthenticator(app.config.JWTSecret, logger),
		Rules:         handlers.NewRuleHandler(app.stores.rules, logger),
		Preferences:   handlers.NewPreferenceHandler(app.stores.preferences, logger),
		Notifications: handlers.NewNotificationHandler(service, logger),
		Stream:        app.stream,
		Events:        handlers.NewEventHandler(pipeline, logger),
		Readiness:     readiness,
	})
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, stopSources context.CancelFunc, sources *sync.WaitGroup) {
	logger := app.logger
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}
	if app.stream != nil {
		server.RegisterOnShutdown(app.stream.Close)
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Stop taking new events before the server goes away.
	stopSources()
	sources.Wait()
	logger.Info().Msg("Event sources stopped.")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}

func (app *application) close() {
	if app.temporalWorker != nil {
		app.logger.Info().Msg("Stopping Temporal worker...")
		app.temporalWorker.Stop()
	}
	if app.temporalClient != nil {
		app.temporalClient.Close()
	}
	if app.pushSender != nil {
		app.pushSender.Close()
	}
	if app.redis != nil {
		app.redis.Close()
	}
	if app.db != nil {
		app.db.Close()
	}
}
