package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	gormlib "gorm.io/gorm"

	"roomstay/internal/app/authz"
	"roomstay/internal/app/commands"
	bookingapp "roomstay/internal/app/handlers/booking"
	listingsapp "roomstay/internal/app/handlers/listings"
	meapp "roomstay/internal/app/handlers/me"
	paymentsapp "roomstay/internal/app/handlers/payments"
	"roomstay/internal/app/middleware"
	"roomstay/internal/app/notifications"
	appoutbox "roomstay/internal/app/outbox"
	"roomstay/internal/app/policies"
	"roomstay/internal/app/queries"
	"roomstay/internal/app/services/auth"
	"roomstay/internal/app/uow"
	"roomstay/internal/domain/shared/idgen"
	"roomstay/internal/infra/broker/kafka"
	"roomstay/internal/infra/config"
	"roomstay/internal/infra/db/gormdb"
	mongodb "roomstay/internal/infra/db/mongo"
	"roomstay/internal/infra/fixtures"
	"roomstay/internal/infra/gateway"
	ginserver "roomstay/internal/infra/http/gin"
	"roomstay/internal/infra/inbox"
	"roomstay/internal/infra/messaging"
	"roomstay/internal/infra/obs"
	infraoutbox "roomstay/internal/infra/outbox"
	"roomstay/internal/infra/redisstore"
	"roomstay/internal/infra/security"
	"roomstay/internal/infra/storage/memory"
	"roomstay/internal/infra/storage/s3"
)

const eventSource = "app://roomstay"

type application struct {
	handlers  ginserver.Handlers
	readiness obs.Readiness
	commands  commands.Bus

	worker   *infraoutbox.Worker
	consumer *kafka.Consumer
	topics   []string

	closers []func() error
	wg      sync.WaitGroup
}

// storage is the persistence backend chosen by STORAGE_DRIVER.
type storage struct {
	factory     uow.UoWFactory
	outbox      appoutbox.Outbox
	outboxStore infraoutbox.Store
	idempotency middleware.IdempotencyStore
	inbox       notifications.Inbox
	// memOutbox is set for the in-memory backend, which forwards on flush
	// instead of running a relay worker.
	memOutbox *memory.Outbox
	checks    map[string]obs.Check
	closers   []func() error
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}

	st, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, st.closers...)

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisstore.NewClient(ctx, redisstore.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err != nil {
			app.close(logger)
			return nil, err
		}
		app.closers = append(app.closers, rdb.Close)
		st.idempotency = redisstore.NewIdempotencyStore(rdb, "roomstay:idem", cfg.IdempotencyTTL)
		st.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	app.readiness = obs.Readiness{Checks: st.checks, Timeout: 2 * time.Second}

	var notifier policies.Notifier = messaging.LogNotifier{Logger: logger}
	if cfg.AMQPURL != "" {
		amqpNotifier := messaging.NewAMQPNotifier(cfg.AMQPURL, cfg.NotificationQueue, logger)
		app.closers = append(app.closers, amqpNotifier.Close)
		notifier = amqpNotifier
	}
	relay := &notifications.Relay{Notifier: notifier, Inbox: st.inbox, Logger: logger}

	var producer infraoutbox.Producer = messaging.LocalProducer{Relay: relay}
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := kafka.NewProducer(cfg.KafkaBrokers, "roomstay", nil)
		if err != nil {
			app.close(logger)
			return nil, err
		}
		app.closers = append(app.closers, kp.Close)
		producer = kp

		consumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, nil, kafka.RelayHandler{Relay: relay}, logger)
		if err != nil {
			app.close(logger)
			return nil, err
		}
		app.consumer = consumer
		app.closers = append(app.closers, consumer.Close)
		app.topics = []string{
			infraoutbox.TopicFor(cfg.KafkaTopicPrefix, "booking"),
			infraoutbox.TopicFor(cfg.KafkaTopicPrefix, "payment"),
		}
	}
	if st.memOutbox != nil {
		st.memOutbox.Sink = infraoutbox.Forward(producer, cfg.KafkaTopicPrefix, eventSource)
	} else {
		app.worker = &infraoutbox.Worker{
			Store:       st.outboxStore,
			Producer:    producer,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Source:      eventSource,
			Backoff:     cfg.RetryBackoff,
			Logger:      logger,
		}
	}

	var archive policies.PayloadArchive = s3.NoopArchive{}
	if cfg.S3Endpoint != "" {
		a, err := s3.NewArchive(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger)
		if err != nil {
			app.close(logger)
			return nil, err
		}
		archive = a
	}
	if cfg.GatewayServerKey == "" {
		logger.Warn("GATEWAY_SERVER_KEY is not set; notification signatures are not checked")
	}
	snap := &gateway.SnapClient{
		Client:    &http.Client{Timeout: cfg.GatewayTimeout},
		SnapURL:   cfg.GatewaySnapURL,
		APIURL:    cfg.GatewayAPIURL,
		ServerKey: cfg.GatewayServerKey,
		Logger:    logger,
	}

	encoder := appoutbox.JSONEventEncoder{}
	reconciler := &paymentsapp.Reconciler{
		UoWFactory: st.factory,
		Outbox:     st.outbox,
		Encoder:    encoder,
		Logger:     logger,
	}

	commandBus := commands.NewInMemoryBus()
	commands.RegisterHandler(commandBus, bookingapp.CreateBookingCommand{}.Key(), &bookingapp.CreateBookingHandler{
		Codes:   idgen.BookingCodes(logger),
		Outbox:  st.outbox,
		Encoder: encoder,
		Logger:  logger,
	})
	commands.RegisterHandler(commandBus, bookingapp.TransitionBookingCommand{}.Key(), &bookingapp.TransitionBookingHandler{
		Outbox:  st.outbox,
		Encoder: encoder,
		Logger:  logger,
	})
	commands.RegisterHandler(commandBus, bookingapp.PurgeBookingCommand{}.Key(), &bookingapp.PurgeBookingHandler{
		Outbox:  st.outbox,
		Encoder: encoder,
		Logger:  logger,
	})
	commands.RegisterHandler(commandBus, listingsapp.ImportListingsCommand{}.Key(), &listingsapp.ImportListingsHandler{
		Outbox:  st.outbox,
		Encoder: encoder,
		Logger:  logger,
	})
	commands.RegisterHandler(commandBus, paymentsapp.InitiatePaymentCommand{}.Key(), &paymentsapp.InitiatePaymentHandler{
		UoWFactory: st.factory,
		Gateway:    snap,
		OrderIDs:   idgen.OrderIDs(logger),
		Outbox:     st.outbox,
		Encoder:    encoder,
		Timeout:    cfg.GatewayTimeout,
		Logger:     logger,
	})
	commands.RegisterHandler(commandBus, paymentsapp.ApplyNotificationCommand{}.Key(), &paymentsapp.ApplyNotificationHandler{
		Verifier:   gateway.NotificationVerifier(cfg.GatewayServerKey),
		Archive:    archive,
		Reconciler: reconciler,
		Logger:     logger,
	})
	commands.RegisterHandler(commandBus, paymentsapp.PollPaymentCommand{}.Key(), &paymentsapp.PollPaymentHandler{
		UoWFactory: st.factory,
		Gateway:    snap,
		Archive:    archive,
		Reconciler: reconciler,
		Timeout:    cfg.GatewayTimeout,
		Logger:     logger,
	})

	queryBus := queries.NewInMemoryBus()
	queries.RegisterHandler(queryBus, bookingapp.GetBookingQuery{}.Key(), &bookingapp.GetBookingHandler{UoWFactory: st.factory})
	queries.RegisterHandler(queryBus, bookingapp.ListOwnerBookingsQuery{}.Key(), &bookingapp.ListOwnerBookingsHandler{UoWFactory: st.factory, Logger: logger})
	queries.RegisterHandler(queryBus, meapp.ListMyBookingsQuery{}.Key(), &meapp.ListMyBookingsHandler{UoWFactory: st.factory, Logger: logger})
	queries.RegisterHandler(queryBus, listingsapp.QuoteQuery{}.Key(), &listingsapp.QuoteHandler{UoWFactory: st.factory})

	validator := middleware.NewStructValidator()
	commandBusWithMiddleware := middleware.ChainCommands(
		commandBus,
		middleware.Validation(validator),
		middleware.Authorization(authz.Authorizer{}),
		middleware.Idempotency(st.idempotency, middleware.JSONResultCodec{}),
		middleware.OutboxFlush(st.outbox),
		middleware.Transaction(st.factory, nil),
	)
	queryBusWithMiddleware := middleware.ChainQueries(
		queryBus,
		middleware.QueryValidation(validator),
		middleware.QueryAuthorization(authz.Authorizer{}),
	)
	app.commands = commandBusWithMiddleware

	authService := &auth.Service{
		Tokens:       security.JWTVerifier{Secret: []byte(cfg.JWTSecret), Issuer: cfg.JWTIssuer, Leeway: 30 * time.Second},
		Passwords:    security.BcryptHasher{},
		AdminKeyHash: cfg.AdminKeyHash,
		AdminID:      cfg.AdminID,
		Logger:       logger,
	}
	if cfg.JWTSecret == "" {
		authService.Tokens = nil
	}

	app.handlers = ginserver.Handlers{
		Booking: ginserver.BookingHandler{
			Commands: commandBusWithMiddleware,
			Queries:  queryBusWithMiddleware,
			Logger:   logger,
		},
		Listing: ginserver.ListingHandler{
			Queries: queryBusWithMiddleware,
			Logger:  logger,
		},
		Payment: ginserver.PaymentHandler{
			Commands: commandBusWithMiddleware,
			Logger:   logger,
		},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}
	if rdb != nil {
		limiter := redisstore.NewRateLimiter(rdb, "roomstay:rl", redisstore.RateLimit{
			Capacity:       cfg.WebhookRate,
			RefillTokens:   cfg.WebhookRefill,
			RefillInterval: cfg.WebhookInterval,
		})
		app.handlers.WebhookLimiter = ginserver.RateLimit(limiter, "webhook", logger)
	}
	return app, nil
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.StorageDriver {
	case config.StorageMongo:
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.EnsureIndexes(ctx); err != nil {
			_ = client.Close(context.Background())
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		box, err := inbox.NewMongoStore(ctx, client.DB, cfg.KafkaGroupID)
		if err != nil {
			_ = client.Close(context.Background())
			return nil, fmt.Errorf("mongo inbox: %w", err)
		}
		outboxStore := infraoutbox.NewMongoStore(client.DB)
		return &storage{
			factory: mongodb.Factory{
				DB:           client.DB,
				ListingsRepo: mongodb.NewListingRepository(client.DB),
				BookingsRepo: mongodb.NewBookingRepository(client.DB),
				PaymentsRepo: mongodb.NewPaymentRepository(client.DB),
			},
			outbox:      outboxStore,
			outboxStore: outboxStore,
			idempotency: mongodb.NewIdempotencyStore(client.DB),
			inbox:       box,
			checks:      map[string]obs.Check{"mongo": client.Ping},
			closers: []func() error{func() error {
				return client.Close(context.Background())
			}},
		}, nil

	case config.StorageSQL:
		db, err := gormdb.Open(gormdb.Options{Driver: cfg.SQLDriver, DSN: cfg.SQLDSN, MaxOpenConns: cfg.SQLMaxOpenConns})
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := gormdb.AutoMigrate(db); err != nil {
				_ = gormdb.Close(db)
				return nil, fmt.Errorf("sql migrate: %w", err)
			}
		}
		outboxStore := gormdb.NewOutboxStore(db)
		return &storage{
			factory:     gormdb.NewFactory(db),
			outbox:      outboxStore,
			outboxStore: outboxStore,
			idempotency: gormdb.NewIdempotencyStore(db),
			inbox:       gormdb.NewInboxStore(db, cfg.KafkaGroupID),
			checks:      map[string]obs.Check{"sql": sqlCheck(db)},
			closers:     []func() error{func() error { return gormdb.Close(db) }},
		}, nil

	default:
		logger.Warn("using in-memory storage; data is lost on restart")
		listings := memory.NewListingRepository()
		box := memory.NewOutbox(nil, logger)
		return &storage{
			factory: memory.Factory{
				ListingsRepo: listings,
				BookingsRepo: memory.NewBookingRepository(),
				PaymentsRepo: memory.NewPaymentRepository(),
			},
			outbox:      box,
			memOutbox:   box,
			idempotency: memory.NewIdempotencyStore(),
			inbox:       inbox.NewMemoryStore(),
			checks:      map[string]obs.Check{},
		}, nil
	}
}

func sqlCheck(db *gormlib.DB) obs.Check {
	return func(ctx context.Context) error {
		return gormdb.Ping(ctx, db)
	}
}

func (a *application) runBackground(ctx context.Context, cfg config.Config, logger *slog.Logger) {
	if a.worker != nil {
		a.goRun(logger, "outbox worker", func() error { return a.worker.Run(ctx) })
	}
	if a.consumer != nil {
		a.goRun(logger, "notification consumer", func() error { return a.consumer.Run(ctx, a.topics) })
	}
	if cfg.GRPCAddr != "" {
		health := obs.GRPCHealth{Addr: cfg.GRPCAddr, Ready: a.readiness.Check, Logger: logger}
		a.goRun(logger, "grpc health", func() error { return health.Run(ctx) })
	}
}

func (a *application) goRun(logger *slog.Logger, name string, fn func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Info("background task starting", "task", name)
		if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("background task stopped", "task", name, "error", err)
			return
		}
		logger.Info("background task stopped", "task", name)
	}()
}

func (a *application) wait() {
	a.wg.Wait()
}

// close runs closers in reverse order of acquisition.
func (a *application) close(logger *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func (a *application) loadListingFixtures(ctx context.Context, path string, logger *slog.Logger) error {
	if path == "" {
		path = fixtures.DefaultPath()
	}
	items, err := fixtures.LoadListings(path, time.Now())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		logger.Info("no listing fixtures found", "path", path)
		return nil
	}
	result, err := commands.Dispatch[listingsapp.ImportListingsCommand, *listingsapp.ImportListingsResult](ctx, a.commands, listingsapp.ImportListingsCommand{Items: items})
	if err != nil {
		return err
	}
	logger.Info("listing fixtures imported", "path", path, "created", result.Created, "skipped", result.Skipped)
	return nil
}
