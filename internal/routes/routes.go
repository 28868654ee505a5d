package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletcore/internal/activity"
	"github.com/congo-pay/walletcore/internal/authorization"
	"github.com/congo-pay/walletcore/internal/cards"
	"github.com/congo-pay/walletcore/internal/clock"
	"github.com/congo-pay/walletcore/internal/config"
	"github.com/congo-pay/walletcore/internal/funding"
	"github.com/congo-pay/walletcore/internal/ledger"
	"github.com/congo-pay/walletcore/internal/metrics"
	"github.com/congo-pay/walletcore/internal/middleware"
	"github.com/congo-pay/walletcore/internal/notification"
	"github.com/congo-pay/walletcore/internal/payments"
	"github.com/congo-pay/walletcore/internal/processor"
	"github.com/congo-pay/walletcore/internal/reconcile"
	"github.com/congo-pay/walletcore/internal/signature"
	"github.com/congo-pay/walletcore/internal/validation"
	"github.com/congo-pay/walletcore/internal/wallet"
	"github.com/congo-pay/walletcore/internal/webhook"
)

const devJWTSecret = "walletcore-development-only"

// Deps aggregates shared dependencies required to wire routes. DB, Cache and Kafka may be nil
// in development, in which case in-memory backends are used.
type Deps struct {
	Cfg     config.Config
	DB      *pgxpool.Pool
	Cache   *redis.Client
	Kafka   sarama.SyncProducer
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Processor overrides the processor built from Cfg.
	Processor processor.Processor
	Clock     clock.Clock
}

// Background holds long-running components the caller must start.
type Background struct {
	// Worker drains the Redis reconciliation queue. Nil unless Redis is the sink.
	Worker *reconcile.Worker
}

type backends struct {
	ledger        ledger.Ledger
	cards         cards.Store
	activity      activity.Log
	notifications notification.Store
}

func newBackends(d Deps) backends {
	if d.DB != nil {
		return backends{
			ledger:        ledger.NewPostgresLedger(d.DB),
			cards:         cards.NewPostgresStore(d.DB, d.Clock),
			activity:      activity.NewPostgresLog(d.DB),
			notifications: notification.NewPostgresStore(d.DB),
		}
	}
	return backends{
		ledger:        ledger.NewInMemory(),
		cards:         cards.NewInMemory(d.Clock),
		activity:      activity.NewInMemory(),
		notifications: notification.NewMemoryStore(),
	}
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) (Background, error) {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return Background{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Background{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Cfg.ReconciliationSink == config.SinkKafka && d.Kafka == nil {
		return Background{}, fmt.Errorf("kafka producer is required when RECONCILIATION_SINK=kafka")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))

	store := newBackends(d)
	proc := d.Processor
	if proc == nil {
		if d.Cfg.ProcessorBaseURL != "" {
			proc = processor.NewClient(d.Cfg.ProcessorBaseURL, d.Cfg.ProcessorPublicKey, d.Cfg.ProcessorTimeout, d.Logger)
		} else {
			d.Logger.Warn("no processor configured, using the static processor")
			proc = processor.NewStatic()
		}
	}

	publishers := []notification.Publisher{notification.NewLogPublisher(d.Logger)}
	if d.Cache != nil {
		publishers = append(publishers, notification.NewRedisPublisher(d.Cache))
	}
	notifier := notification.NewService(store.notifications, d.Logger, publishers...)

	var (
		sink  reconcile.Sink
		queue *reconcile.RedisQueue
		bg    Background
	)
	switch {
	case d.Cfg.ReconciliationSink == config.SinkKafka:
		sink = reconcile.NewKafkaSink(d.Kafka, d.Cfg.KafkaReconciliationTopic)
	case d.Cache != nil:
		queue = reconcile.NewRedisQueue(d.Cache)
		sink = queue
		bg.Worker = reconcile.NewWorker(queue, store.ledger, d.Cfg.ReconciliationMaxAttempts, d.Cfg.ReconciliationPollInterval, d.Metrics, d.Logger)
	default:
		d.Logger.Warn("no reconciliation sink available, cases will only be logged")
	}
	escalator := reconcile.NewEscalator(sink, d.Metrics, d.Logger)

	v := validation.New()
	walletSvc := wallet.NewService(store.ledger, d.Cfg.DefaultCurrency)
	paymentSvc := payments.NewService(store.ledger, notifier, d.Metrics, d.Logger)
	cardSvc := cards.NewService(store.cards, proc, d.Logger)
	fundingSvc := funding.NewService(store.ledger, cardSvc, proc, escalator, notifier, d.Metrics, d.Logger)
	recorder := activity.NewRecorder(store.activity, store.cards, notifier, d.Logger)
	engine := authorization.NewEngine(store.cards, d.Cfg.AuthorizationDeadline, d.Metrics, d.Logger)
	verifier := signature.NewVerifier(d.Cfg.WebhookSecret, d.Cfg.WebhookAllowUnsigned, d.Logger)

	RegisterWebhookRoutes(app, webhook.NewHandler(verifier, d.Cfg.WebhookSignatureHeader, engine, recorder, d.Metrics, d.Logger))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	secret := d.Cfg.JWTSecret
	if secret == "" {
		d.Logger.Warn("JWT_SECRET not set, using the development secret")
		secret = devJWTSecret
	}
	protected := api.Group("", middleware.JWTAuth(secret))

	// mutations: rate limit, then idempotent replay when Redis is available
	mutating := []fiber.Handler{middleware.RateLimit(d.Cache, "mutations", d.Cfg.PaymentsRateLimit)}
	if d.Cache != nil {
		mutating = append(mutating, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterWalletRoutes(protected, wallet.NewHandler(walletSvc))
	RegisterPaymentRoutes(protected.Group("/payments", mutating...), payments.NewHandler(paymentSvc, v))
	cardGroup := protected.Group("/cards", mutating...)
	RegisterCardRoutes(cardGroup, cards.NewHandler(cardSvc, v))
	RegisterFundingRoutes(cardGroup, funding.NewHandler(fundingSvc, v))
	RegisterNotificationRoutes(protected, notification.NewHandler(notifier))
	RegisterActivityRoutes(protected, activity.NewHandler(recorder))

	return bg, nil
}
