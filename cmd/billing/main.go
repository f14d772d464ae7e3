// Command billing serves the payment pages and portal endpoints and runs the
// invoice and reminder jobs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/linehub/billing/modules/payments"
	"github.com/linehub/billing/pkg/audit"
	"github.com/linehub/billing/pkg/config"
	"github.com/linehub/billing/pkg/email"
	"github.com/linehub/billing/pkg/httpserver"
	"github.com/linehub/billing/pkg/lock"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/objectstore"
	"github.com/linehub/billing/pkg/pg"
	"github.com/linehub/billing/pkg/ratelimiter"
	"github.com/linehub/billing/pkg/redis"
	"github.com/linehub/billing/pkg/reqmeta"
	"github.com/linehub/billing/pkg/schedule"
	"github.com/linehub/billing/pkg/secrets"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/invoicepdf"
	"github.com/linehub/billing/svc/ledger"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/notify"
	"github.com/linehub/billing/svc/paymentrequest"
	"github.com/linehub/billing/svc/reminder"
	"github.com/linehub/billing/svc/store/memstore"
	"github.com/linehub/billing/svc/store/pgstore"
)

type appConfig struct {
	Env              string        `env:"APP_ENV" envDefault:"development"`
	APIBaseURL       string        `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	BankDataKey      string        `env:"BANK_DATA_KEY,required"`
	ReturnURLSecret  string        `env:"RETURN_URL_SECRET"`
	PaymentProvider  string        `env:"PAYMENT_PROVIDER" envDefault:"worldpay"`
	StorageBackend   string        `env:"STORAGE_BACKEND" envDefault:"postgres"`
	LockBackend      string        `env:"LOCK_BACKEND"`
	BatchConcurrency int           `env:"BATCH_CONCURRENCY" envDefault:"5"`
	PaymentLinkTTL   time.Duration `env:"PAYMENT_LINK_TTL" envDefault:"720h"`
	RunScheduler     bool          `env:"RUN_SCHEDULER" envDefault:"false"`
	InvoicesAt       string        `env:"SCHEDULE_INVOICES_AT" envDefault:"06:00"`
	RemindersAt      string        `env:"SCHEDULE_REMINDERS_AT" envDefault:"09:00"`
}

// backend is every store the services need. pgstore and memstore both
// implement it.
type backend interface {
	paymentrequest.Store
	billing.Store
	reminder.InvoiceStore
	checkout.Store
	mandate.Store
	ledger.Store
	audit.Storage
}

func main() {
	var cfg appConfig
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, "billing"),
		logger.WithContextExtractors(reqmeta.LoggerExtractor()),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("billing stopped with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info("billing stopped")
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	var checks []httpserver.Check

	deps, cleanup, err := openBackend(ctx, cfg, log, &checks)
	defer cleanup()
	if err != nil {
		return err
	}
	store, locker := deps.store, deps.locker

	key, err := secrets.ParseKey(cfg.BankDataKey)
	if err != nil {
		return fmt.Errorf("BANK_DATA_KEY: %w", err)
	}
	box, err := secrets.NewBox(key, "dd-mandate-bank-details")
	if err != nil {
		return fmt.Errorf("BANK_DATA_KEY: %w", err)
	}

	var appCfg payments.Config
	if err := config.Load(&appCfg); err != nil {
		return err
	}

	var emailCfg email.Config
	if err := config.Load(&emailCfg); err != nil {
		return err
	}
	sender, err := email.NewSender(emailCfg)
	if err != nil {
		return err
	}
	if !emailCfg.UsePostmark() {
		log.Warn("POSTMARK_SERVER_TOKEN not set, writing emails to disk", slog.String("dir", emailCfg.DevDir))
	}

	auditLog := audit.NewLogger(store,
		audit.WithRequestIDExtractor(reqmeta.RequestID),
		audit.WithIPExtractor(reqmeta.IP),
		audit.WithUserAgentExtractor(reqmeta.UserAgent),
	)

	comms := ledger.New(store, sender, ledger.WithLogger(log), ledger.WithLocker(locker))

	var brand notify.Brand
	if err := config.Load(&brand); err != nil {
		return err
	}
	notifier, err := notify.New(comms, brand, notify.WithLogger(log))
	if err != nil {
		return err
	}

	requests := paymentrequest.NewService(store,
		paymentrequest.WithLogger(log),
		paymentrequest.WithAuditLogger(auditLog),
		paymentrequest.WithLinkNotifier(notifier),
		paymentrequest.WithTTL(cfg.PaymentLinkTTL),
		paymentrequest.WithPublicURL(appCfg.PublicAppURL),
	)

	provider, webhooks, err := newProvider(cfg.PaymentProvider)
	if err != nil {
		return err
	}
	bridgeOpts := []checkout.Option{
		checkout.WithLogger(log),
		checkout.WithAuditLogger(auditLog),
		checkout.WithNotifier(notifier),
		checkout.WithAllowedReturnHosts(hosts(appCfg.PublicAppURL, cfg.APIBaseURL)...),
	}
	if cfg.ReturnURLSecret != "" {
		bridgeOpts = append(bridgeOpts, checkout.WithReturnURLSecret([]byte(cfg.ReturnURLSecret)))
	} else {
		log.Warn("RETURN_URL_SECRET not set, provider return URLs are unsigned")
	}
	bridge := checkout.NewBridge(store, requests, provider, bridgeOpts...)

	mandates := mandate.NewService(store, requests, box,
		mandate.WithLogger(log),
		mandate.WithAuditLogger(auditLog),
		mandate.WithNotifier(notifier),
	)

	var issuer invoicepdf.Issuer
	if err := config.Load(&issuer); err != nil {
		return err
	}
	genOpts := []billing.GeneratorOption{
		billing.WithLogger(log),
		billing.WithAuditLogger(auditLog),
		billing.WithLocker(locker),
		billing.WithNotifier(notifier),
		billing.WithRenderer(invoicepdf.NewRenderer(issuer)),
		billing.WithConcurrency(cfg.BatchConcurrency),
	}
	var s3Cfg objectstore.Config
	if err := config.Load(&s3Cfg); err != nil {
		return err
	}
	if s3Cfg.Enabled() {
		objects, err := objectstore.New(ctx, s3Cfg)
		if err != nil {
			return err
		}
		genOpts = append(genOpts, billing.WithArchiver(invoicepdf.NewArchive(objects)))
	}
	generator := billing.NewGenerator(store, requests, genOpts...)

	dispatcher := reminder.NewDispatcher(store, requests, comms, notifier,
		reminder.WithLogger(log),
		reminder.WithAuditLogger(auditLog),
		reminder.WithLocker(locker),
		reminder.WithConcurrency(cfg.BatchConcurrency),
	)

	limiter, err := newRateLimiter(deps)
	if err != nil {
		return err
	}
	moduleOpts := []payments.Option{payments.WithLogger(log), payments.WithRateLimit(limiter)}
	if webhooks != nil {
		moduleOpts = append(moduleOpts, payments.WithWebhooks(webhooks))
	}
	module := payments.New(appCfg, requests, bridge, mandates, generator, dispatcher, moduleOpts...)

	r := chi.NewRouter()
	r.Use(reqmeta.Middleware, middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(log, checks...))
	r.Mount("/", module.Router())

	var httpCfg httpserver.Config
	if err := config.Load(&httpCfg); err != nil {
		return err
	}
	server := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(ctx, r) })

	if cfg.RunScheduler {
		sched, err := newScheduler(cfg, log, generator, dispatcher)
		if err != nil {
			return err
		}
		g.Go(func() error { return sched.Start(ctx) })
	}

	return g.Wait()
}

type infra struct {
	store  backend
	locker lock.Locker
	redis  *goredis.Client // nil unless LOCK_BACKEND=redis
}

// openBackend connects the configured storage and lock backends. cleanup
// closes whatever was opened and is valid even when err is not nil.
func openBackend(ctx context.Context, cfg appConfig, log *slog.Logger, checks *[]httpserver.Check) (*infra, func(), error) {
	var (
		in       infra
		closers  []func()
		pgLocker *pg.Locker
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.StorageBackend {
	case "memory":
		log.Warn("using in-memory storage, data is lost on restart")
		in.store = memstore.New()
	case "postgres":
		var pgCfg pg.Config
		if err := config.Load(&pgCfg); err != nil {
			return nil, cleanup, err
		}
		pool, err := pg.Connect(ctx, pgCfg)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, pool.Close)
		if pgCfg.AutoMigrate {
			if err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, pgCfg, log); err != nil {
				return nil, cleanup, err
			}
		}
		in.store = pgstore.New(pool, pgstore.WithQueryTimeout(pgCfg.QueryTimeout))
		pgLocker = pg.NewLocker(pool)
		closers = append(closers, func() {
			if err := pgLocker.Close(context.Background()); err != nil {
				log.Warn("failed to close advisory lock session", logger.Error(err))
			}
		})
		*checks = append(*checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	default:
		return nil, cleanup, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	switch cfg.LockBackend {
	case "":
		// advisory locks when Postgres is available, otherwise in-process
		if pgLocker != nil {
			in.locker = pgLocker
		} else {
			in.locker = lock.NewLocal()
		}
	case "local":
		in.locker = lock.NewLocal()
	case "postgres":
		if pgLocker == nil {
			return nil, cleanup, errors.New("LOCK_BACKEND=postgres requires STORAGE_BACKEND=postgres")
		}
		in.locker = pgLocker
	case "redis":
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return nil, cleanup, err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() {
			if err := client.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
				log.Warn("failed to close redis client", logger.Error(err))
			}
		})
		in.locker = redis.NewLocker(client, redisCfg)
		in.redis = client
		*checks = append(*checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	default:
		return nil, cleanup, fmt.Errorf("unknown LOCK_BACKEND %q", cfg.LockBackend)
	}

	return &in, cleanup, nil
}

// newRateLimiter shares buckets through Redis when it is connected.
func newRateLimiter(in *infra) (*ratelimiter.Bucket, error) {
	var rlCfg ratelimiter.Config
	if err := config.Load(&rlCfg); err != nil {
		return nil, err
	}
	if in.redis != nil {
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return nil, err
		}
		return ratelimiter.NewBucket(redis.NewRateLimitStore(in.redis, redisCfg), rlCfg)
	}
	return ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), rlCfg)
}

func newProvider(name string) (checkout.Provider, payments.WebhookParser, error) {
	switch name {
	case "worldpay":
		var wpCfg checkout.WorldpayConfig
		if err := config.Load(&wpCfg); err != nil {
			return nil, nil, err
		}
		p, err := checkout.NewWorldpayProvider(wpCfg)
		return p, nil, err
	case "paddle":
		var pdCfg checkout.PaddleConfig
		if err := config.Load(&pdCfg); err != nil {
			return nil, nil, err
		}
		p, err := checkout.NewPaddleProvider(pdCfg)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	default:
		return nil, nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", name)
	}
}

func newScheduler(cfg appConfig, log *slog.Logger, generator *billing.Generator, dispatcher *reminder.Dispatcher) (*schedule.Scheduler, error) {
	invoicesAt, err := schedule.ParseDaily(cfg.InvoicesAt, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULE_INVOICES_AT: %w", err)
	}
	remindersAt, err := schedule.ParseDaily(cfg.RemindersAt, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULE_REMINDERS_AT: %w", err)
	}

	s := schedule.New(schedule.WithLogger(log), schedule.WithJobTimeout(time.Hour))
	if err := s.AddJob("generate-invoices", invoicesAt, func(ctx context.Context) error {
		_, err := generator.Run(ctx, billing.Day(time.Now()))
		return err
	}); err != nil {
		return nil, err
	}
	if err := s.AddJob("send-reminders", remindersAt, func(ctx context.Context) error {
		_, err := dispatcher.Run(ctx, billing.Day(time.Now()))
		return err
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// hosts returns the host of each parseable URL.
func hosts(urls ...string) []string {
	out := make([]string, 0, len(urls))
	for _, raw := range urls {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			out = append(out, u.Host)
		}
	}
	return out
}
