package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/booking/internal/config"
	"github.com/ehr/booking/internal/domain/directory"
	"github.com/ehr/booking/internal/domain/history"
	"github.com/ehr/booking/internal/domain/reminders"
	"github.com/ehr/booking/internal/domain/reviews"
	"github.com/ehr/booking/internal/domain/scheduling"
	"github.com/ehr/booking/internal/platform/auth"
	"github.com/ehr/booking/internal/platform/db"
	"github.com/ehr/booking/internal/platform/middleware"
	"github.com/ehr/booking/internal/platform/notification"
	"github.com/ehr/booking/internal/platform/telemetry"
)

// app holds the wired services of one process.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	tel   *telemetry.Provider

	directory  *directory.Service
	scheduling *scheduling.Service
	history    *history.Service
	reminders  *reminders.Service
	reviews    *reviews.Service
	dispatcher *reminders.Dispatcher

	closers []func() error
}

type repositories struct {
	directory directory.Repository
	slots     scheduling.SlotRepository
	visits    scheduling.VisitRepository
	reserver  scheduling.Reserver
	history   history.Repository
	reminders reminders.Repository
	reviews   reviews.Repository
}

func memoryRepositories() repositories {
	return repositories{
		directory: directory.NewMemoryRepository(),
		slots:     scheduling.NewMemorySlotRepository(),
		visits:    scheduling.NewMemoryVisitRepository(),
		history:   history.NewMemoryRepository(),
		reminders: reminders.NewMemoryRepository(),
		reviews:   reviews.NewMemoryRepository(),
	}
}

func pgRepositories(conn db.TxBeginner) repositories {
	return repositories{
		directory: directory.NewRepoPG(conn),
		slots:     scheduling.NewSlotRepoPG(conn),
		visits:    scheduling.NewVisitRepoPG(conn),
		reserver:  scheduling.NewTxReserver(conn),
		history:   history.NewRepoPG(conn),
		reminders: reminders.NewRepoPG(conn),
		reviews:   reviews.NewRepoPG(conn),
	}
}

// newApp connects the configured backends and builds every service. The
// caller must call close when done.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	a.tel = telemetry.NewProvider(telemetry.Config{
		ServiceName:    "booking-server",
		MetricsEnabled: cfg.MetricsEnabled,
		TracingEnabled: cfg.TracingEnabled,
	})

	var repos repositories
	if cfg.UseMemoryStorage() {
		logger.Warn().Msg("using in-memory storage; data is lost on restart")
		repos = memoryRepositories()
	} else {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		logger.Info().Msg("connected to database")
		repos = pgRepositories(pool)
	}

	var cache directory.RatingCache
	var claimer reminders.Claimer = reminders.NewMemoryClaimer()
	if cfg.RedisURL != "" {
		client, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.redis = client
		a.closers = append(a.closers, client.Close)
		cache = directory.NewRedisRatingCache(client, cfg.RatingCacheTTL)
		claimer = reminders.NewRedisClaimer(client)
		logger.Info().Msg("connected to redis")
	}

	publisher, err := a.newPublisher(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	metrics := a.tel.Metrics()
	templates := notification.NewTemplateEngine()

	a.directory = directory.NewService(repos.directory, cache, logger)
	a.history = history.NewService(repos.history, logger)
	a.reminders = reminders.NewService(repos.reminders, loc, cfg.UpcomingReminderLead, logger)
	a.scheduling = scheduling.NewService(scheduling.Deps{
		Slots:     repos.slots,
		Visits:    repos.visits,
		Reserver:  repos.reserver,
		Directory: a.directory,
		History:   a.history,
		Reminders: a.reminders,
		Publisher: publisher,
		Templates: templates,
		Metrics:   metrics,
		Logger:    logger,
		Location:  loc,
	})
	a.reviews = reviews.NewService(reviews.Deps{
		Reviews:    repos.reviews,
		Visits:     a.scheduling,
		Ratings:    a.directory.Ratings(),
		ReadModel:  a.directory,
		MaxRetries: cfg.RatingMaxRetries,
		Metrics:    metrics,
		Logger:     logger,
	})
	a.dispatcher = reminders.NewDispatcher(a.reminders, claimer, publisher, templates, metrics, logger)
	a.dispatcher.SetClaimTTL(cfg.ReminderDedupTTL)
	return a, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (a *app) newPublisher(ctx context.Context) (notification.Publisher, error) {
	switch a.cfg.NotifySink {
	case "kafka":
		p := notification.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopic)
		a.closers = append(a.closers, p.Close)
		a.logger.Info().Strs("brokers", a.cfg.KafkaBrokers).Str("topic", a.cfg.KafkaTopic).Msg("publishing notifications to kafka")
		return p, nil
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(a.cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			if endpoint := a.cfg.AWSEndpointOverride; endpoint != "" {
				o.BaseEndpoint = aws.String(endpoint)
			}
		})
		a.logger.Info().Str("queue", a.cfg.SQSQueueURL).Msg("publishing notifications to sqs")
		return notification.NewSQSPublisher(client, a.cfg.SQSQueueURL), nil
	case "webhook":
		p, err := notification.NewWebhookPublisher(a.cfg.WebhookURL, a.cfg.WebhookSecret)
		if err != nil {
			return nil, err
		}
		a.logger.Info().Str("url", a.cfg.WebhookURL).Msg("publishing notifications to webhook")
		return p, nil
	default:
		return notification.NewLogPublisher(a.logger), nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}

// router builds the HTTP surface.
func (a *app) router() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.tel.TracingMiddleware())
	e.Use(a.tel.MetricsMiddleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader, auth.HeaderActorID, auth.HeaderActorRole},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(auth.ActorMiddleware(cfg.IsDev()))
	e.Use(middleware.Audit(a.logger, nil))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.pool != nil {
		pool := a.pool
		e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	}
	if cfg.MetricsEnabled {
		e.GET("/metrics", a.tel.PrometheusHandler())
	}

	api := e.Group("/api/v1")
	rl := middleware.DefaultRateLimitConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.BurstSize = cfg.RateLimitBurst
	api.Use(middleware.RateLimit(rl))

	directory.NewHandler(a.directory).RegisterRoutes(api)
	scheduling.NewHandler(a.scheduling).RegisterRoutes(api)
	history.NewHandler(a.history).RegisterRoutes(api)
	reminders.NewHandler(a.reminders).RegisterRoutes(api)
	reviews.NewHandler(a.reviews).RegisterRoutes(api)
	return e
}

// runSweeper completes elapsed upcoming visits every interval.
func (a *app) runSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			n, err := a.scheduling.SweepElapsed(ctx, now)
			if err != nil && ctx.Err() == nil {
				a.logger.Error().Err(err).Int("completed", n).Msg("visit sweep")
			} else if n > 0 {
				a.logger.Info().Int("completed", n).Msg("elapsed visits completed")
			}
		}
	}
}

// serve runs the HTTP server and background loops until ctx is cancelled
// or one of them fails.
func (a *app) serve(ctx context.Context) error {
	e := a.router()
	addr := ":" + a.cfg.Port

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.runSweeper(gctx, a.cfg.VisitSweepInterval) })
	g.Go(func() error { return a.dispatcher.Run(gctx, a.cfg.ReminderPollInterval) })

	err := g.Wait()
	a.logger.Info().Msg("server stopped")
	return err
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
