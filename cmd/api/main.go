package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"resolveit/auth"
	"resolveit/broadcast"
	"resolveit/config"
	"resolveit/db"
	"resolveit/evidence"
	"resolveit/faq"
	"resolveit/logging"
	"resolveit/mediation"
	"resolveit/metrics"
	"resolveit/schedule"
	"resolveit/user"
)

func main() {
	configPath := flag.String("config", os.Getenv("RESOLVEIT_CONFIG"), "optional YAML config file")
	envPath := flag.String("env", ".env", "optional dotenv file")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		logger.Info(fmt.Sprintf(format, args...))
	})); err != nil {
		logger.Error("set GOMAXPROCS", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hub := broadcast.NewHub(32)
	hub.OnDrop = m.IncBroadcastDrop
	defer hub.Close()

	g, ctx := errgroup.WithContext(ctx)

	publisher, closePublisher, err := newPublisher(ctx, g, cfg, hub, logger)
	if err != nil {
		return err
	}
	defer closePublisher()

	users := user.NewService(user.NewRepository(pool))

	authService := auth.NewService(auth.NewRepository(pool), cfg.JWTSecret)
	if _, err := authService.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	store, err := newEvidenceStore(ctx, cfg)
	if err != nil {
		return err
	}

	var cases *mediation.Service
	scheduler := schedule.New(schedule.NewPGStore(pool), func(ctx context.Context, j schedule.Job) error {
		return runTransitionJob(ctx, cases, j, logger)
	}, logger).WithPollInterval(cfg.SchedulerPollInterval)
	scheduler.OnFinish = func(st schedule.State) { m.ObserveJob(string(st)) }

	cases = mediation.NewService(mediation.NewRepository(pool), users, publisher, logger).
		WithScheduler(scheduler).
		WithObserver(m).
		WithTiming(cfg.NotificationDelay, cfg.ResponseWindow)

	if cfg.AllowsAnyOrigin() {
		logger.Warn("CORS is open to every origin")
	}

	proxies, err := cfg.TrustedProxyPrefixes()
	if err != nil {
		return err
	}

	server := &Server{
		userService:   users,
		caseService:   cases,
		authService:   authService,
		uploader:      evidence.NewUploader(store),
		answerService: faq.NewService(faq.NewRepository(pool)),
		events:        hub,
		db:            pool,
		metrics:       m,
		gatherer:      registry,
		logger:        logger,
		cors:          newCORS(cfg.CORSAllowedOrigins),

		trustedProxies: proxies,
	}
	if cfg.FileStore == config.FileStoreDisk {
		server.uploadDir = cfg.UploadDir
	}
	if cfg.RateLimitRequests > 0 {
		server.limiter = newRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g.Go(func() error {
		return scheduler.Run(ctx)
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		// Open event streams only end when the hub closes.
		hub.Close()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newPublisher builds the case event publisher for the configured driver. The
// in-process hub always receives events so local dashboard streams work;
// with Redis it is fed through the relay so every replica sees every event.
type transitionRunner interface {
	MarkAwaitingResponse(ctx context.Context, caseID string) (bool, error)
	RunScheduledTransition(ctx context.Context, caseID, from, to string) error
}

// runTransitionJob applies a due scheduled transition. Jobs whose case has
// moved on or disappeared finish without error.
func runTransitionJob(ctx context.Context, cases transitionRunner, j schedule.Job, logger *slog.Logger) error {
	if j.FromStatus == string(mediation.StatusQueued) && j.ToStatus == string(mediation.StatusAwaitingResponse) {
		moved, err := cases.MarkAwaitingResponse(ctx, j.CaseID)
		switch {
		case errors.Is(err, mediation.ErrCaseNotFound):
			logger.Info("scheduled transition skipped", "case_id", j.CaseID, "to", j.ToStatus, "reason", err)
			return nil
		case err != nil:
			return err
		case !moved:
			logger.Info("scheduled transition skipped", "case_id", j.CaseID, "to", j.ToStatus, "reason", "case already left Queued")
		}
		return nil
	}

	err := cases.RunScheduledTransition(ctx, j.CaseID, j.FromStatus, j.ToStatus)
	if errors.Is(err, mediation.ErrInvalidTransition) || errors.Is(err, mediation.ErrCaseNotFound) {
		logger.Info("scheduled transition skipped", "case_id", j.CaseID, "to", j.ToStatus, "reason", err)
		return nil
	}
	return err
}

func newPublisher(ctx context.Context, g *errgroup.Group, cfg config.Config, hub *broadcast.Hub, logger *slog.Logger) (broadcast.Publisher, func(), error) {
	switch cfg.BroadcastDriver {
	case config.BroadcastRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		g.Go(func() error {
			return broadcast.Relay(ctx, client, cfg.BroadcastPrefix, hub, logger, broadcast.TopicDashboard)
		})
		return broadcast.NewRedisPublisher(client, cfg.BroadcastPrefix), func() { client.Close() }, nil

	case config.BroadcastKafka:
		producer, err := broadcast.NewKafkaPublisher(cfg.KafkaBrokers, cfg.BroadcastPrefix, logger)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			producer.Close(flushCtx)
		}
		return broadcast.Fanout{hub, producer}, closeFn, nil

	default:
		return hub, func() {}, nil
	}
}

func newEvidenceStore(ctx context.Context, cfg config.Config) (evidence.Store, error) {
	if cfg.FileStore == config.FileStoreS3 {
		return evidence.NewS3Store(ctx, evidence.S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3Access,
			SecretKey: cfg.S3Secret,
		})
	}
	return evidence.NewDiskStore(cfg.UploadDir, "/uploads/")
}
