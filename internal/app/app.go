// Package app builds and runs the long-lived pagewatch services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pagewatch/internal/api"
	"github.com/JakeFAU/pagewatch/internal/clock/system"
	"github.com/JakeFAU/pagewatch/internal/config"
	"github.com/JakeFAU/pagewatch/internal/detector"
	"github.com/JakeFAU/pagewatch/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pagewatch/internal/fetcher/headless"
	"github.com/JakeFAU/pagewatch/internal/fetcher/promote"
	"github.com/JakeFAU/pagewatch/internal/hash/sha256"
	headlessdetector "github.com/JakeFAU/pagewatch/internal/headless/detector"
	"github.com/JakeFAU/pagewatch/internal/id/uuid"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/monitor"
	"github.com/JakeFAU/pagewatch/internal/normalizer"
	"github.com/JakeFAU/pagewatch/internal/notify"
	"github.com/JakeFAU/pagewatch/internal/policy/ratelimit"
	queueMemory "github.com/JakeFAU/pagewatch/internal/queue/memory"
	"github.com/JakeFAU/pagewatch/internal/scheduler"
	"github.com/JakeFAU/pagewatch/internal/settings"
	gcsstorage "github.com/JakeFAU/pagewatch/internal/storage/gcs"
	localstorage "github.com/JakeFAU/pagewatch/internal/storage/local"
	memoryStorage "github.com/JakeFAU/pagewatch/internal/storage/memory"
	pgstore "github.com/JakeFAU/pagewatch/internal/storage/postgres"
	"github.com/JakeFAU/pagewatch/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     monitor.Clock
	store     monitor.Store
	pgStore   *pgstore.Store
	settings  *settings.Service
	tracker   *scheduler.Tracker
	queue     *queueMemory.Queue
	dispatch  *dispatcher.Dispatcher
	scheduler *scheduler.Scheduler
	hub       *notify.Hub
	apiServer *api.Server

	headless     *headlessfetcher.Fetcher
	storage      *storage.Client
	pubsubClient *pubsub.Client
	pubsubTopic  *notify.PubSubChannel
	alerts       *notify.MemoryChannel
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	app := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
	}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("blob", cfg.Blob.Driver),
	)

	if err := app.setupStore(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	app.setupSettings()

	blobStore, err := app.setupBlobStore(ctx)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := app.setupNotify(ctx); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.tracker = scheduler.NewTracker(app.clock)
	app.queue = queueMemory.NewQueue(cfg.Worker.QueueDepth)
	app.dispatch = app.setupDispatcher(blobStore)

	app.scheduler, err = scheduler.New(app.store, app.dispatch, app.tracker, app.settings, app.clock, scheduler.Config{
		IntervalMinutes: cfg.Scheduler.IntervalMinutes,
		CronSpec:        cfg.Scheduler.Cron,
		RunOnStart:      cfg.Scheduler.RunOnStart,
	}, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}

	var apiKey string
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	app.apiServer = api.NewServer(api.Dependencies{
		Store:    app.store,
		Checker:  app.scheduler,
		States:   app.tracker,
		Settings: app.settings,
		IDs:      uuid.New(),
		Clock:    app.clock,
		Ready:    app.ready,
	}, api.Options{
		APIKey:         apiKey,
		RequestTimeout: config.Seconds(cfg.Server.RequestTimeoutSeconds),
	}, logger.Named("api"))

	return app, nil
}

func (a *App) setupStore(ctx context.Context) error {
	if a.cfg.Storage.Driver != "postgres" {
		a.logger.Info("using in-memory record store")
		a.store = memoryStorage.NewStore()
		return nil
	}
	pg, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: time.Duration(a.cfg.DB.MaxConnLifetimeMinutes) * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pgStore = pg
	a.store = pg
	if a.cfg.DB.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres migrate failed: %w", err)
		}
	}
	a.logger.Info("postgres record store initialized")
	return nil
}

func (a *App) setupSettings() {
	var source settings.Source
	if a.pgStore != nil {
		source = a.pgStore
	} else {
		source = settings.NewMemorySource(nil)
	}
	a.settings = settings.NewService(source, settings.Config{
		TTL: config.Seconds(a.cfg.Settings.TTLSeconds),
		Defaults: map[string]string{
			settings.KeyCheckIntervalMinutes: strconv.Itoa(a.cfg.Scheduler.IntervalMinutes),
			settings.KeyNotificationsEnabled: "true",
		},
	}, a.clock, a.logger.Named("settings"))
}

func (a *App) setupBlobStore(ctx context.Context) (monitor.BlobStore, error) {
	switch a.cfg.Blob.Driver {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.Blob.GCSBucket,
			Prefix: a.cfg.Blob.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS blob store", zap.String("bucket", a.cfg.Blob.GCSBucket))
		return blobStore, nil
	case "local":
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Blob.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local blob store", zap.String("path", a.cfg.Blob.LocalDir))
		return blobStore, nil
	default:
		a.logger.Info("using in-memory blob store")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupNotify(ctx context.Context) error {
	minPriority, _ := monitor.ParsePriority(a.cfg.Notify.MinPriority)
	var routes []notify.Route
	for _, name := range a.cfg.Notify.Channels {
		var ch notify.Channel
		switch name {
		case "log":
			ch = notify.NewLogChannel(a.logger.Named("alerts"))
		case "memory":
			a.alerts = notify.NewMemoryChannel("memory")
			ch = a.alerts
		case "pubsub":
			client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
			if err != nil {
				return fmt.Errorf("pubsub client init failed: %w", err)
			}
			a.pubsubClient = client
			a.pubsubTopic = notify.NewPubSubChannel(client.Topic(a.cfg.PubSub.TopicName))
			ch = a.pubsubTopic
			a.logger.Info("Pub/Sub channel initialized",
				zap.String("project", a.cfg.PubSub.ProjectID),
				zap.String("topic", a.cfg.PubSub.TopicName),
			)
		default:
			return fmt.Errorf("unknown notify channel %q", name)
		}
		routes = append(routes, notify.Route{
			Channel:     ch,
			MinPriority: minPriority,
			RateLimit:   a.cfg.Notify.RateLimit,
			RateWindow:  config.Seconds(a.cfg.Notify.RateWindowSeconds),
		})
	}
	dispatch := notify.NewDispatcher(routes, a.settings, a.clock, notify.DispatcherConfig{
		DedupWindow: config.Seconds(a.cfg.Notify.DedupWindowSeconds),
	}, a.logger.Named("notify"))
	a.hub = notify.NewHub(dispatch, a.clock, notify.HubConfig{
		BufferSize:  a.cfg.Notify.BufferSize,
		SendTimeout: config.Seconds(a.cfg.Notify.SendTimeoutSeconds),
	}, a.logger.Named("notify_hub"))
	a.logger.Info("notification hub initialized", zap.Strings("channels", a.cfg.Notify.Channels))
	return nil
}

// NewFetcher builds the promoting fetcher: a colly probe plus, when enabled,
// a headless browser. The returned browser is nil unless headless rendering
// is on; without it, pages that look script-driven keep the probe response.
func NewFetcher(cfg config.Config, logger *zap.Logger) (monitor.Fetcher, *headlessfetcher.Fetcher, error) {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Fetcher.UserAgent,
		RespectRobots: cfg.Fetcher.RespectRobots,
		Timeout:       cfg.FetchTimeout(),
	})
	detect := headlessdetector.NewHeuristic(cfg.Headless.PromotionThresh)
	if !cfg.Headless.Enabled {
		return promote.New(probe, headlessfetcher.NewNoop(), detect, logger), nil, nil
	}
	browser, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
		MaxParallel:       cfg.Headless.MaxParallel,
		UserAgent:         cfg.Fetcher.UserAgent,
		NavigationTimeout: config.Seconds(cfg.Headless.NavTimeoutSec),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("headless fetcher init failed: %w", err)
	}
	return promote.New(probe, browser, detect, logger), browser, nil
}

// NewClassifier builds the change classifier from the detector section.
func NewClassifier(cfg config.Config, logger *zap.Logger) *detector.Classifier {
	return detector.NewClassifier(
		detector.NewKeywordDetector(cfg.Detector.Keywords),
		nil,
		detector.Config{
			Threshold:       cfg.Detector.Threshold,
			MaxCompareRunes: cfg.Detector.MaxCompareRunes,
			NewSignalsOnly:  cfg.Detector.NewSignalsOnly,
		},
		logger,
	)
}

func (a *App) setupDispatcher(blobStore monitor.BlobStore) *dispatcher.Dispatcher {
	fetcher, browser, err := NewFetcher(a.cfg, a.logger.Named("fetcher"))
	if err != nil {
		a.logger.Warn("headless fetcher unavailable, using static fetches only", zap.Error(err))
		cfg := a.cfg
		cfg.Headless.Enabled = false
		fetcher, _, _ = NewFetcher(cfg, a.logger.Named("fetcher"))
	}
	a.headless = browser

	var screenshotter monitor.Screenshotter
	screenshots := a.cfg.Worker.Screenshots && browser != nil
	if screenshots {
		screenshotter = browser
	} else if a.cfg.Worker.Screenshots {
		a.logger.Warn("screenshots requested but headless rendering is disabled")
	}

	limiter := ratelimit.New(ratelimit.Config{
		GlobalRPS:    a.cfg.RateLimit.GlobalRPS,
		GlobalBurst:  a.cfg.RateLimit.GlobalBurst,
		PerHostRPS:   a.cfg.RateLimit.PerHostRPS,
		PerHostBurst: a.cfg.RateLimit.PerHostBurst,
	})
	classifier := NewClassifier(a.cfg, a.logger.Named("classifier"))
	workerCfg := worker.Config{
		FetchTimeout: a.cfg.FetchTimeout(),
		Retry:        a.cfg.RetryPolicy(),
		Screenshots:  screenshots,
	}
	a.logger.Info("worker config",
		zap.Int("concurrency", a.cfg.Worker.Concurrency),
		zap.Duration("fetch_timeout", workerCfg.FetchTimeout),
		zap.Int("max_attempts", workerCfg.Retry.MaxAttempts),
		zap.Duration("base_delay", workerCfg.Retry.BaseDelay),
		zap.Bool("screenshots", screenshots),
	)

	deps := worker.Dependencies{
		Queue:         a.queue,
		Tracker:       a.tracker,
		Store:         a.store,
		Fetcher:       fetcher,
		Normalizer:    normalizer.New(),
		Classifier:    classifier,
		Hasher:        sha256.New(),
		IDs:           uuid.New(),
		Clock:         a.clock,
		Limiter:       limiter,
		Notifier:      a.hub,
		BlobStore:     blobStore,
		Screenshotter: screenshotter,
	}
	workers := make([]*worker.Worker, 0, a.cfg.Worker.Concurrency)
	for i := range a.cfg.Worker.Concurrency {
		workers = append(workers, worker.New(deps, workerCfg, a.logger.With(zap.Int("index", i))))
	}
	return dispatcher.New(a.queue, workers)
}

func (a *App) ready(ctx context.Context) error {
	if a.pgStore == nil {
		return nil
	}
	return a.pgStore.Ping(ctx)
}

// Handler exposes the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Store exposes the record store.
func (a *App) Store() monitor.Store {
	return a.store
}

// Scheduler exposes the scheduler for manual triggers.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Tracker exposes per-target job states.
func (a *App) Tracker() *scheduler.Tracker {
	return a.tracker
}

// Alerts returns the in-memory alert channel when configured.
func (a *App) Alerts() *notify.MemoryChannel {
	return a.alerts
}

// Start runs the workers and the scheduler until ctx is canceled. It does not
// serve HTTP.
func (a *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Workers()))
		a.dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.scheduler.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run pipeline: %w", err)
	}
	return nil
}

// Run starts the pipeline and the HTTP server and blocks until ctx is
// canceled or a signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Start(gctx)
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
		return nil
	})
	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	return errors.Join(runErr, a.Close(closeCtx))
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeoutSecs > 0 {
		return config.Seconds(a.cfg.Server.ShutdownTimeoutSecs)
	}
	return 10 * time.Second
}

// Close gracefully shuts down the application. Pending notifications are
// drained before the transports are closed.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	var err error
	if a.hub != nil {
		if closeErr := a.hub.Close(ctx); closeErr != nil {
			a.logger.Warn("notification hub close failed", zap.Error(closeErr))
			err = closeErr
		}
	}
	a.closeInfrastructure()
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}

func (a *App) closeInfrastructure() {
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubTopic != nil {
		a.pubsubTopic.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}
