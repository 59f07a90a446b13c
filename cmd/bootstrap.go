package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"asc-manager/core/appstore"
	"asc-manager/core/config"
	"asc-manager/core/database"
	"asc-manager/core/jsonapi"
	"asc-manager/core/logger"
	"asc-manager/core/metrics"
	"asc-manager/core/ratelimit"
	"asc-manager/core/storage"
	"asc-manager/feature/history"
	"asc-manager/feature/subscriptions"

	"go.uber.org/zap"
)

// runtime is what every remote command needs.
type runtime struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Recorder
	limiter *ratelimit.Controller
	svc     *appstore.Service
}

// loadSettings reads configuration and builds the logger.
func loadSettings() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, l, nil
}

// bootstrap prepares a client for the remote API.
func bootstrap() (*runtime, error) {
	cfg, l, err := loadSettings()
	if err != nil {
		return nil, err
	}
	if cfg.API.Token == "" {
		return nil, fmt.Errorf("API_TOKEN is not set")
	}
	if err := cfg.Pricing.Validate(); err != nil {
		return nil, err
	}

	rec := metrics.New()
	limiter := ratelimit.New(cfg.Rate, ratelimit.WithLogger(l), ratelimit.WithObserver(rec))
	client, err := jsonapi.NewClient(cfg.API, nil, limiter, l)
	if err != nil {
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		log:     l,
		metrics: rec,
		limiter: limiter,
		svc:     appstore.NewService(client, cfg.Pricing.PageSize),
	}, nil
}

func (r *runtime) orchestrator(workers int) *subscriptions.Orchestrator {
	cfg := subscriptions.Config{Reconcile: r.cfg.Reconcile, Pricing: r.cfg.Pricing}
	if workers > 0 {
		cfg.Reconcile.Workers = workers
	}
	return subscriptions.NewOrchestrator(r.svc, cfg, r.log, r.metrics)
}

// exportMetrics writes the metrics textfile when configured.
func (r *runtime) exportMetrics() {
	stats := r.limiter.Stats()
	r.log.Debug("Request statistics",
		zap.Int64("dispatched", stats.Dispatched),
		zap.Int64("throttled", stats.Throttled),
		zap.Int64("retried", stats.Retried),
		zap.Int64("gave_up", stats.GaveUp),
	)
	if r.cfg.Metrics.Textfile == "" {
		return
	}
	if err := r.metrics.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
		r.log.Warn("Failed to export metrics", zap.Error(err))
	}
}

// openArchive connects to object storage for the report archive.
func openArchive(cfg *config.Config, l *zap.Logger) (*history.Archive, error) {
	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return nil, err
	}
	return history.NewArchive(client, cfg.Storage.Bucket, cfg.History.Prefix, l), nil
}

// openStore connects to the run history database.
func openStore(ctx context.Context, cfg *config.Config) (*history.Store, error) {
	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}
	store := history.NewStore(db)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// historyRecorder returns nil when history is off. Connection failures are
// logged and only disable the part that failed.
func historyRecorder(ctx context.Context, cfg *config.Config, l *zap.Logger) *history.Recorder {
	if !cfg.History.Enabled && !cfg.History.RecordRuns {
		return nil
	}

	var archive *history.Archive
	if cfg.History.Enabled {
		a, err := openArchive(cfg, l)
		if err != nil {
			l.Warn("Report archive disabled", zap.Error(err))
		} else {
			archive = a
		}
	}

	var store *history.Store
	if cfg.History.RecordRuns {
		s, err := openStore(ctx, cfg)
		if err != nil {
			l.Warn("Optional database connection failed", zap.Error(err))
		} else {
			store = s
		}
	}

	if archive == nil && store == nil {
		return nil
	}
	return history.NewRecorder(archive, store, cfg.History.Keep, l)
}

// signalContext is cancelled on SIGINT or SIGTERM. Writes already sent
// complete; the rest are reported cancelled.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// confirm asks for "yes" on stdin unless auto is set.
func confirm(prompt string, auto bool) bool {
	if auto {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Printf("\n%s Type 'yes' to confirm: ", prompt)
	response, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(response) == "yes"
}
