package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/mediadex/internal/config"
	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/index"
	"github.com/Aman-CERP/mediadex/internal/search"
	"github.com/Aman-CERP/mediadex/internal/store"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

// app holds the components a command works with. Close releases the store.
type app struct {
	root     string
	cfg      *config.Config
	backend  store.Backend
	store    store.ItemStore
	indexer  *index.Indexer
	engine   *search.Engine
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	insights *telemetry.QueryInsights
	logger   *slog.Logger
}

// projectRoot resolves the --dir flag, or the nearest project root.
func projectRoot(opts *globalOptions) (string, error) {
	if opts.dir != "" {
		return opts.dir, nil
	}
	return config.FindProjectRoot(".")
}

// loadConfig resolves the project root and loads its configuration.
func loadConfig(opts *globalOptions) (string, *config.Config, error) {
	root, err := projectRoot(opts)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	return root, cfg, nil
}

// openApp loads configuration and opens the persistent index. An existing
// index keeps its backend even when the configuration names another one.
func openApp(opts *globalOptions) (*app, error) {
	root, cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()

	backend := store.Backend(cfg.Index.Backend)
	if detected := store.DetectBackend(cfg.Paths.Index); detected != "" && detected != backend {
		logger.Warn("index_backend_mismatch",
			slog.String("configured", string(backend)),
			slog.String("existing", string(detected)))
		backend = detected
	}

	if err := os.MkdirAll(cfg.Paths.Index, 0o755); err != nil {
		return nil, mderrors.New(mderrors.ErrCodeStorageUnavailable, "failed to create index directory", err).
			WithDetail("path", cfg.Paths.Index)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)
	insights := telemetry.NewQueryInsights(telemetry.DefaultInsightsConfig())

	storeOpts := store.DefaultOptions()
	storeOpts.CacheSizeMB = cfg.Index.SQLiteCacheMB
	storeOpts.Logger = logger
	s, err := store.Open(cfg.Paths.Index, backend, storeOpts)
	if err != nil {
		return nil, err
	}

	ix, err := index.New(index.Config{Store: s, IndexDir: cfg.Paths.Index, Logger: logger, Metrics: metrics})
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	engine, err := search.NewEngine(s, search.EngineConfig{
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
		Preferences:  cfg.Search.PreferredStyles,
		CacheSize:    cfg.Search.CacheSize,
	}, search.WithLogger(logger), search.WithMetrics(metrics), search.WithInsights(insights))
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	return &app{
		root:     root,
		cfg:      cfg,
		backend:  backend,
		store:    s,
		indexer:  ix,
		engine:   engine,
		registry: registry,
		metrics:  metrics,
		insights: insights,
		logger:   logger,
	}, nil
}

func (a *app) Close() error {
	if err := a.store.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}
