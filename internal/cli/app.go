package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/derek809/mailtriage/internal/composer"
	"github.com/derek809/mailtriage/internal/config"
	"github.com/derek809/mailtriage/internal/learning"
	"github.com/derek809/mailtriage/internal/logging"
	"github.com/derek809/mailtriage/internal/metrics"
	"github.com/derek809/mailtriage/internal/search"
	"github.com/derek809/mailtriage/internal/storage"
	"github.com/derek809/mailtriage/internal/triage"
)

// app holds everything a command needs, opened from configuration.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	sqlite  *storage.SQLiteStorage
	store   storage.Storage
	index   *search.Indexer
	drafter *composer.Composer
}

func (o *globalOptions) loadConfig() (*config.Config, string, error) {
	path := o.configPath
	if path == "" {
		p, err := config.GetDefaultConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, path, err
	}
	if o.dbPath != "" {
		cfg.Storage.DBPath = o.dbPath
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, path, nil
}

// open loads configuration and opens the store. The caller must close the app.
func (o *globalOptions) open() (*app, error) {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	sqlite := storage.NewStorage(cfg.Storage.DBPath, logger)
	if err := sqlite.Init(); err != nil {
		// Keep going: reads fall back to the built-in library.
		logger.Warn("storage unavailable", zap.Error(err))
	} else {
		bootstrap(context.Background(), sqlite, logger)
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		sqlite:  sqlite,
		store:   storage.WithFallback(sqlite, logger, m.Fallback),
	}, nil
}

// bootstrap seeds the built-in library into a database with no patterns.
func bootstrap(ctx context.Context, s storage.Storage, logger *zap.Logger) {
	patterns, err := s.ListPatterns(ctx)
	if err != nil || len(patterns) > 0 {
		return
	}
	n, err := storage.SeedDefaults(ctx, s)
	if err != nil {
		logger.Warn("failed to seed default library", zap.Error(err))
		return
	}
	logger.Info("seeded default library", zap.Int("entries", n))
}

// replyIndex opens the reply index. An in-memory index is rebuilt from the
// draft history on first use.
func (a *app) replyIndex(ctx context.Context) (*search.Indexer, error) {
	if a.index != nil {
		return a.index, nil
	}

	if a.cfg.Search.IndexPath != "" {
		idx, err := search.NewIndexerWithPath(a.cfg.Search.IndexPath)
		if err != nil {
			return nil, err
		}
		a.index = idx
		return idx, nil
	}

	idx, err := search.NewIndexer()
	if err != nil {
		return nil, err
	}
	drafts, err := a.store.ListDrafts(ctx, 0)
	if err != nil {
		a.logger.Warn("reply index starts empty", zap.Error(err))
	} else if _, err := idx.IndexAll(drafts); err != nil {
		idx.Close()
		return nil, err
	}
	a.index = idx
	return idx, nil
}

func (a *app) pipeline(ctx context.Context, opts ...triage.Option) *triage.Pipeline {
	base := []triage.Option{
		triage.WithLogger(a.logger),
		triage.WithMetrics(a.metrics),
		triage.WithPace(a.cfg.Triage.PaceInterval()),
		triage.WithTemplateValues(a.cfg.TemplateValues()),
	}
	if idx, err := a.replyIndex(ctx); err == nil {
		base = append(base, triage.WithSimilar(idx))
	} else {
		a.logger.Warn("similar replies disabled", zap.Error(err))
	}
	if d := a.cfg.Drafter; d.Command != "" {
		a.drafter = composer.New(composer.Command{
			Path:    d.Command,
			Args:    d.Args,
			Env:     d.Env,
			Timeout: d.TimeoutDuration(),
		}, a.logger)
		base = append(base, triage.WithDrafter(a.drafter))
	}
	return triage.New(a.store, append(base, opts...)...)
}

func (a *app) loop(ctx context.Context) *learning.Loop {
	opts := []learning.Option{
		learning.WithLogger(a.logger),
		learning.WithMetrics(a.metrics),
	}
	if a.cfg.Learning.Async {
		opts = append(opts, learning.WithAsync(a.cfg.Learning.QueueSize))
	}
	if idx, err := a.replyIndex(ctx); err == nil {
		opts = append(opts, learning.WithIndexer(idx))
	} else {
		a.logger.Warn("reply indexing disabled", zap.Error(err))
	}
	return learning.NewLoop(a.store, opts...)
}

func (a *app) close() {
	if a.drafter != nil {
		if err := a.drafter.Close(); err != nil {
			a.logger.Warn("failed to stop drafter", zap.Error(err))
		}
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Warn("failed to close reply index", zap.Error(err))
		}
	}
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.logger.Warn("failed to write metrics textfile", zap.Error(err))
	}
	if err := a.sqlite.Close(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// writeJSON pretty-prints v.
func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
