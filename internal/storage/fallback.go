package storage

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// FallbackStorage wraps a Storage so pattern and template reads degrade to
// the canonical defaults when the underlying store is unavailable.
// Writes pass through unchanged.
type FallbackStorage struct {
	Storage
	logger     *zap.Logger
	onFallback func(kind string)
}

// WithFallback wraps s. onFallback, when non-nil, is called with "patterns"
// or "templates" every time a default set is served.
func WithFallback(s Storage, logger *zap.Logger, onFallback func(kind string)) *FallbackStorage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackStorage{Storage: s, logger: logger, onFallback: onFallback}
}

func (f *FallbackStorage) fellBack(kind string, err error) {
	f.logger.Warn("store unavailable, using default "+kind, zap.Error(err))
	if f.onFallback != nil {
		f.onFallback(kind)
	}
}

// ListPatterns returns stored patterns, or the defaults if the store is unreachable.
func (f *FallbackStorage) ListPatterns(ctx context.Context) ([]Pattern, error) {
	patterns, err := f.Storage.ListPatterns(ctx)
	if errors.Is(err, ErrStoreUnavailable) {
		f.fellBack("patterns", err)
		return DefaultPatterns(), nil
	}
	if err != nil {
		return nil, err
	}
	SortPatterns(patterns)
	return patterns, nil
}

// GetPattern returns the stored pattern, or its default if the store is unreachable.
func (f *FallbackStorage) GetPattern(ctx context.Context, name string) (*Pattern, error) {
	p, err := f.Storage.GetPattern(ctx, name)
	if !errors.Is(err, ErrStoreUnavailable) {
		return p, err
	}
	f.fellBack("patterns", err)
	for _, d := range DefaultPatterns() {
		if d.Name == name {
			return &d, nil
		}
	}
	return nil, notFound("pattern", name)
}

// ListTemplates returns stored templates, or the defaults if the store is unreachable.
func (f *FallbackStorage) ListTemplates(ctx context.Context) ([]Template, error) {
	templates, err := f.Storage.ListTemplates(ctx)
	if errors.Is(err, ErrStoreUnavailable) {
		f.fellBack("templates", err)
		return DefaultTemplates(), nil
	}
	if err != nil {
		return nil, err
	}
	SortTemplates(templates)
	return templates, nil
}

// GetTemplate returns the stored template, or its default if the store is unreachable.
func (f *FallbackStorage) GetTemplate(ctx context.Context, id string) (*Template, error) {
	t, err := f.Storage.GetTemplate(ctx, id)
	if !errors.Is(err, ErrStoreUnavailable) {
		return t, err
	}
	f.fellBack("templates", err)
	for _, d := range DefaultTemplates() {
		if d.ID == id {
			return &d, nil
		}
	}
	return nil, notFound("template", id)
}
