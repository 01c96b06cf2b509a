package geo

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/cache"
	"visitorgate/models"
)

// LocatorConfig controls fix acquisition.
type LocatorConfig struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration
	CacheFor     time.Duration
	Retries      int
	RetryPause   time.Duration
}

// DefaultLocatorConfig favours speed over accuracy, as kiosks are mostly indoors.
func DefaultLocatorConfig() LocatorConfig {
	return LocatorConfig{
		HighAccuracy: false,
		Timeout:      15 * time.Second,
		MaxAge:       10 * time.Minute,
		CacheFor:     30 * time.Minute,
		Retries:      3,
		RetryPause:   2 * time.Second,
	}
}

type cachedFix struct {
	Fix      models.Fix `json:"location"`
	CachedAt time.Time  `json:"timestamp"`
}

// Locator wraps a Provider with retries and a cached last fix.
type Locator struct {
	provider Provider
	cache    cache.Cache
	cfg      LocatorConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewLocator creates a Locator. c may be nil to disable fix caching.
func NewLocator(provider Provider, c cache.Cache, cfg LocatorConfig, logger *zap.Logger) *Locator {
	return &Locator{
		provider: provider,
		cache:    c,
		cfg:      cfg,
		logger:   logger.Named("locator"),
		now:      time.Now,
	}
}

// Locate returns the cached fix when it is younger than CacheFor, otherwise it
// asks the provider, retrying with more permissive options.
func (l *Locator) Locate(ctx context.Context) (models.Fix, error) {
	if fix, ok := l.cached(ctx); ok {
		return fix, nil
	}

	var lastErr error
	for attempt := 0; attempt <= l.cfg.Retries; attempt++ {
		if attempt > 0 {
			if err := l.pause(ctx); err != nil {
				return models.Fix{}, err
			}
		}
		opts := l.attemptOptions(attempt)
		fix, err := l.provider.CurrentFix(ctx, opts)
		if err == nil {
			l.store(ctx, fix)
			return fix, nil
		}
		lastErr = err
		l.logger.Info("fix attempt failed",
			zap.Int("attempt", attempt),
			zap.Stringer("options", opts),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return models.Fix{}, ctx.Err()
		}
		var fe *FixError
		if errors.As(err, &fe) && fe.Code == PermissionDenied {
			break
		}
	}
	return models.Fix{}, &apperr.LocationError{Reason: "no position fix", Err: lastErr}
}

// Fresh asks for a single high-accuracy reading and bypasses the cache. It is
// used to re-centre a registered site on the device position.
func (l *Locator) Fresh(ctx context.Context) (models.Fix, error) {
	fix, err := l.provider.CurrentFix(ctx, FixOptions{HighAccuracy: true, Timeout: 10 * time.Second})
	if err != nil {
		return models.Fix{}, &apperr.LocationError{Reason: "no fresh position fix", Err: err}
	}
	return fix, nil
}

// Forget drops the cached fix so the next Locate queries the provider.
func (l *Locator) Forget(ctx context.Context) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, cache.KeyGeoFix)
}

func (l *Locator) attemptOptions(attempt int) FixOptions {
	if attempt == 0 {
		return FixOptions{HighAccuracy: l.cfg.HighAccuracy, Timeout: l.cfg.Timeout, MaxAge: l.cfg.MaxAge}
	}
	return FixOptions{
		HighAccuracy: false,
		Timeout:      l.cfg.Timeout + time.Duration(attempt)*l.cfg.Timeout/2,
		MaxAge:       l.cfg.MaxAge * time.Duration(attempt+1),
	}
}

func (l *Locator) pause(ctx context.Context) error {
	if l.cfg.RetryPause <= 0 {
		return nil
	}
	timer := time.NewTimer(l.cfg.RetryPause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Locator) cached(ctx context.Context) (models.Fix, bool) {
	if l.cache == nil {
		return models.Fix{}, false
	}
	var entry cachedFix
	found, err := cache.LoadJSON(ctx, l.cache, cache.KeyGeoFix, &entry)
	if err != nil {
		l.logger.Warn("failed to read cached fix", zap.Error(err))
		return models.Fix{}, false
	}
	if !found || l.now().Sub(entry.CachedAt) >= l.cfg.CacheFor {
		return models.Fix{}, false
	}
	return entry.Fix, true
}

func (l *Locator) store(ctx context.Context, fix models.Fix) {
	if l.cache == nil {
		return
	}
	if err := cache.SaveJSON(ctx, l.cache, cache.KeyGeoFix, cachedFix{Fix: fix, CachedAt: l.now()}); err != nil {
		l.logger.Warn("failed to cache fix", zap.Error(err))
	}
}
