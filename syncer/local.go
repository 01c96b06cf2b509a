package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"visitorgate/cache"
	"visitorgate/models"
)

var cacheKeys = map[models.Entity]string{
	models.EntityVisitors:         cache.KeyCurrentVisitors,
	models.EntityVisitLogs:        cache.KeyVisitLogs,
	models.EntityLocations:        cache.KeyLocations,
	models.EntityFrequentVisitors: cache.KeyFrequentVisitors,
}

// mirror writes the current local collection of e into the cache.
func (g *Gateway) mirror(ctx context.Context, e models.Entity) error {
	key, ok := cacheKeys[e]
	if !ok {
		return fmt.Errorf("unknown entity %q", e)
	}
	var value any
	switch e {
	case models.EntityVisitors:
		value = nonNil(g.store.Sessions())
	case models.EntityVisitLogs:
		value = nonNil(g.store.Logs())
	case models.EntityLocations:
		value = nonNil(g.registry.List())
	case models.EntityFrequentVisitors:
		value = nonNil(g.directory.List())
	}
	return cache.SaveJSON(ctx, g.cache, key, value)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// LoadLocal hydrates the collections and the sync queue from the cache. A
// missing key leaves the collection as it is; a cached empty location list is
// ignored so the registry never ends up empty.
func (g *Gateway) LoadLocal(ctx context.Context) error {
	var errs []error

	var sessions []models.VisitorSession
	if found, err := cache.LoadJSON(ctx, g.cache, cache.KeyCurrentVisitors, &sessions); err != nil {
		errs = append(errs, err)
	} else if found {
		g.store.ReplaceSessions(sessions)
	}

	var logs []models.VisitLogEntry
	if found, err := cache.LoadJSON(ctx, g.cache, cache.KeyVisitLogs, &logs); err != nil {
		errs = append(errs, err)
	} else if found {
		g.store.ReplaceLogs(logs)
	}

	var locations []models.Location
	if found, err := cache.LoadJSON(ctx, g.cache, cache.KeyLocations, &locations); err != nil {
		errs = append(errs, err)
	} else if found && len(locations) > 0 {
		if err := g.registry.Replace(locations); err != nil {
			errs = append(errs, err)
		}
	}

	var frequent []models.FrequentVisitor
	if found, err := cache.LoadJSON(ctx, g.cache, cache.KeyFrequentVisitors, &frequent); err != nil {
		errs = append(errs, err)
	} else if found {
		g.directory.Replace(frequent)
	}

	if err := g.loadQueue(ctx); err != nil {
		errs = append(errs, err)
	}

	g.logger.Info("local state loaded",
		zap.Int("visitors", len(sessions)),
		zap.Int("visit_logs", len(logs)),
		zap.Int("locations", g.registry.Len()),
		zap.Int("frequent_visitors", len(frequent)),
	)
	return errors.Join(errs...)
}
