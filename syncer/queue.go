package syncer

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"visitorgate/cache"
	"visitorgate/models"
)

// enqueue appends a dirty marker at the tail and persists the queue.
func (g *Gateway) enqueue(ctx context.Context, typ models.QueueItemType, ref string, entities []models.Entity) models.SyncQueueItem {
	item := models.SyncQueueItem{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      typ,
		Entities:  entities,
		Timestamp: g.now(),
	}
	if ref != "" {
		item.Payload, _ = json.Marshal(map[string]string{"ref": ref})
	}

	g.queueMu.Lock()
	g.queue = append(g.queue, item)
	snapshot := append([]models.SyncQueueItem(nil), g.queue...)
	g.queueMu.Unlock()

	g.persistQueue(ctx, snapshot)
	return item
}

// pending returns a copy of the queue.
func (g *Gateway) pending() []models.SyncQueueItem {
	g.queueMu.Lock()
	defer g.queueMu.Unlock()
	return append([]models.SyncQueueItem(nil), g.queue...)
}

// settle drops the first n drained items and, when some entities failed, puts
// a single retry item for them at the head.
func (g *Gateway) settle(ctx context.Context, n int, failed []models.Entity) {
	g.queueMu.Lock()
	if n > len(g.queue) {
		n = len(g.queue)
	}
	rest := g.queue[n:]
	next := make([]models.SyncQueueItem, 0, len(rest)+1)
	if len(failed) > 0 {
		next = append(next, models.SyncQueueItem{
			ID:        uuid.Must(uuid.NewV7()).String(),
			Type:      models.QueueRetry,
			Entities:  failed,
			Timestamp: g.now(),
		})
	}
	next = append(next, rest...)
	g.queue = next
	snapshot := append([]models.SyncQueueItem(nil), next...)
	g.queueMu.Unlock()

	g.persistQueue(ctx, snapshot)
}

func (g *Gateway) persistQueue(ctx context.Context, items []models.SyncQueueItem) {
	if items == nil {
		items = []models.SyncQueueItem{}
	}
	if err := cache.SaveJSON(ctx, g.cache, cache.KeySyncQueue, items); err != nil {
		g.report(err)
	}
}

func (g *Gateway) loadQueue(ctx context.Context) error {
	var items []models.SyncQueueItem
	found, err := cache.LoadJSON(ctx, g.cache, cache.KeySyncQueue, &items)
	if err != nil || !found {
		return err
	}
	g.queueMu.Lock()
	g.queue = append(items, g.queue...)
	g.queueMu.Unlock()
	g.logger.Info("restored sync queue", zap.Int("items", len(items)))
	return nil
}

// dirty reports whether e has a queued change.
func (g *Gateway) dirty(e models.Entity) bool {
	g.queueMu.Lock()
	defer g.queueMu.Unlock()
	for _, item := range g.queue {
		for _, q := range item.Entities {
			if q == e {
				return true
			}
		}
	}
	return false
}

// coalesce flattens queued items into one entry per entity, in order of first
// appearance.
func coalesce(items []models.SyncQueueItem) []models.Entity {
	seen := make(map[models.Entity]bool)
	var out []models.Entity
	for _, item := range items {
		for _, e := range item.Entities {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}
