// Package syncer reconciles local state with the remote store.
//
// Local mutations commit first and are mirrored into the local cache; the
// gateway then marks the touched entities dirty in a persisted queue and
// drains it with whole-collection pushes while the remote is reachable.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/cache"
	"visitorgate/db"
	"visitorgate/models"
	"visitorgate/registry"
	"visitorgate/visitors"
)

// ErrSyncInFlight is returned when another pull or push is still running.
var ErrSyncInFlight = errors.New("sync already in progress")

// Config tunes the background loop.
type Config struct {
	Interval     time.Duration
	ReadyTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{Interval: 30 * time.Second, ReadyTimeout: 10 * time.Second}
}

// Reporter receives every failure the gateway does not return to a caller.
type Reporter func(err error)

// Guard runs fn while holding the lock that local mutations and their Commit
// calls hold. Pulled collections are installed inside it.
type Guard func(fn func())

func unguarded(fn func()) { fn() }

// Status is a snapshot of the gateway state.
type Status struct {
	Online    bool            `json:"online"`
	InFlight  bool            `json:"inFlight"`
	Pending   int             `json:"pending"`
	Dirty     []models.Entity `json:"dirty"`
	LastPull  time.Time       `json:"lastPull,omitempty"`
	LastPush  time.Time       `json:"lastPush,omitempty"`
	LastError string          `json:"lastError,omitempty"`
}

// Gateway owns the sync queue and all remote traffic.
type Gateway struct {
	remote    db.Store
	cache     cache.Cache
	registry  *registry.Registry
	store     *visitors.Store
	directory *visitors.Directory
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	reporter atomic.Pointer[Reporter]

	// Set before Start.
	guard       Guard
	onLocations func()
	online   atomic.Bool
	inFlight atomic.Bool

	queueMu sync.Mutex
	queue   []models.SyncQueueItem

	statusMu  sync.Mutex
	lastPull  time.Time
	lastPush  time.Time
	lastError string

	wake      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a Gateway over the given local collections.
func New(remote db.Store, c cache.Cache, reg *registry.Registry, store *visitors.Store, dir *visitors.Directory, cfg Config, logger *zap.Logger) *Gateway {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultConfig().ReadyTimeout
	}
	return &Gateway{
		remote:    remote,
		cache:     c,
		registry:  reg,
		store:     store,
		directory: dir,
		cfg:       cfg,
		logger:    logger.Named("sync"),
		now:       time.Now,
		guard:     unguarded,
		wake:      make(chan struct{}, 1),
		ready:     make(chan struct{}),
	}
}

// SetReporter installs the failure callback.
func (g *Gateway) SetReporter(r Reporter) {
	g.reporter.Store(&r)
}

// SetGuard installs the lock pulled data is applied under.
func (g *Gateway) SetGuard(guard Guard) {
	if guard == nil {
		guard = unguarded
	}
	g.guard = guard
}

// OnLocationsReplaced installs a callback run inside the guard each time a
// pull replaces the location registry.
func (g *Gateway) OnLocationsReplaced(fn func()) {
	g.onLocations = fn
}

func (g *Gateway) report(err error) {
	if err == nil {
		return
	}
	g.logger.Warn("sync failure", zap.String("kind", apperr.Kind(err)), zap.Error(err))
	g.statusMu.Lock()
	g.lastError = err.Error()
	g.statusMu.Unlock()
	if r := g.reporter.Load(); r != nil && *r != nil {
		(*r)(err)
	}
}

// Online reports the last known connectivity.
func (g *Gateway) Online() bool { return g.online.Load() }

// SetOnline records connectivity. Going from offline to online wakes the
// drain loop.
func (g *Gateway) SetOnline(online bool) {
	was := g.online.Swap(online)
	if online && !was {
		g.logger.Info("remote reachable, draining queue")
		g.signal()
	} else if !online && was {
		g.logger.Warn("remote unreachable, queueing changes")
	}
}

func (g *Gateway) signal() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Commit mirrors the named collections into the local cache and queues them
// for push. Local state is already committed and is never rolled back; a
// cache failure is reported and returned.
func (g *Gateway) Commit(ctx context.Context, typ models.QueueItemType, ref string, entities ...models.Entity) error {
	var errs []error
	for _, e := range entities {
		if err := g.mirror(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	item := g.enqueue(ctx, typ, ref, entities)
	g.logger.Debug("change queued",
		zap.String("type", string(typ)),
		zap.String("item_id", item.ID),
		zap.Any("entities", entities),
	)
	g.signal()

	err := errors.Join(errs...)
	g.report(err)
	return err
}

// Flush drains the queue with one push per dirty entity. It is a no-op while
// offline and returns ErrSyncInFlight when another sync is running. Entities
// that fail stay queued as a single retry item.
func (g *Gateway) Flush(ctx context.Context) error {
	if !g.online.Load() {
		return nil
	}
	if !g.inFlight.CompareAndSwap(false, true) {
		return ErrSyncInFlight
	}
	defer g.inFlight.Store(false)

	items := g.pending()
	if len(items) == 0 {
		return nil
	}
	dirty := coalesce(items)
	g.logger.Info("draining sync queue", zap.Int("items", len(items)), zap.Any("entities", dirty))

	var failed []models.Entity
	var errs []error
	for _, e := range dirty {
		if err := g.push(ctx, e); err != nil {
			failed = append(failed, e)
			errs = append(errs, err)
		}
	}
	g.settle(ctx, len(items), failed)

	if len(failed) < len(dirty) {
		g.statusMu.Lock()
		g.lastPush = g.now()
		g.statusMu.Unlock()
	}
	err := errors.Join(errs...)
	g.report(err)
	return err
}

// Pull replaces each local collection with the remote one and mirrors it into
// the cache. Entities are applied independently: a failing entity keeps its
// previous local state and does not undo the others. Entities with queued
// local changes are skipped, both before the fetch and again under the guard
// once it returns, so unpushed work is never overwritten.
func (g *Gateway) Pull(ctx context.Context) error {
	if !g.inFlight.CompareAndSwap(false, true) {
		return ErrSyncInFlight
	}
	defer g.inFlight.Store(false)

	dirty := make(map[models.Entity]bool)
	for _, e := range coalesce(g.pending()) {
		dirty[e] = true
	}

	var errs []error
	for _, e := range models.Entities {
		if dirty[e] {
			g.logger.Info("skipping pull of entity with queued changes", zap.String("entity", string(e)))
			continue
		}
		if err := g.pullEntity(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}

	g.statusMu.Lock()
	g.lastPull = g.now()
	g.statusMu.Unlock()

	err := errors.Join(errs...)
	g.report(err)
	return err
}

// PushLocations deletes remote-only locations, then upserts every local one.
func (g *Gateway) PushLocations(ctx context.Context) error {
	return g.exclusive(ctx, models.EntityLocations)
}

// PushVisitors replaces the remote visitors with the active sessions.
func (g *Gateway) PushVisitors(ctx context.Context) error {
	return g.exclusive(ctx, models.EntityVisitors)
}

// PushLogs replaces the remote visit log.
func (g *Gateway) PushLogs(ctx context.Context) error {
	return g.exclusive(ctx, models.EntityVisitLogs)
}

// PushFrequentVisitors replaces the remote frequent visitor list.
func (g *Gateway) PushFrequentVisitors(ctx context.Context) error {
	return g.exclusive(ctx, models.EntityFrequentVisitors)
}

func (g *Gateway) exclusive(ctx context.Context, e models.Entity) error {
	if !g.inFlight.CompareAndSwap(false, true) {
		return ErrSyncInFlight
	}
	defer g.inFlight.Store(false)
	err := g.push(ctx, e)
	g.report(err)
	return err
}

func (g *Gateway) push(ctx context.Context, e models.Entity) error {
	var err error
	switch e {
	case models.EntityLocations:
		err = g.pushLocations(ctx)
	case models.EntityVisitors:
		err = g.replaceAll(ctx, e, func() error {
			return g.remote.InsertVisitors(ctx, g.store.Sessions())
		})
	case models.EntityVisitLogs:
		err = g.replaceAll(ctx, e, func() error {
			return g.remote.InsertVisitLogs(ctx, g.store.Logs())
		})
	case models.EntityFrequentVisitors:
		err = g.replaceAll(ctx, e, func() error {
			return g.remote.InsertFrequentVisitors(ctx, g.directory.List())
		})
	default:
		err = fmt.Errorf("unknown entity %q", e)
	}
	if err != nil {
		return apperr.Remote("push", string(e), err)
	}
	g.logger.Debug("pushed", zap.String("entity", string(e)))
	return nil
}

func (g *Gateway) replaceAll(ctx context.Context, e models.Entity, insert func() error) error {
	if err := g.remote.DeleteAll(ctx, e); err != nil {
		return err
	}
	return insert()
}

// pushLocations deletes first so removed locations cannot come back on the
// next pull, then upserts so kept ones never disappear.
func (g *Gateway) pushLocations(ctx context.Context) error {
	local := g.registry.List()
	keep := make(map[string]bool, len(local))
	for _, l := range local {
		keep[l.ID] = true
	}

	remoteIDs, err := g.remote.LocationIDs(ctx)
	if err != nil {
		return err
	}
	var stale []string
	for _, id := range remoteIDs {
		if !keep[id] {
			stale = append(stale, id)
		}
	}
	if err := g.remote.DeleteLocations(ctx, stale); err != nil {
		return err
	}
	return g.remote.UpsertLocations(ctx, local)
}

func (g *Gateway) pullEntity(ctx context.Context, e models.Entity) error {
	var install func() error
	switch e {
	case models.EntityVisitors:
		list, err := g.remote.ListVisitors(ctx)
		if err != nil {
			return apperr.Remote("pull", string(e), err)
		}
		install = func() error { g.store.ReplaceSessions(list); return nil }
	case models.EntityVisitLogs:
		list, err := g.remote.ListVisitLogs(ctx)
		if err != nil {
			return apperr.Remote("pull", string(e), err)
		}
		install = func() error { g.store.ReplaceLogs(list); return nil }
	case models.EntityLocations:
		list, err := g.remote.ListLocations(ctx)
		if err != nil {
			return apperr.Remote("pull", string(e), err)
		}
		if len(list) == 0 {
			if g.registry.Len() > 0 {
				g.logger.Info("remote has no locations, publishing local ones")
				g.enqueue(ctx, models.QueueLocationUpdate, "", []models.Entity{models.EntityLocations})
				g.signal()
			}
			return nil
		}
		install = func() error {
			if err := g.registry.Replace(list); err != nil {
				return err
			}
			if g.onLocations != nil {
				g.onLocations()
			}
			return nil
		}
	case models.EntityFrequentVisitors:
		list, err := g.remote.ListFrequentVisitors(ctx)
		if err != nil {
			return apperr.Remote("pull", string(e), err)
		}
		install = func() error { g.directory.Replace(list); return nil }
	default:
		return fmt.Errorf("unknown entity %q", e)
	}
	return g.apply(ctx, e, install)
}

// apply installs and mirrors a pulled collection under the guard, unless a
// change to e was queued while the fetch was in flight.
func (g *Gateway) apply(ctx context.Context, e models.Entity, install func() error) error {
	var err error
	g.guard(func() {
		if g.dirty(e) {
			g.logger.Info("discarding pulled entity changed during fetch", zap.String("entity", string(e)))
			return
		}
		if err = install(); err != nil {
			return
		}
		err = g.mirror(ctx, e)
	})
	return err
}

// Status returns a snapshot for the admin console.
func (g *Gateway) Status() Status {
	items := g.pending()
	g.statusMu.Lock()
	defer g.statusMu.Unlock()
	return Status{
		Online:    g.online.Load(),
		InFlight:  g.inFlight.Load(),
		Pending:   len(items),
		Dirty:     coalesce(items),
		LastPull:  g.lastPull,
		LastPush:  g.lastPush,
		LastError: g.lastError,
	}
}
