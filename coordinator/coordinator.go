// Package coordinator is the geofenced check-in core. It owns the current
// detection and funnels every kiosk and admin operation through the local
// collections first and the sync gateway second.
package coordinator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/geo"
	"visitorgate/models"
	"visitorgate/notify"
	"visitorgate/registry"
	"visitorgate/syncer"
	"visitorgate/visitors"
)

// Deps are the collaborators built in main.
type Deps struct {
	Registry  *registry.Registry
	Store     *visitors.Store
	Directory *visitors.Directory
	Locator   *geo.Locator
	Gateway   *syncer.Gateway
	Notices   *notify.Center
}

type Coordinator struct {
	mu        sync.Mutex
	registry  *registry.Registry
	store     *visitors.Store
	directory *visitors.Directory
	locator   *geo.Locator
	gateway   *syncer.Gateway
	notices   *notify.Center
	logger    *zap.Logger

	detection *geo.Detection
}

// New wires the coordinator and routes gateway failures to the notices.
// Pulled collections are installed under the coordinator lock, and a pulled
// registry re-runs detection before the next check-in can see it.
func New(d Deps, logger *zap.Logger) *Coordinator {
	if d.Notices == nil {
		d.Notices = notify.NewCenter()
	}
	c := &Coordinator{
		registry:  d.Registry,
		store:     d.Store,
		directory: d.Directory,
		locator:   d.Locator,
		gateway:   d.Gateway,
		notices:   d.Notices,
		logger:    logger.Named("coordinator"),
	}
	c.gateway.SetReporter(c.notices.Report)
	c.gateway.SetGuard(c.locked)
	c.gateway.OnLocationsReplaced(c.redetect)
	return c
}

func (c *Coordinator) locked(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

// fail publishes err and hands it back.
func (c *Coordinator) fail(err error) error {
	if err != nil {
		c.notices.Publish(notify.FromError(err))
	}
	return err
}

// commit queues the change. Cache failures are already reported by the
// gateway and never undo the local mutation.
func (c *Coordinator) commit(ctx context.Context, typ models.QueueItemType, ref string, entities ...models.Entity) {
	if err := c.gateway.Commit(ctx, typ, ref, entities...); err != nil {
		c.logger.Warn("change kept locally only", zap.String("type", string(typ)), zap.Error(err))
	}
}

// Start begins the gateway's initial load and background loop.
func (c *Coordinator) Start(ctx context.Context) {
	c.gateway.Start(ctx)
}

// WaitReady blocks until the initial load is done.
func (c *Coordinator) WaitReady(ctx context.Context, timeout time.Duration) error {
	return c.fail(c.gateway.WaitReady(ctx, timeout))
}

// RefreshLocation acquires a fix and classifies it against the registry as it
// stands once the fix arrives.
func (c *Coordinator) RefreshLocation(ctx context.Context) (*geo.Detection, error) {
	fix, err := c.locator.Locate(ctx)
	if err != nil {
		return nil, c.fail(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	d := geo.Detect(fix, c.registry.List())
	if d == nil {
		return nil, c.fail(&apperr.LocationError{Reason: "no registered locations"})
	}
	c.detection = d
	c.logger.Info("location detected",
		zap.String("location", d.Location.Name),
		zap.String("category", string(d.Category)),
		zap.Float64("distance_km", d.DistanceKm),
		zap.Bool("within_radius", d.WithinRadius),
	)
	return d, nil
}

// Detection returns the last detection, or nil before the first fix.
func (c *Coordinator) Detection() *geo.Detection {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.detection == nil {
		return nil
	}
	d := *c.detection
	return &d
}

// redetect re-runs the last fix after a registry change. Callers hold c.mu.
func (c *Coordinator) redetect() {
	if c.detection == nil {
		return
	}
	c.detection = geo.Detect(c.detection.Fix, c.registry.List())
}

// CheckIn registers a visitor at the detected site.
func (c *Coordinator) CheckIn(ctx context.Context, in visitors.CheckinInput) (models.VisitorSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in, err := c.directory.Prefill(in)
	if err != nil {
		return models.VisitorSession{}, c.fail(err)
	}
	s, err := c.store.CheckIn(in, c.detection)
	if err != nil {
		return models.VisitorSession{}, c.fail(err)
	}
	c.logger.Info("visitor checked in",
		zap.String("session_id", s.ID),
		zap.String("category", string(s.Category)),
		zap.String("location", s.LocationName),
	)
	c.commit(ctx, models.QueueCheckin, s.ID, models.EntityVisitors, models.EntityVisitLogs)
	return s, nil
}

// CheckOut ends an active session.
func (c *Coordinator) CheckOut(ctx context.Context, id string) (models.VisitorSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.store.CheckOut(id)
	if err != nil {
		return models.VisitorSession{}, c.fail(err)
	}
	c.logger.Info("visitor checked out", zap.String("session_id", s.ID))
	c.commit(ctx, models.QueueCheckout, s.ID, models.EntityVisitors, models.EntityVisitLogs)
	return s, nil
}

// SearchCheckout finds sessions from the last day by last name.
func (c *Coordinator) SearchCheckout(query string) []models.VisitorSession {
	return c.store.Find(query)
}

// Visitors lists the active sessions.
func (c *Coordinator) Visitors() []models.VisitorSession {
	return c.store.Sessions()
}

// Counts runs daily cleanup, then tallies active sessions.
func (c *Coordinator) Counts(ctx context.Context) visitors.Counts {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expired := c.store.Housekeep(); len(expired) > 0 {
		c.logger.Info("expired sessions checked out", zap.Int("count", len(expired)))
		c.commit(ctx, models.QueueAutoCheckout, "", models.EntityVisitors, models.EntityVisitLogs)
	}
	return c.store.Tally()
}

func (c *Coordinator) FilterLogs(f visitors.LogFilter) ([]models.VisitLogEntry, error) {
	logs, err := c.store.FilterLogs(f)
	if err != nil {
		return nil, c.fail(err)
	}
	return logs, nil
}

func (c *Coordinator) Locations() []models.Location {
	return c.registry.List()
}

func (c *Coordinator) AddLocation(ctx context.Context, name string, category models.Category, lat, lng, radiusKm float64) (models.Location, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc, err := c.registry.Add(name, category, lat, lng, radiusKm)
	if err != nil {
		return models.Location{}, c.fail(err)
	}
	c.redetect()
	c.commit(ctx, models.QueueLocationUpdate, loc.ID, models.EntityLocations)
	return loc, nil
}

func (c *Coordinator) UpdateLocation(ctx context.Context, id string, field registry.Field, value any) (models.Location, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc, err := c.registry.Update(id, field, value)
	if err != nil {
		return models.Location{}, c.fail(err)
	}
	c.redetect()
	c.commit(ctx, models.QueueLocationUpdate, loc.ID, models.EntityLocations)
	return loc, nil
}

func (c *Coordinator) RemoveLocation(ctx context.Context, id string) (models.Location, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	loc, err := c.registry.Remove(id)
	if err != nil {
		return models.Location{}, c.fail(err)
	}
	c.redetect()
	c.commit(ctx, models.QueueLocationUpdate, loc.ID, models.EntityLocations)
	return loc, nil
}

// SetLocationToCurrentPosition re-centres a site on a fresh fix. The location
// may be removed while the fix is pending; that surfaces as NotFound.
func (c *Coordinator) SetLocationToCurrentPosition(ctx context.Context, id string) (models.Location, error) {
	if _, err := c.registry.Get(id); err != nil {
		return models.Location{}, c.fail(err)
	}
	fix, err := c.locator.Fresh(ctx)
	if err != nil {
		return models.Location{}, c.fail(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	loc, err := c.registry.SetPosition(id, fix)
	if err != nil {
		return models.Location{}, c.fail(err)
	}
	// The kiosk's cached fix predates the move; the next detection reads anew.
	if err := c.locator.Forget(ctx); err != nil {
		c.logger.Warn("failed to drop cached fix", zap.Error(err))
	}
	c.redetect()
	c.commit(ctx, models.QueueLocationUpdate, loc.ID, models.EntityLocations)
	return loc, nil
}

func (c *Coordinator) FrequentVisitors() []models.FrequentVisitor {
	return c.directory.List()
}

func (c *Coordinator) AddFrequentVisitor(ctx context.Context, lastName, firstName string) (models.FrequentVisitor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fv, err := c.directory.Add(lastName, firstName)
	if err != nil {
		return models.FrequentVisitor{}, c.fail(err)
	}
	c.commit(ctx, models.QueueFrequentUpdate, fv.ID, models.EntityFrequentVisitors)
	return fv, nil
}

func (c *Coordinator) RemoveFrequentVisitor(ctx context.Context, id string) (models.FrequentVisitor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fv, err := c.directory.Remove(id)
	if err != nil {
		return models.FrequentVisitor{}, c.fail(err)
	}
	c.commit(ctx, models.QueueFrequentUpdate, fv.ID, models.EntityFrequentVisitors)
	return fv, nil
}

// Push drains the sync queue.
func (c *Coordinator) Push(ctx context.Context) error {
	return c.gateway.Flush(ctx)
}

// Pull refreshes local state from the remote. Detection follows a replaced
// registry through the gateway hook.
func (c *Coordinator) Pull(ctx context.Context) error {
	return c.gateway.Pull(ctx)
}

// Sync pushes pending changes, then pulls.
func (c *Coordinator) Sync(ctx context.Context) error {
	if err := c.Push(ctx); err != nil {
		return err
	}
	return c.Pull(ctx)
}

// SetOnline forwards a connectivity change to the gateway.
func (c *Coordinator) SetOnline(online bool) {
	c.gateway.SetOnline(online)
}

func (c *Coordinator) SyncStatus() syncer.Status {
	return c.gateway.Status()
}

func (c *Coordinator) Notifications() *notify.Center {
	return c.notices
}
