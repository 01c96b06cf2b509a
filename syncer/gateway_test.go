package syncer

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/cache"
	"visitorgate/db"
	"visitorgate/geo"
	"visitorgate/models"
	"visitorgate/registry"
	"visitorgate/visitors"
)

type fixture struct {
	gw     *Gateway
	remote *db.MemoryStore
	cache  cache.Cache
	reg    *registry.Registry
	store  *visitors.Store
	dir    *visitors.Directory

	mu       sync.Mutex
	reported []error
}

func setupGateway(t *testing.T, c cache.Cache) *fixture {
	t.Helper()
	if c == nil {
		c = cache.NewMemoryCache()
	}
	f := &fixture{
		remote: db.NewMemoryStore(),
		cache:  c,
		reg:    registry.New(registry.Defaults(time.Now())),
		store:  visitors.NewStore(time.UTC),
		dir:    visitors.NewDirectory(),
	}
	f.gw = New(f.remote, c, f.reg, f.store, f.dir, Config{Interval: 20 * time.Millisecond, ReadyTimeout: time.Second}, zap.NewNop())
	f.gw.SetReporter(func(err error) {
		f.mu.Lock()
		f.reported = append(f.reported, err)
		f.mu.Unlock()
	})
	return f
}

func (f *fixture) checkIn(t *testing.T, last string) models.VisitorSession {
	t.Helper()
	locs := f.reg.List()
	d := geo.Detect(models.Fix{Lat: locs[0].Lat, Lng: locs[0].Lng}, locs)
	s, err := f.store.CheckIn(visitors.CheckinInput{Category: d.Category, LastName: last, FirstName: "Min"}, d)
	require.NoError(t, err)
	require.NoError(t, f.gw.Commit(context.Background(), models.QueueCheckin, s.ID, models.EntityVisitors, models.EntityVisitLogs))
	return s
}

func (f *fixture) reportedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reported)
}

func ids(locs []models.Location) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		out = append(out, l.ID)
	}
	sort.Strings(out)
	return out
}

func TestPushLocationsThenPull_RoundTrip(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	_, err := f.reg.Add("Dorm B", models.CategoryDormitory, 37.56, 126.97, 0.2)
	require.NoError(t, err)
	before := f.reg.List()

	require.NoError(t, f.gw.PushLocations(ctx))

	// Diverge locally, then let the remote win.
	require.NoError(t, f.reg.Replace([]models.Location{{ID: "tmp", Name: "Tmp", Category: models.CategoryFactory, RadiusKm: 1}}))
	require.NoError(t, f.gw.Pull(ctx))

	assert.Equal(t, ids(before), ids(f.reg.List()))

	var cached []models.Location
	found, err := cache.LoadJSON(ctx, f.cache, cache.KeyLocations, &cached)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ids(before), ids(cached))
}

func TestPushLocations_DeletesRemoteOnlyRows(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	require.NoError(t, f.remote.UpsertLocations(ctx, []models.Location{{ID: "gone", Name: "Gone", Category: models.CategoryFactory, RadiusKm: 1}}))

	require.NoError(t, f.gw.PushLocations(ctx))

	remoteIDs, err := f.remote.LocationIDs(ctx)
	require.NoError(t, err)
	sort.Strings(remoteIDs)
	assert.Equal(t, ids(f.reg.List()), remoteIDs)

	calls := f.remote.Calls()
	require.Len(t, calls, 4)
	assert.Equal(t, []string{"list ids locations", "delete locations", "upsert locations"}, calls[1:])
}

func TestPushVisitors_ReplacesAll(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	require.NoError(t, f.remote.InsertVisitors(ctx, []models.VisitorSession{{ID: "stale"}}))
	s := f.checkIn(t, "Kim")

	require.NoError(t, f.gw.PushVisitors(ctx))
	require.NoError(t, f.gw.PushLogs(ctx))

	remote, err := f.remote.ListVisitors(ctx)
	require.NoError(t, err)
	require.Len(t, remote, 1)
	assert.Equal(t, s.ID, remote[0].ID)

	logs, err := f.remote.ListVisitLogs(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestOfflineCheckins_CoalesceIntoOnePushPerEntity(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	require.False(t, f.gw.Online())

	f.checkIn(t, "Kim")
	f.checkIn(t, "Lee")
	fv, err := f.dir.Add("Park", "Jae")
	require.NoError(t, err)
	require.NoError(t, f.gw.Commit(ctx, models.QueueFrequentUpdate, fv.ID, models.EntityFrequentVisitors))

	status := f.gw.Status()
	assert.Equal(t, 3, status.Pending)
	assert.Equal(t, []models.Entity{models.EntityVisitors, models.EntityVisitLogs, models.EntityFrequentVisitors}, status.Dirty)

	require.NoError(t, f.gw.Flush(ctx))
	assert.Empty(t, f.remote.Calls(), "flush while offline must not touch the remote")

	f.gw.SetOnline(true)
	require.NoError(t, f.gw.Flush(ctx))

	calls := f.remote.Calls()
	assert.Equal(t, []string{
		"delete visitors", "insert visitors",
		"delete visit_logs", "insert visit_logs",
		"delete frequent_visitors", "insert frequent_visitors",
	}, calls)
	assert.Zero(t, f.gw.Status().Pending)

	remote, err := f.remote.ListVisitors(ctx)
	require.NoError(t, err)
	assert.Len(t, remote, 2)

	var persisted []models.SyncQueueItem
	found, err := cache.LoadJSON(ctx, f.cache, cache.KeySyncQueue, &persisted)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, persisted)
}

func TestFlush_FailedEntityIsRequeuedAtHead(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	f.gw.SetOnline(true)
	f.checkIn(t, "Kim")
	f.remote.FailOn(models.EntityVisitLogs, true)

	err := f.gw.Flush(ctx)
	var re *apperr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "visit_logs", re.Entity)

	items := f.gw.pending()
	require.Len(t, items, 1)
	assert.Equal(t, models.QueueRetry, items[0].Type)
	assert.Equal(t, []models.Entity{models.EntityVisitLogs}, items[0].Entities)
	assert.GreaterOrEqual(t, f.reportedCount(), 1)

	f.remote.FailOn(models.EntityVisitLogs, false)
	require.NoError(t, f.gw.Flush(ctx))
	assert.Empty(t, f.gw.pending())
}

func TestFlush_SkippedWhileInFlight(t *testing.T) {
	f := setupGateway(t, nil)
	f.gw.SetOnline(true)
	f.checkIn(t, "Kim")

	f.gw.inFlight.Store(true)
	assert.ErrorIs(t, f.gw.Flush(context.Background()), ErrSyncInFlight)
	assert.ErrorIs(t, f.gw.Pull(context.Background()), ErrSyncInFlight)
	assert.ErrorIs(t, f.gw.PushLocations(context.Background()), ErrSyncInFlight)
	assert.Equal(t, 1, f.gw.Status().Pending)
	assert.Empty(t, f.remote.Calls())
}

func TestPull_PartialFailureKeepsSuccessfulEntities(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	require.NoError(t, f.remote.InsertVisitors(ctx, []models.VisitorSession{{ID: "remote-v", Category: models.CategoryFactory}}))
	require.NoError(t, f.remote.UpsertLocations(ctx, []models.Location{{ID: "remote-l", Name: "R", Category: models.CategoryFactory, RadiusKm: 1}}))
	f.remote.FailOn(models.EntityLocations, true)
	before := f.reg.List()

	err := f.gw.Pull(ctx)
	var re *apperr.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "locations", re.Entity)

	sessions := f.store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "remote-v", sessions[0].ID)
	assert.Equal(t, before, f.reg.List())
}

func TestPull_SkipsEntitiesWithQueuedChanges(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	s := f.checkIn(t, "Kim")

	require.NoError(t, f.gw.Pull(ctx))

	sessions := f.store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, s.ID, sessions[0].ID)
	assert.NotContains(t, f.remote.Calls(), "list visitors")
	assert.Contains(t, f.remote.Calls(), "list locations")
}

func TestPull_EmptyRemoteLocationsPublishesLocalOnes(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	before := f.reg.List()

	require.NoError(t, f.gw.Pull(ctx))
	assert.Equal(t, before, f.reg.List())
	assert.Equal(t, []models.Entity{models.EntityLocations}, f.gw.Status().Dirty)
}

func TestLoadLocal_RestoresFromRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := cache.NewRedisCache(cache.NewRedisClient(mr.Addr(), "", 0), "kiosk:")
	t.Cleanup(func() { rc.Close() })
	ctx := context.Background()

	first := setupGateway(t, rc)
	s := first.checkIn(t, "Kim")
	_, err := first.reg.Add("Dorm C", models.CategoryDormitory, 1, 1, 0.1)
	require.NoError(t, err)
	require.NoError(t, first.gw.Commit(ctx, models.QueueLocationUpdate, "", models.EntityLocations))

	second := setupGateway(t, rc)
	require.NoError(t, second.gw.LoadLocal(ctx))

	restored := second.store.Sessions()
	require.Len(t, restored, 1)
	assert.Equal(t, s.ID, restored[0].ID)
	assert.Equal(t, s.FullName, restored[0].FullName)
	assert.True(t, s.CheckinTime.Equal(restored[0].CheckinTime))
	assert.Len(t, second.store.Logs(), 1)
	assert.Equal(t, ids(first.reg.List()), ids(second.reg.List()))
	assert.Equal(t, 2, second.gw.Status().Pending)
}

func TestStart_BecomesReadyAndInstallsDefaults(t *testing.T) {
	empty := setupGateway(t, nil)
	empty.reg = registry.New(nil)
	empty.gw = New(empty.remote, empty.cache, empty.reg, empty.store, empty.dir, Config{Interval: time.Hour}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	empty.gw.Start(ctx)

	require.NoError(t, empty.gw.WaitReady(ctx, time.Second))
	assert.Equal(t, 2, empty.reg.Len())

	require.Eventually(t, func() bool {
		ids, err := empty.remote.LocationIDs(ctx)
		return err == nil && len(ids) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestWaitReady_TimesOut(t *testing.T) {
	f := setupGateway(t, nil)
	err := f.gw.WaitReady(context.Background(), 10*time.Millisecond)
	var du *apperr.DependencyUnavailable
	require.ErrorAs(t, err, &du)
	assert.Equal(t, 10*time.Millisecond, du.Wait)
}

func TestRun_ReconnectDrainsQueue(t *testing.T) {
	f := setupGateway(t, nil)
	f.remote.SetDown(true)
	f.checkIn(t, "Kim")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.gw.Run(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, f.gw.Status().Pending)
	assert.False(t, f.gw.Online())

	f.remote.SetDown(false)
	require.Eventually(t, func() bool {
		return f.gw.Online() && f.gw.Status().Pending == 0
	}, 2*time.Second, 10*time.Millisecond)

	remote, err := f.remote.ListVisitors(context.Background())
	require.NoError(t, err)
	assert.Len(t, remote, 1)
}

// gatedStore parks the first read or insert of one entity until released.
type gatedStore struct {
	*db.MemoryStore
	gate    models.Entity
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (s *gatedStore) wait(e models.Entity) {
	if e != s.gate {
		return
	}
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
}

func (s *gatedStore) ListVisitors(ctx context.Context) ([]models.VisitorSession, error) {
	s.wait(models.EntityVisitors)
	return s.MemoryStore.ListVisitors(ctx)
}

func (s *gatedStore) InsertVisitors(ctx context.Context, v []models.VisitorSession) error {
	s.wait(models.EntityVisitors)
	return s.MemoryStore.InsertVisitors(ctx, v)
}

func setupGatedGateway(t *testing.T, gate models.Entity) (*fixture, *gatedStore) {
	t.Helper()
	f := setupGateway(t, nil)
	gs := &gatedStore{
		MemoryStore: f.remote,
		gate:        gate,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	f.gw = New(gs, f.cache, f.reg, f.store, f.dir, Config{Interval: time.Hour, ReadyTimeout: time.Second}, zap.NewNop())
	f.gw.SetOnline(true)
	return f, gs
}

func TestPull_CheckinDuringFetchIsKept(t *testing.T) {
	f, gs := setupGatedGateway(t, models.EntityVisitors)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- f.gw.Pull(ctx) }()

	<-gs.entered
	s := f.checkIn(t, "Kim")
	close(gs.release)
	require.NoError(t, <-done)

	sessions := f.store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, s.ID, sessions[0].ID)
	assert.Len(t, f.store.Logs(), 1)

	require.NoError(t, f.gw.Flush(ctx))
	remote, err := f.remote.ListVisitors(ctx)
	require.NoError(t, err)
	assert.Len(t, remote, 1)
	logs, err := f.remote.ListVisitLogs(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestPull_InstallsUnderGuard(t *testing.T) {
	f := setupGateway(t, nil)
	ctx := context.Background()
	require.NoError(t, f.remote.UpsertLocations(ctx, []models.Location{{ID: "remote-l", Name: "R", Category: models.CategoryFactory, RadiusKm: 1}}))

	var mu sync.Mutex
	var guarded, replaced int
	f.gw.SetGuard(func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		guarded++
		fn()
	})
	f.gw.OnLocationsReplaced(func() { replaced++ })

	require.NoError(t, f.gw.Pull(ctx))
	assert.Equal(t, len(models.Entities), guarded)
	assert.Equal(t, 1, replaced)
	assert.Equal(t, []string{"remote-l"}, ids(f.reg.List()))
}

func TestFlush_CommitDuringPushStaysQueued(t *testing.T) {
	f, gs := setupGatedGateway(t, models.EntityVisitors)
	ctx := context.Background()
	f.checkIn(t, "Kim")

	done := make(chan error, 1)
	go func() { done <- f.gw.Flush(ctx) }()

	<-gs.entered
	f.checkIn(t, "Lee")
	close(gs.release)
	require.NoError(t, <-done)

	st := f.gw.Status()
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, []models.Entity{models.EntityVisitors, models.EntityVisitLogs}, st.Dirty)

	require.NoError(t, f.gw.Flush(ctx))
	assert.Zero(t, f.gw.Status().Pending)
	remote, err := f.remote.ListVisitors(ctx)
	require.NoError(t, err)
	assert.Len(t, remote, 2)
}
