package geo

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/cache"
	"visitorgate/models"
)

func loc(id string, category models.Category, lat, lng, radius float64) models.Location {
	return models.Location{ID: id, Name: id, Category: category, Lat: lat, Lng: lng, RadiusKm: radius}
}

func TestDistanceKm(t *testing.T) {
	assert.Equal(t, 0.0, DistanceKm(37.5665, 126.9780, 37.5665, 126.9780))

	// One degree of latitude is about 111.19 km on a 6371 km sphere.
	assert.InDelta(t, 111.19, DistanceKm(0, 0, 1, 0), 0.01)

	// The two default sites are roughly 2 km apart.
	assert.InDelta(t, 2.0, DistanceKm(37.5665, 126.9780, 37.5512, 126.9882), 0.2)

	assert.Equal(t, DistanceKm(10, 20, 30, 40), DistanceKm(30, 40, 10, 20))
	assert.True(t, math.IsNaN(DistanceKm(math.NaN(), 0, 0, 0)))
}

func TestDetect_ExactMatch(t *testing.T) {
	registry := []models.Location{loc("Dorm A", models.CategoryDormitory, 37.5665, 126.9780, 0.1)}

	d := Detect(models.Fix{Lat: 37.5665, Lng: 126.9780}, registry)

	require.NotNil(t, d)
	assert.InDelta(t, 0, d.DistanceKm, 1e-9)
	assert.True(t, d.WithinRadius)
	assert.Equal(t, models.CategoryDormitory, d.Category)
	assert.Equal(t, "Dorm A", d.Location.ID)
}

func TestDetect_OutsideRadiusStillReturnsNearest(t *testing.T) {
	registry := []models.Location{loc("Dorm A", models.CategoryDormitory, 37.5665, 126.9780, 0.1)}
	// About 2 km north.
	fix := models.Fix{Lat: 37.5665 + 2.0/111.19, Lng: 126.9780}

	d := Detect(fix, registry)

	require.NotNil(t, d)
	assert.InDelta(t, 2.0, d.DistanceKm, 0.01)
	assert.False(t, d.WithinRadius)
	assert.True(t, d.Admits(models.CategoryDormitory))
}

func TestDetect_PicksNearest(t *testing.T) {
	registry := []models.Location{
		loc("far", models.CategoryDormitory, 37.60, 126.978, 0.1),
		loc("near", models.CategoryFactory, 37.567, 126.978, 0.2),
	}
	d := Detect(models.Fix{Lat: 37.5665, Lng: 126.978}, registry)
	require.NotNil(t, d)
	assert.Equal(t, "near", d.Location.ID)
	assert.Equal(t, models.CategoryFactory, d.Category)
	assert.False(t, d.Admits(models.CategoryDormitory))
}

func TestDetect_TieGoesToFirst(t *testing.T) {
	registry := []models.Location{
		loc("north", models.CategoryDormitory, 1, 0, 0.1),
		loc("south", models.CategoryFactory, -1, 0, 0.1),
	}
	d := Detect(models.Fix{Lat: 0, Lng: 0}, registry)
	require.NotNil(t, d)
	assert.Equal(t, "north", d.Location.ID)

	reversed := []models.Location{registry[1], registry[0]}
	d = Detect(models.Fix{Lat: 0, Lng: 0}, reversed)
	require.NotNil(t, d)
	assert.Equal(t, "south", d.Location.ID)
}

func TestDetect_NaNFixStillReturnsALocation(t *testing.T) {
	registry := []models.Location{
		loc("first", models.CategoryDormitory, 1, 0, 0.1),
		loc("second", models.CategoryFactory, -1, 0, 0.1),
	}
	d := Detect(models.Fix{Lat: math.NaN(), Lng: 0}, registry)
	require.NotNil(t, d)
	assert.Equal(t, "first", d.Location.ID)
	assert.True(t, math.IsNaN(d.DistanceKm))
	assert.False(t, d.WithinRadius)
}

func TestDetect_EmptyRegistry(t *testing.T) {
	assert.Nil(t, Detect(models.Fix{Lat: 1, Lng: 1}, nil))
	var d *Detection
	assert.False(t, d.Admits(models.CategoryFactory))
}

type scriptedProvider struct {
	calls   atomic.Int32
	results []error
	fix     models.Fix
	opts    []FixOptions
}

func (p *scriptedProvider) CurrentFix(_ context.Context, opts FixOptions) (models.Fix, error) {
	i := int(p.calls.Add(1)) - 1
	p.opts = append(p.opts, opts)
	if i < len(p.results) && p.results[i] != nil {
		return models.Fix{}, p.results[i]
	}
	return p.fix, nil
}

func testLocatorConfig() LocatorConfig {
	cfg := DefaultLocatorConfig()
	cfg.RetryPause = 0
	return cfg
}

func TestLocator_RetriesWithMorePermissiveOptions(t *testing.T) {
	p := &scriptedProvider{
		results: []error{&FixError{Code: Timeout}, &FixError{Code: PositionUnavailable}},
		fix:     models.Fix{Lat: 1, Lng: 2},
	}
	l := NewLocator(p, cache.NewMemoryCache(), testLocatorConfig(), zap.NewNop())

	fix, err := l.Locate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, models.Fix{Lat: 1, Lng: 2}, fix)
	require.Len(t, p.opts, 3)
	assert.Greater(t, p.opts[1].Timeout, p.opts[0].Timeout)
	assert.Greater(t, p.opts[2].MaxAge, p.opts[1].MaxAge)
	assert.False(t, p.opts[2].HighAccuracy)
}

func TestLocator_GivesUpAfterRetries(t *testing.T) {
	timeout := &FixError{Code: Timeout}
	p := &scriptedProvider{results: []error{timeout, timeout, timeout, timeout, timeout}}
	l := NewLocator(p, nil, testLocatorConfig(), zap.NewNop())

	_, err := l.Locate(context.Background())

	var le *apperr.LocationError
	require.ErrorAs(t, err, &le)
	var fe *FixError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Timeout, fe.Code)
	assert.Equal(t, int32(4), p.calls.Load())
}

func TestLocator_PermissionDeniedIsNotRetried(t *testing.T) {
	p := &scriptedProvider{results: []error{&FixError{Code: PermissionDenied}}}
	l := NewLocator(p, nil, testLocatorConfig(), zap.NewNop())

	_, err := l.Locate(context.Background())

	require.Error(t, err)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestLocator_ReusesCachedFixForThirtyMinutes(t *testing.T) {
	p := &scriptedProvider{fix: models.Fix{Lat: 5, Lng: 6}}
	l := NewLocator(p, cache.NewMemoryCache(), testLocatorConfig(), zap.NewNop())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	_, err := l.Locate(context.Background())
	require.NoError(t, err)

	now = now.Add(29 * time.Minute)
	fix, err := l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Fix{Lat: 5, Lng: 6}, fix)
	assert.Equal(t, int32(1), p.calls.Load())

	now = now.Add(2 * time.Minute)
	_, err = l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), p.calls.Load())

	require.NoError(t, l.Forget(context.Background()))
	_, err = l.Locate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestLocator_Fresh(t *testing.T) {
	p := &scriptedProvider{results: []error{&FixError{Code: PermissionDenied}}}
	l := NewLocator(p, nil, testLocatorConfig(), zap.NewNop())

	_, err := l.Fresh(context.Background())
	var le *apperr.LocationError
	require.ErrorAs(t, err, &le)
	assert.True(t, p.opts[0].HighAccuracy)
	assert.Zero(t, p.opts[0].MaxAge)
}

func TestDeviceReports_ReturnsRecentReport(t *testing.T) {
	d := NewDeviceReports()
	d.Report(models.Fix{Lat: 1, Lng: 1}, 10)

	fix, err := d.CurrentFix(context.Background(), FixOptions{Timeout: time.Second, MaxAge: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, models.Fix{Lat: 1, Lng: 1}, fix)
}

func TestDeviceReports_WaitsForNewReport(t *testing.T) {
	d := NewDeviceReports()
	d.Report(models.Fix{Lat: 1, Lng: 1}, 0)

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Report(models.Fix{Lat: 2, Lng: 2}, 0)
	}()

	// MaxAge 0 demands a reading newer than the request.
	fix, err := d.CurrentFix(context.Background(), FixOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, models.Fix{Lat: 2, Lng: 2}, fix)
}

func TestDeviceReports_ErrorAndTimeout(t *testing.T) {
	d := NewDeviceReports()
	go func() {
		time.Sleep(20 * time.Millisecond)
		d.ReportError(PermissionDenied)
	}()
	_, err := d.CurrentFix(context.Background(), FixOptions{Timeout: 2 * time.Second})
	var fe *FixError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, PermissionDenied, fe.Code)

	_, err = d.CurrentFix(context.Background(), FixOptions{Timeout: 10 * time.Millisecond})
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, Timeout, fe.Code)
}

func TestDeviceReports_HighAccuracySkipsCoarseReadings(t *testing.T) {
	d := NewDeviceReports()
	d.Report(models.Fix{Lat: 1, Lng: 1}, 500)

	_, err := d.CurrentFix(context.Background(), FixOptions{HighAccuracy: true, Timeout: 10 * time.Millisecond, MaxAge: time.Minute})
	var fe *FixError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, Timeout, fe.Code)

	fix, err := d.CurrentFix(context.Background(), FixOptions{Timeout: 10 * time.Millisecond, MaxAge: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, models.Fix{Lat: 1, Lng: 1}, fix)
}
