package geo

import (
	"context"
	"sync"
	"time"

	"visitorgate/models"
)

// HighAccuracyLimitM is the worst accuracy accepted for high-accuracy requests.
const HighAccuracyLimitM = 50.0

type report struct {
	fix       models.Fix
	accuracyM float64
	code      FixErrorCode
	at        time.Time
}

// DeviceReports is the Provider backed by readings the kiosk browser posts
// from its platform geolocation API.
type DeviceReports struct {
	mu      sync.Mutex
	lastFix *report
	latest  *report
	changed chan struct{}
	now     func() time.Time
}

func NewDeviceReports() *DeviceReports {
	return &DeviceReports{changed: make(chan struct{}), now: time.Now}
}

// Report records a position reading. accuracyM may be 0 when unknown.
func (d *DeviceReports) Report(fix models.Fix, accuracyM float64) {
	d.publish(&report{fix: fix, accuracyM: accuracyM})
}

// ReportError records a platform failure for pending requests.
func (d *DeviceReports) ReportError(code FixErrorCode) {
	d.publish(&report{code: code})
}

func (d *DeviceReports) publish(r *report) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r.at = d.now()
	d.latest = r
	if r.code == "" {
		d.lastFix = r
	}
	close(d.changed)
	d.changed = make(chan struct{})
}

// CurrentFix returns a reading younger than opts.MaxAge, or waits up to
// opts.Timeout for the device to post one.
func (d *DeviceReports) CurrentFix(ctx context.Context, opts FixOptions) (models.Fix, error) {
	d.mu.Lock()
	if r := d.lastFix; r != nil && opts.MaxAge > 0 && d.now().Sub(r.at) <= opts.MaxAge && acceptable(r, opts) {
		d.mu.Unlock()
		return r.fix, nil
	}
	wait := d.changed
	d.mu.Unlock()

	var timeout <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return models.Fix{}, ctx.Err()
		case <-timeout:
			return models.Fix{}, &FixError{Code: Timeout}
		case <-wait:
		}

		d.mu.Lock()
		r := d.latest
		wait = d.changed
		d.mu.Unlock()

		if r.code != "" {
			return models.Fix{}, &FixError{Code: r.code}
		}
		if acceptable(r, opts) {
			return r.fix, nil
		}
	}
}

func acceptable(r *report, opts FixOptions) bool {
	if !opts.HighAccuracy || r.accuracyM <= 0 {
		return true
	}
	return r.accuracyM <= HighAccuracyLimitM
}
