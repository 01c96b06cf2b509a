// Package notify keeps the single user-visible notification. A new
// notification replaces the previous one; nothing stacks.
package notify

import (
	"errors"
	"sync"
	"time"

	"visitorgate/apperr"
	"visitorgate/syncer"
)

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one message for the kiosk or admin screen.
type Notification struct {
	ID       uint64    `json:"id"`
	Title    string    `json:"title"`
	Body     string    `json:"body"`
	Severity Severity  `json:"severity"`
	Retry    bool      `json:"retry"`
	Fields   []string  `json:"fields,omitempty"`
	At       time.Time `json:"at"`
}

// Center holds the latest notification.
type Center struct {
	mu     sync.RWMutex
	latest *Notification
	seq    uint64
	now    func() time.Time
}

func NewCenter() *Center {
	return &Center{now: time.Now}
}

// Publish replaces the current notification and returns the stored copy.
func (c *Center) Publish(n Notification) Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	n.ID = c.seq
	n.At = c.now()
	c.latest = &n
	return n
}

// Latest returns the current notification, if any.
func (c *Center) Latest() (Notification, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == nil {
		return Notification{}, false
	}
	return *c.latest, true
}

// Clear drops the current notification if its id matches.
func (c *Center) Clear(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil || c.latest.ID != id {
		return false
	}
	c.latest = nil
	return true
}

// Report publishes err as a notification. It is the sync gateway reporter.
func (c *Center) Report(err error) {
	if err == nil {
		return
	}
	c.Publish(FromError(err))
}

// FromError maps the error taxonomy to what the user sees.
func FromError(err error) Notification {
	var (
		ve *apperr.ValidationError
		le *apperr.LocationError
		ne *apperr.NotFoundError
		iv *apperr.InvariantViolation
		re *apperr.RemoteError
		du *apperr.DependencyUnavailable
	)
	switch {
	case errors.As(err, &ve):
		return Notification{Title: "Missing information", Body: err.Error(), Severity: SeverityWarning, Fields: ve.Fields}
	case errors.As(err, &le):
		return Notification{Title: "Location unavailable", Body: le.Reason, Severity: SeverityWarning, Retry: true}
	case errors.As(err, &ne):
		return Notification{Title: "Not found", Body: err.Error(), Severity: SeverityWarning}
	case errors.As(err, &iv):
		return Notification{Title: "Not allowed", Body: iv.Rule, Severity: SeverityError}
	case errors.As(err, &re):
		return Notification{
			Title:    "Working offline",
			Body:     "Changes are saved on this device and will sync when the server is reachable.",
			Severity: SeverityWarning,
			Retry:    true,
		}
	case errors.As(err, &du):
		return Notification{Title: "Still starting", Body: err.Error(), Severity: SeverityError, Retry: true}
	case errors.Is(err, syncer.ErrSyncInFlight):
		return Notification{Title: "Sync in progress", Body: err.Error(), Severity: SeverityInfo}
	default:
		return Notification{Title: "Unexpected error", Body: err.Error(), Severity: SeverityError}
	}
}
