// models.go
// Defines the canonical in-memory shapes shared by the kiosk, the admin console,
// the local cache and the sync gateway. Remote row shapes live in package db.

package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Category classifies a registered site and every visit made at it.
type Category string

const (
	CategoryDormitory Category = "dormitory"
	CategoryFactory   Category = "factory"
)

// Categories lists the known categories in display order.
var Categories = []Category{CategoryDormitory, CategoryFactory}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Label is the fallback location name used when no site name is known.
func (c Category) Label() string {
	switch c {
	case CategoryDormitory:
		return "Dormitory"
	case CategoryFactory:
		return "Factory"
	default:
		return string(c)
	}
}

// Purpose is the declared reason of a factory visit.
type Purpose string

const (
	PurposeBusiness    Purpose = "business"
	PurposeDelivery    Purpose = "delivery"
	PurposeMaintenance Purpose = "maintenance"
	PurposeInspection  Purpose = "inspection"
	PurposeMeeting     Purpose = "meeting"
	PurposeOther       Purpose = "other"
)

var purposes = []Purpose{
	PurposeBusiness, PurposeDelivery, PurposeMaintenance,
	PurposeInspection, PurposeMeeting, PurposeOther,
}

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	for _, known := range purposes {
		if p == known {
			return true
		}
	}
	return false
}

// Action is the kind of event recorded in the visit log.
type Action string

const (
	ActionCheckin           Action = "checkin"
	ActionCheckout          Action = "checkout"
	ActionAutoCheckoutDaily Action = "auto-checkout-daily"
)

// === Locations ===

// Location is a registered site with an admission radius.
type Location struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	RadiusKm  float64   `json:"radiusKm"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks the coordinate, radius and naming invariants.
func (l Location) Validate() error {
	switch {
	case strings.TrimSpace(l.Name) == "":
		return fmt.Errorf("location name is required")
	case !l.Category.Valid():
		return fmt.Errorf("unknown category %q", l.Category)
	case !(l.Lat >= -90 && l.Lat <= 90):
		return fmt.Errorf("latitude %v out of range [-90,90]", l.Lat)
	case !(l.Lng >= -180 && l.Lng <= 180):
		return fmt.Errorf("longitude %v out of range [-180,180]", l.Lng)
	case !(l.RadiusKm > 0):
		return fmt.Errorf("radius must be positive, got %v", l.RadiusKm)
	}
	return nil
}

// === Visitors ===

// VisitorSession is an active check-in.
type VisitorSession struct {
	ID           string    `json:"id"`
	Category     Category  `json:"category"`
	FullName     string    `json:"fullName"`
	LastName     string    `json:"lastName"`
	FirstName    string    `json:"firstName"`
	Company      string    `json:"company,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Purpose      Purpose   `json:"purpose,omitempty"`
	LocationName string    `json:"locationName,omitempty"`
	CheckinTime  time.Time `json:"checkinTime"`
}

// VisitLogEntry is an immutable audit record. It copies the session fields at
// the time of the event instead of referencing the session.
type VisitLogEntry struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"sessionId"`
	Category     Category   `json:"category"`
	FullName     string     `json:"fullName"`
	LastName     string     `json:"lastName"`
	FirstName    string     `json:"firstName"`
	Company      string     `json:"company,omitempty"`
	Phone        string     `json:"phone,omitempty"`
	Purpose      Purpose    `json:"purpose,omitempty"`
	LocationName string     `json:"locationName,omitempty"`
	CheckinTime  time.Time  `json:"checkinTime"`
	Action       Action     `json:"action"`
	Timestamp    time.Time  `json:"timestamp"`
	CheckoutTime *time.Time `json:"checkoutTime,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// NewLogEntry snapshots a session into a log entry.
func NewLogEntry(id string, s VisitorSession, action Action, at time.Time) VisitLogEntry {
	return VisitLogEntry{
		ID:           id,
		SessionID:    s.ID,
		Category:     s.Category,
		FullName:     s.FullName,
		LastName:     s.LastName,
		FirstName:    s.FirstName,
		Company:      s.Company,
		Phone:        s.Phone,
		Purpose:      s.Purpose,
		LocationName: s.LocationName,
		CheckinTime:  s.CheckinTime,
		Action:       action,
		Timestamp:    at,
	}
}

// FrequentVisitor is an autofill entry for the check-in form.
type FrequentVisitor struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	LastName  string    `json:"lastName"`
	FirstName string    `json:"firstName"`
	AddedDate time.Time `json:"addedDate"`
}

// FullName joins name parts the way the kiosk displays them.
func FullName(lastName, firstName string) string {
	return strings.TrimSpace(lastName + " " + firstName)
}

// === Synchronization ===

// Entity names a collection that is synchronized as a whole.
type Entity string

const (
	EntityVisitors         Entity = "visitors"
	EntityVisitLogs        Entity = "visit_logs"
	EntityLocations        Entity = "locations"
	EntityFrequentVisitors Entity = "frequent_visitors"
)

// Entities is the fixed pull/push order.
var Entities = []Entity{EntityVisitors, EntityVisitLogs, EntityLocations, EntityFrequentVisitors}

// QueueItemType is the local mutation that produced a queue item.
type QueueItemType string

const (
	QueueCheckin        QueueItemType = "checkin"
	QueueCheckout       QueueItemType = "checkout"
	QueueAutoCheckout   QueueItemType = "auto_checkout"
	QueueLocationUpdate QueueItemType = "location_update"
	QueueFrequentUpdate QueueItemType = "frequent_update"
	QueueRetry          QueueItemType = "retry"
)

// SyncQueueItem marks entity collections as dirty. Replaying an item pushes the
// full current collection, not the original diff.
type SyncQueueItem struct {
	ID        string          `json:"id"`
	Type      QueueItemType   `json:"type"`
	Entities  []Entity        `json:"entities"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// === Geolocation ===

// Fix is a single latitude/longitude reading.
type Fix struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
