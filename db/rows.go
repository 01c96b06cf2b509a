package db

import (
	"time"

	"visitorgate/models"
)

// Remote row shapes. Every backend stores the same snake_case columns; these
// types are the only place where the canonical models are mapped to them.

type visitorRow struct {
	ID           string     `json:"id" firestore:"id"`
	FullName     string     `json:"full_name" firestore:"full_name"`
	LastName     string     `json:"last_name" firestore:"last_name"`
	FirstName    string     `json:"first_name" firestore:"first_name"`
	Category     string     `json:"category" firestore:"category"`
	LocationName *string    `json:"location_name" firestore:"location_name"`
	Company      *string    `json:"company" firestore:"company"`
	Phone        *string    `json:"phone" firestore:"phone"`
	Purpose      *string    `json:"purpose" firestore:"purpose"`
	CheckinTime  time.Time  `json:"checkin_time" firestore:"checkin_time"`
	CheckoutTime *time.Time `json:"checkout_time" firestore:"checkout_time"`
	CreatedAt    time.Time  `json:"created_at" firestore:"created_at"`
}

type visitLogRow struct {
	ID           string     `json:"id" firestore:"id"`
	VisitorID    string     `json:"visitor_id" firestore:"visitor_id"`
	VisitorName  string     `json:"visitor_name" firestore:"visitor_name"`
	FullName     string     `json:"full_name" firestore:"full_name"`
	LastName     string     `json:"last_name" firestore:"last_name"`
	FirstName    string     `json:"first_name" firestore:"first_name"`
	Category     string     `json:"category" firestore:"category"`
	Action       string     `json:"action" firestore:"action"`
	LocationName *string    `json:"location_name" firestore:"location_name"`
	Company      *string    `json:"company" firestore:"company"`
	Phone        *string    `json:"phone" firestore:"phone"`
	Purpose      *string    `json:"purpose" firestore:"purpose"`
	Reason       *string    `json:"reason" firestore:"reason"`
	CheckinTime  time.Time  `json:"checkin_time" firestore:"checkin_time"`
	CheckoutTime *time.Time `json:"checkout_time" firestore:"checkout_time"`
	Timestamp    time.Time  `json:"timestamp" firestore:"timestamp"`
	CreatedAt    time.Time  `json:"created_at" firestore:"created_at"`
}

type locationRow struct {
	ID        string    `json:"id" firestore:"id"`
	Name      string    `json:"name" firestore:"name"`
	Category  string    `json:"category" firestore:"category"`
	Latitude  float64   `json:"latitude" firestore:"latitude"`
	Longitude float64   `json:"longitude" firestore:"longitude"`
	Radius    float64   `json:"radius" firestore:"radius"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

type frequentVisitorRow struct {
	ID        string    `json:"id" firestore:"id"`
	Name      string    `json:"name" firestore:"name"`
	LastName  string    `json:"last_name" firestore:"last_name"`
	FirstName string    `json:"first_name" firestore:"first_name"`
	AddedDate time.Time `json:"added_date" firestore:"added_date"`
	CreatedAt time.Time `json:"created_at" firestore:"created_at"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toVisitorRow(s models.VisitorSession) visitorRow {
	return visitorRow{
		ID:           s.ID,
		FullName:     s.FullName,
		LastName:     s.LastName,
		FirstName:    s.FirstName,
		Category:     string(s.Category),
		LocationName: optional(s.LocationName),
		Company:      optional(s.Company),
		Phone:        optional(s.Phone),
		Purpose:      optional(string(s.Purpose)),
		CheckinTime:  s.CheckinTime,
		CreatedAt:    s.CheckinTime,
	}
}

func (r visitorRow) model() models.VisitorSession {
	return models.VisitorSession{
		ID:           r.ID,
		Category:     models.Category(r.Category),
		FullName:     r.FullName,
		LastName:     r.LastName,
		FirstName:    r.FirstName,
		Company:      deref(r.Company),
		Phone:        deref(r.Phone),
		Purpose:      models.Purpose(deref(r.Purpose)),
		LocationName: deref(r.LocationName),
		CheckinTime:  r.CheckinTime,
	}
}

func toVisitLogRow(e models.VisitLogEntry) visitLogRow {
	return visitLogRow{
		ID:           e.ID,
		VisitorID:    e.SessionID,
		VisitorName:  e.FullName,
		FullName:     e.FullName,
		LastName:     e.LastName,
		FirstName:    e.FirstName,
		Category:     string(e.Category),
		Action:       string(e.Action),
		LocationName: optional(e.LocationName),
		Company:      optional(e.Company),
		Phone:        optional(e.Phone),
		Purpose:      optional(string(e.Purpose)),
		Reason:       optional(e.Reason),
		CheckinTime:  e.CheckinTime,
		CheckoutTime: e.CheckoutTime,
		Timestamp:    e.Timestamp,
		CreatedAt:    e.Timestamp,
	}
}

func (r visitLogRow) model() models.VisitLogEntry {
	fullName := r.FullName
	if fullName == "" {
		fullName = r.VisitorName
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = r.CreatedAt
	}
	return models.VisitLogEntry{
		ID:           r.ID,
		SessionID:    r.VisitorID,
		Category:     models.Category(r.Category),
		FullName:     fullName,
		LastName:     r.LastName,
		FirstName:    r.FirstName,
		Company:      deref(r.Company),
		Phone:        deref(r.Phone),
		Purpose:      models.Purpose(deref(r.Purpose)),
		LocationName: deref(r.LocationName),
		CheckinTime:  r.CheckinTime,
		Action:       models.Action(r.Action),
		Timestamp:    ts,
		CheckoutTime: r.CheckoutTime,
		Reason:       deref(r.Reason),
	}
}

func toLocationRow(l models.Location) locationRow {
	return locationRow{
		ID:        l.ID,
		Name:      l.Name,
		Category:  string(l.Category),
		Latitude:  l.Lat,
		Longitude: l.Lng,
		Radius:    l.RadiusKm,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}

func (r locationRow) model() models.Location {
	return models.Location{
		ID:        r.ID,
		Name:      r.Name,
		Category:  models.Category(r.Category),
		Lat:       r.Latitude,
		Lng:       r.Longitude,
		RadiusKm:  r.Radius,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func toFrequentVisitorRow(fv models.FrequentVisitor, now time.Time) frequentVisitorRow {
	return frequentVisitorRow{
		ID:        fv.ID,
		Name:      fv.Name,
		LastName:  fv.LastName,
		FirstName: fv.FirstName,
		AddedDate: fv.AddedDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r frequentVisitorRow) model() models.FrequentVisitor {
	return models.FrequentVisitor{
		ID:        r.ID,
		Name:      r.Name,
		LastName:  r.LastName,
		FirstName: r.FirstName,
		AddedDate: r.AddedDate,
	}
}
