// Package visitors holds the active visitor sessions, the visit log and the
// frequent visitor directory.
package visitors

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"visitorgate/apperr"
	"visitorgate/geo"
	"visitorgate/models"
)

// SessionMaxAge is how long a session may stay open before daily cleanup.
const SessionMaxAge = 24 * time.Hour

// AutoCheckoutReason tags log entries written by daily cleanup.
const AutoCheckoutReason = "Daily cleanup - 24+ hours old"

// CheckinInput is the kiosk form.
type CheckinInput struct {
	Category  models.Category `json:"category"`
	LastName  string          `json:"lastName"`
	FirstName string          `json:"firstName"`
	Company   string          `json:"company,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	Purpose   models.Purpose  `json:"purpose,omitempty"`
	// FrequentVisitorID pre-fills the name fields from the directory.
	FrequentVisitorID string `json:"frequentVisitorId,omitempty"`
}

// Validate enumerates missing or invalid fields for the input's category.
func (in CheckinInput) Validate() error {
	var fields []string
	if !in.Category.Valid() {
		fields = append(fields, "category")
	}
	if strings.TrimSpace(in.LastName) == "" {
		fields = append(fields, "lastName")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		fields = append(fields, "firstName")
	}
	if in.Category == models.CategoryFactory {
		if strings.TrimSpace(in.Company) == "" {
			fields = append(fields, "company")
		}
		if strings.TrimSpace(in.Phone) == "" {
			fields = append(fields, "phone")
		}
		if !in.Purpose.Valid() {
			fields = append(fields, "purpose")
		}
	}
	return apperr.Validation(fields...)
}

// Counts is the derived view over active sessions.
type Counts struct {
	ByCategory map[models.Category]int `json:"byCategory"`
	Total      int                     `json:"total"`
}

// Store keeps the active sessions and the append-only visit log.
type Store struct {
	mu       sync.RWMutex
	sessions []models.VisitorSession
	logs     []models.VisitLogEntry
	tz       *time.Location
	now      func() time.Time
}

// NewStore creates an empty Store. tz is used for day boundaries and
// time-of-day buckets; nil means time.Local.
func NewStore(tz *time.Location) *Store {
	if tz == nil {
		tz = time.Local
	}
	return &Store{tz: tz, now: time.Now}
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// CheckIn validates the input against the latest detection and opens a
// session. The detection must be for the same category; a detection outside
// the site radius is still accepted.
func (s *Store) CheckIn(in CheckinInput, detection *geo.Detection) (models.VisitorSession, error) {
	if err := in.Validate(); err != nil {
		return models.VisitorSession{}, err
	}
	if detection == nil {
		return models.VisitorSession{}, &apperr.LocationError{Reason: "no site detected for this device"}
	}
	if !detection.Admits(in.Category) {
		return models.VisitorSession{}, &apperr.LocationError{
			Reason: "nearest site is a " + string(detection.Category) + ", not a " + string(in.Category),
		}
	}

	locationName := strings.TrimSpace(detection.Location.Name)
	if locationName == "" {
		locationName = in.Category.Label()
	}
	last, first := strings.TrimSpace(in.LastName), strings.TrimSpace(in.FirstName)
	session := models.VisitorSession{
		ID:           newID(),
		Category:     in.Category,
		FullName:     models.FullName(last, first),
		LastName:     last,
		FirstName:    first,
		LocationName: locationName,
		CheckinTime:  s.now(),
	}
	if in.Category == models.CategoryFactory {
		session.Company = strings.TrimSpace(in.Company)
		session.Phone = strings.TrimSpace(in.Phone)
		session.Purpose = in.Purpose
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, session)
	s.logs = append(s.logs, models.NewLogEntry(newID(), session, models.ActionCheckin, session.CheckinTime))
	return session, nil
}

// CheckOut closes an active session and logs it.
func (s *Store) CheckOut(id string) (models.VisitorSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.VisitorSession{}, apperr.NotFound("visitor", id)
	}
	session := s.sessions[i]
	s.sessions = append(s.sessions[:i:i], s.sessions[i+1:]...)

	now := s.now()
	entry := models.NewLogEntry(newID(), session, models.ActionCheckout, now)
	entry.CheckoutTime = &now
	s.logs = append(s.logs, entry)
	return session, nil
}

// Housekeep checks out every session older than SessionMaxAge and returns them.
func (s *Store) Housekeep() []models.VisitorSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []models.VisitorSession
	kept := s.sessions[:0:0]
	for _, session := range s.sessions {
		if now.Sub(session.CheckinTime) < SessionMaxAge {
			kept = append(kept, session)
			continue
		}
		expired = append(expired, session)
		entry := models.NewLogEntry(newID(), session, models.ActionAutoCheckoutDaily, now)
		entry.CheckoutTime = &now
		entry.Reason = AutoCheckoutReason
		s.logs = append(s.logs, entry)
	}
	s.sessions = kept
	return expired
}

// Tally counts active sessions per category without housekeeping.
func (s *Store) Tally() Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := Counts{ByCategory: make(map[models.Category]int, len(models.Categories))}
	for _, c := range models.Categories {
		counts.ByCategory[c] = 0
	}
	for _, session := range s.sessions {
		counts.ByCategory[session.Category]++
		counts.Total++
	}
	return counts
}

// Counts runs daily cleanup, then tallies.
func (s *Store) Counts() Counts {
	s.Housekeep()
	return s.Tally()
}

// Get returns the active session with id.
func (s *Store) Get(id string) (models.VisitorSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.VisitorSession{}, apperr.NotFound("visitor", id)
	}
	return s.sessions[i], nil
}

// Find returns sessions younger than SessionMaxAge whose last name contains
// query, case-insensitively. An empty query matches every recent session.
func (s *Store) Find(query string) []models.VisitorSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(query))
	now := s.now()
	var out []models.VisitorSession
	for _, session := range s.sessions {
		if now.Sub(session.CheckinTime) >= SessionMaxAge {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(session.LastName), q) {
			out = append(out, session)
		}
	}
	return out
}

func (s *Store) Sessions() []models.VisitorSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.VisitorSession(nil), s.sessions...)
}

func (s *Store) Logs() []models.VisitLogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.VisitLogEntry(nil), s.logs...)
}

// ReplaceSessions swaps the active set, as done after a pull.
func (s *Store) ReplaceSessions(all []models.VisitorSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append([]models.VisitorSession(nil), all...)
}

// ReplaceLogs swaps the visit log, as done after a pull.
func (s *Store) ReplaceLogs(all []models.VisitLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append([]models.VisitLogEntry(nil), all...)
}

func (s *Store) indexOf(id string) int {
	for i, session := range s.sessions {
		if session.ID == id {
			return i
		}
	}
	return -1
}
